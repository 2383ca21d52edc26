// Package slackutil wraps the Slack Web API behind the narrow surface the
// bot needs, so tasks can be exercised against fakes in tests.
package slackutil

import (
	"context"
	"errors"
	"time"

	"github.com/slack-go/slack"
)

// ErrChannelNotFound is reported when the bot cannot see a channel, which for
// private channels means it has not been invited yet.
var ErrChannelNotFound = errors.New("slackutil: channel not found")

// API is the subset of the Slack Web API used by the bot.
type API interface {
	// MembersPage fetches one page of a channel's roster. An empty next
	// cursor means the roster has been fully drained.
	MembersPage(ctx context.Context, channelID, cursor string, limit int) (members []string, nextCursor string, err error)

	// IsBot reports whether the given account is a bot user.
	IsBot(ctx context.Context, userID string) (bool, error)

	// OpenConversation opens (or resumes) a direct conversation with the
	// given users and returns its channel ID.
	OpenConversation(ctx context.Context, userIDs []string) (string, error)

	// PostMessage posts text to a channel, group conversation, or user DM.
	PostMessage(ctx context.Context, channelID, text string) error

	// CheckChannel verifies the channel is visible to the bot, returning
	// ErrChannelNotFound when it is not.
	CheckChannel(ctx context.Context, channelID string) error
}

// Factory builds an API client from a workspace bot token.
type Factory func(token string) API

// Client implements API on top of slack-go.
type Client struct {
	api *slack.Client
}

// New creates an API client for the given bot token.
func New(token string) API {
	return &Client{api: slack.New(token)}
}

// MembersPage implements API.
func (c *Client) MembersPage(
	ctx context.Context,
	channelID, cursor string,
	limit int,
) ([]string, string, error) {
	return c.api.GetUsersInConversationContext(
		ctx,
		&slack.GetUsersInConversationParameters{
			ChannelID: channelID,
			Cursor:    cursor,
			Limit:     limit,
		},
	)
}

// IsBot implements API.
func (c *Client) IsBot(ctx context.Context, userID string) (bool, error) {
	user, err := c.api.GetUserInfoContext(ctx, userID)
	if err != nil {
		return false, err
	}

	return user.IsBot, nil
}

// OpenConversation implements API.
func (c *Client) OpenConversation(
	ctx context.Context,
	userIDs []string,
) (string, error) {
	channel, _, _, err := c.api.OpenConversationContext(
		ctx,
		&slack.OpenConversationParameters{Users: userIDs},
	)
	if err != nil {
		return "", err
	}

	return channel.ID, nil
}

// PostMessage implements API.
func (c *Client) PostMessage(ctx context.Context, channelID, text string) error {
	_, _, err := c.api.PostMessageContext(
		ctx,
		channelID,
		slack.MsgOptionText(text, false),
	)

	return err
}

// CheckChannel implements API.
func (c *Client) CheckChannel(ctx context.Context, channelID string) error {
	_, err := c.api.GetConversationInfoContext(
		ctx,
		&slack.GetConversationInfoInput{ChannelID: channelID},
	)
	if err != nil && err.Error() == "channel_not_found" {
		return ErrChannelNotFound
	}

	return err
}

// RetryAfter extracts the backoff delay from a rate-limit error, reporting
// whether the error was a rate limit at all.
func RetryAfter(err error) (time.Duration, bool) {
	var rle *slack.RateLimitedError
	if errors.As(err, &rle) {
		return rle.RetryAfter, true
	}

	return 0, false
}
