package bot

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"smores/dal"
	"smores/slackutil"
)

// The methods in this file back the `/smores` admin actions. The slash
// command transport lives outside this service; each method returns the
// user-facing reply for the triggering command.

// Enable enrolls a channel for pairings, or re-activates it. On first
// enrollment the membership cache is populated asynchronously.
func (b *Bot) Enable(
	ctx context.Context,
	channelID, teamID, enterpriseID string,
) (string, error) {
	api, _, err := b.client(enterpriseID, teamID)
	if err != nil {
		return "", err
	}

	if err := api.CheckChannel(ctx, channelID); err != nil {
		if errors.Is(err, slackutil.ErrChannelNotFound) {
			return "For private channels, please add the bot user to the channel first", nil
		}
		return "", err
	}

	channel, err := dal.GetChannel(channelID, teamID, b.db)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if _, err := dal.AddChannel(channelID, teamID, enterpriseID, b.db); err != nil {
			return "", err
		}
		b.runner.Go("cache-channel-members", func() error {
			return b.SyncChannelMembers(context.Background(), channelID, teamID, enterpriseID)
		})
	case err != nil:
		return "", err
	default:
		if err := dal.SetChannelActive(channel, true, b.db); err != nil {
			return "", err
		}
	}

	return "S'mores fireside chats enabled", nil
}

// Disable stops periodic pairings for a channel. The membership cache is
// kept so re-enabling resumes where things left off.
func (b *Bot) Disable(channelID, teamID string) (string, error) {
	channel, err := dal.GetChannel(channelID, teamID, b.db)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "This channel is not set up for S'mores chats yet.", nil
	}
	if err != nil {
		return "", err
	}

	if err := dal.SetChannelActive(channel, false, b.db); err != nil {
		return "", err
	}

	return "S'mores fireside chats disabled", nil
}

// OptIn re-adds the calling member to the channel's pairings.
func (b *Bot) OptIn(memberID, channelID, teamID string) string {
	b.runner.Go("add-member", func() error {
		return b.AddMember(context.Background(), memberID, channelID, teamID)
	})

	return "You are now opted in for pairings in this channel."
}

// OptOut removes the calling member from the channel's pairings.
func (b *Bot) OptOut(memberID, channelID, teamID string) (string, error) {
	if _, err := dal.DeleteMember(memberID, channelID, teamID, b.db); err != nil {
		return "", err
	}

	return "You are now opted out from pairings in this channel. " +
		"Use `opt_in` command to rejoin.", nil
}

// Exclude removes an arbitrary member from the channel's pairings, an admin
// action for accounts that should never be matched.
func (b *Bot) Exclude(memberID, channelID, teamID string) (string, error) {
	_, err := dal.GetMember(memberID, channelID, teamID, b.db)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Sprintf("User <@%s> not found in the channel pairings.", memberID), nil
	}
	if err != nil {
		return "", err
	}

	if _, err := dal.DeleteMember(memberID, channelID, teamID, b.db); err != nil {
		return "", err
	}

	return fmt.Sprintf("User <@%s> has been removed from pairings.", memberID), nil
}
