package bot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"

	"smores/dal"
	"smores/slackutil"
)

// Drift is the discrepancy between the live platform roster and the local
// membership cache for one channel.
type Drift struct {
	// NewOnPlatform are members present on the platform but missing from the
	// cache (a missed member_joined event).
	NewOnPlatform []string

	// RemovedOnPlatform are members still cached locally but gone from the
	// platform roster (a missed member_left event).
	RemovedOnPlatform []string
}

// SyncChannelMembers drains the channel's full roster from Slack and caches
// every member not already known. Inserts are idempotent, so re-running the
// sync is safe. A roster fetch error aborts the whole attempt; the caller's
// task retry picks it up. On success a bot-exclusion pass is scheduled
// asynchronously.
func (b *Bot) SyncChannelMembers(
	ctx context.Context,
	channelID, teamID, enterpriseID string,
) error {
	api, _, err := b.client(enterpriseID, teamID)
	if err != nil {
		return err
	}

	cached, err := dal.CachedMemberIDs(channelID, teamID, false, b.db)
	if err != nil {
		return err
	}
	cachedSet := make(map[string]struct{}, len(cached))
	for _, m := range cached {
		cachedSet[m] = struct{}{}
	}

	cursor := ""
	for {
		members, next, err := api.MembersPage(ctx, channelID, cursor, rosterPageSize)
		if err != nil {
			return fmt.Errorf("fetching roster for %s: %w", channelID, err)
		}

		for _, m := range members {
			if _, ok := cachedSet[m]; ok {
				continue
			}
			if _, err := dal.AddMemberIfNotExists(m, channelID, teamID, b.db); err != nil {
				return err
			}
		}

		if next == "" {
			break
		}
		cursor = next
	}

	b.runner.Go("exclude-bots", func() error {
		return b.ExcludeBots(context.Background(), channelID, teamID, enterpriseID)
	})

	return nil
}

// ExcludeBots removes cached members that turn out to be bot accounts. Each
// lookup is paced; a rate-limit response sleeps and retries the same member.
// Other lookup errors leave that member cached and move on.
func (b *Bot) ExcludeBots(
	ctx context.Context,
	channelID, teamID, enterpriseID string,
) error {
	api, _, err := b.client(enterpriseID, teamID)
	if err != nil {
		return err
	}

	members, err := dal.CachedMemberIDs(channelID, teamID, false, b.db)
	if err != nil {
		return err
	}

	for _, member := range members {
		time.Sleep(b.sendDelay)

		isBot, err := b.lookupIsBot(ctx, api, member)
		if err != nil {
			b.log.Warnw("bot lookup failed, leaving member cached",
				"member", member, "channel", channelID, "error", err)
			continue
		}
		if !isBot {
			continue
		}

		if _, err := dal.DeleteMember(member, channelID, teamID, b.db); err != nil {
			return err
		}
		b.log.Infow("removed bot account from cache",
			"member", member, "channel", channelID)
	}

	return nil
}

// ComputeDrift diffs a fresh bot-excluded roster fetch against the cache.
func (b *Bot) ComputeDrift(
	ctx context.Context,
	channelID, teamID, enterpriseID string,
) (Drift, error) {
	api, _, err := b.client(enterpriseID, teamID)
	if err != nil {
		return Drift{}, err
	}

	platform, err := b.platformMembers(ctx, api, channelID)
	if err != nil {
		return Drift{}, err
	}

	cached, err := dal.CachedMemberIDs(channelID, teamID, false, b.db)
	if err != nil {
		return Drift{}, err
	}

	return Drift{
		NewOnPlatform:     setDifference(platform, cached),
		RemovedOnPlatform: setDifference(cached, platform),
	}, nil
}

// ReconcileMembers runs the periodic compensating pass for missed member_left
// events: per channel, compute drift and drop cached members who already left
// the platform. A channel whose drift fetch fails is skipped, not fatal.
func (b *Bot) ReconcileMembers(ctx context.Context) error {
	channels, err := dal.AllChannels(b.db)
	if err != nil {
		return err
	}

	for i := range channels {
		channel := &channels[i]
		time.Sleep(b.sendDelay)

		drift, err := b.ComputeDrift(
			ctx, channel.ChannelID, channel.TeamID, channel.EnterpriseID,
		)
		if err != nil {
			b.log.Errorw("error getting members drift",
				"channel", channel.ChannelID, "error", err)
			continue
		}

		for _, member := range drift.RemovedOnPlatform {
			_, err := dal.DeleteMember(member, channel.ChannelID, channel.TeamID, b.db)
			if err != nil {
				return err
			}
		}
	}

	return nil
}

// AddMember caches a member who joined (or opted back into) an enrolled
// channel. Unknown channels and bot accounts are no-ops; a fresh insert sends
// the member an opt-out notice.
func (b *Bot) AddMember(ctx context.Context, memberID, channelID, teamID string) error {
	channel, err := dal.GetChannel(channelID, teamID, b.db)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	api, _, err := b.client(channel.EnterpriseID, teamID)
	if err != nil {
		return err
	}

	isBot, err := b.lookupIsBot(ctx, api, memberID)
	if err != nil {
		return err
	}
	if isBot {
		b.log.Warnw("user is a bot",
			"user", memberID, "channel", channelID, "team", teamID)
		return nil
	}

	inserted, err := dal.AddMemberIfNotExists(memberID, channelID, teamID, b.db)
	if err != nil {
		return err
	}
	if !inserted {
		b.log.Warnw("no user inserted",
			"user", memberID, "channel", channelID, "team", teamID)
		return nil
	}

	return api.PostMessage(ctx, memberID, fmt.Sprintf(
		"You're opted into S'mores chat since you joined the channel <#%s>. "+
			"If you do not want to participate in pairings while staying in the "+
			"channel then you can run command `/smores opt_out` in the channel.",
		channelID,
	))
}

// RemoveMember drops a member from the cache when they leave the channel.
func (b *Bot) RemoveMember(memberID, channelID, teamID string) error {
	deleted, err := dal.DeleteMember(memberID, channelID, teamID, b.db)
	if err != nil {
		return err
	}
	if deleted < 1 {
		b.log.Warnw("no user deleted",
			"user", memberID, "channel", channelID, "team", teamID)
	}

	return nil
}

// platformMembers drains the live roster and filters out bot accounts.
func (b *Bot) platformMembers(
	ctx context.Context,
	api slackutil.API,
	channelID string,
) ([]string, error) {
	var members []string
	cursor := ""
	for {
		page, next, err := api.MembersPage(ctx, channelID, cursor, rosterPageSize)
		if err != nil {
			return nil, fmt.Errorf("fetching roster for %s: %w", channelID, err)
		}
		members = append(members, page...)

		if next == "" {
			break
		}
		cursor = next
	}

	humans := members[:0]
	for _, member := range members {
		isBot, err := b.lookupIsBot(ctx, api, member)
		if err != nil {
			return nil, err
		}
		if !isBot {
			humans = append(humans, member)
		}
	}

	return humans, nil
}

// lookupIsBot queries account metadata, sleeping out rate limits and retrying
// the same lookup rather than skipping it.
func (b *Bot) lookupIsBot(
	ctx context.Context,
	api slackutil.API,
	userID string,
) (bool, error) {
	for {
		isBot, err := api.IsBot(ctx, userID)
		if err == nil {
			return isBot, nil
		}

		retryAfter, rateLimited := slackutil.RetryAfter(err)
		if !rateLimited {
			return false, err
		}

		delay := 2 * retryAfter
		if retryAfter <= 0 {
			delay = rateLimitFallback
		}
		time.Sleep(delay)
	}
}

func setDifference(a, c []string) []string {
	exclude := make(map[string]struct{}, len(c))
	for _, m := range c {
		exclude[m] = struct{}{}
	}

	diff := []string{}
	seen := make(map[string]struct{}, len(a))
	for _, m := range a {
		if _, ok := exclude[m]; ok {
			continue
		}
		if _, dup := seen[m]; dup {
			continue
		}
		diff = append(diff, m)
		seen[m] = struct{}{}
	}
	sort.Strings(diff)

	return diff
}
