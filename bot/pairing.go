package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"smores/dal"
	"smores/models"
	"smores/pairing"
	"smores/slackutil"
)

const midpointText = ":wave: Mid point reminder - if you haven't met yet, make it happen!"

var icebreakers = []string{
	"What's the best thing you've eaten recently?",
	"What hobby would you get into if time and money weren't an issue?",
	"What's a small thing that made your week better?",
	"What was your first job, and what did it teach you?",
	"If you could live in any city for a year, which one would you pick?",
	"What's a book, show, or podcast you'd recommend to anyone?",
	"What's something you've learned in the last month?",
	"Coffee, tea, or something else entirely?",
}

// MatchPairsPeriodic runs one pairing round for every eligible channel:
// active, configured for today's weekday, and past its pairing frequency.
// Channels are processed in bounded pages; a channel that fails mid-round is
// skipped for the rest of this firing rather than re-queried forever.
func (b *Bot) MatchPairsPeriodic(ctx context.Context) error {
	today := b.today()
	seen := make(map[uint]struct{})

	for {
		channels, err := dal.EligibleChannels(today, channelPageSize, b.db)
		if err != nil {
			return fmt.Errorf("selecting eligible channels: %w", err)
		}

		progress := false
		for i := range channels {
			channel := &channels[i]
			if _, done := seen[channel.ID]; done {
				continue
			}
			seen[channel.ID] = struct{}{}
			progress = true

			if err := b.GenerateAndSendRound(ctx, channel); err != nil {
				b.log.Errorw("pairing round failed",
					"channel", channel.ChannelID,
					"team", channel.TeamID,
					"error", err)
			}
		}

		if !progress {
			return nil
		}
	}
}

// ForceRound runs a pairing round for one channel immediately, bypassing the
// weekday and frequency gates. A channel that is not enrolled is a no-op.
func (b *Bot) ForceRound(ctx context.Context, channelID string) error {
	channel, err := dal.GetChannelByID(channelID, b.db)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	return b.GenerateAndSendRound(ctx, channel)
}

// GenerateAndSendRound computes a pairing for the channel, persists it as a
// new conversation batch, and attempts to deliver every pair's introduction.
// A pair whose delivery fails stays GENERATED for the retry sweep; the
// channel's last_sent_on is stamped regardless so the round is not
// immediately re-triggered.
func (b *Bot) GenerateAndSendRound(ctx context.Context, channel *models.Channel) error {
	if !b.tryAcquire(channel.ChannelID) {
		b.log.Infow("round already in flight, skipping",
			"channel", channel.ChannelID)
		return nil
	}
	defer b.release(channel.ChannelID)

	api, cred, err := b.client(channel.EnterpriseID, channel.TeamID)
	if err != nil {
		return err
	}

	opted, err := dal.CachedMemberIDs(channel.ChannelID, channel.TeamID, true, b.db)
	if err != nil {
		return err
	}

	// The persisted circle preserves rotation order but may have drifted:
	// drop members no longer opted in, weave in members the circle has not
	// seen, and never pair the bot itself.
	pool := mergePool(channel.MembersCircle, opted)
	pool = remove(pool, cred.BotUserID)

	today := b.today()
	if len(pool) < 2 {
		return dal.UpdateLastSentOn(channel, today, b.db)
	}

	b.rngMu.Lock()
	pairs, circle, err := pairing.Match(pool, b.rng)
	b.rngMu.Unlock()
	if err != nil {
		return err
	}

	batch, err := dal.AddBatch(channel, pairs, b.db)
	if err != nil {
		return err
	}
	if err := dal.UpdateMembersCircle(channel, circle, b.db); err != nil {
		return err
	}

	allSent := b.deliverIntros(ctx, api, channel.ChannelID, &batch.Conversations)

	if err := dal.UpdateLastSentOn(channel, today, b.db); err != nil {
		return err
	}
	if allSent {
		batch.Conversations.Status = models.StatusIntroSent
		batch.SentOn = &today
	} else {
		batch.Conversations.Status = models.StatusPartiallySent
	}

	return dal.SaveBatch(batch, b.db)
}

// RetryFailedIntros re-attempts delivery for every batch stuck with
// undelivered pairs, touching only pairs still GENERATED so already-delivered
// pairs are never messaged twice.
func (b *Bot) RetryFailedIntros(ctx context.Context) error {
	batches, err := dal.PendingIntroBatches(b.db)
	if err != nil {
		return fmt.Errorf("selecting pending batches: %w", err)
	}

	today := b.today()
	for i := range batches {
		batch := &batches[i]

		channel, err := dal.GetChannel(batch.ChannelID, batch.TeamID, b.db)
		if err != nil {
			b.log.Errorw("channel lookup failed for pending batch",
				"channel", batch.ChannelID, "team", batch.TeamID, "error", err)
			continue
		}
		api, _, err := b.client(channel.EnterpriseID, channel.TeamID)
		if err != nil {
			return err
		}

		allSent := b.deliverIntros(ctx, api, batch.ChannelID, &batch.Conversations)
		if allSent {
			batch.Conversations.Status = models.StatusIntroSent
			batch.SentOn = &today
		} else {
			batch.Conversations.Status = models.StatusPartiallySent
		}

		if err := dal.SaveBatch(batch, b.db); err != nil {
			return err
		}
	}

	return nil
}

// SendMidpointReminders nudges every pair whose intro went out a fixed number
// of days ago, reusing the direct conversation opened for the intro. Channels
// that have the reminder disabled are skipped.
func (b *Bot) SendMidpointReminders(ctx context.Context) error {
	day := b.today().AddDate(0, 0, -midpointOffsetDays)
	batches, err := dal.MidpointBatches(day, b.db)
	if err != nil {
		return fmt.Errorf("selecting midpoint batches: %w", err)
	}

	for i := range batches {
		batch := &batches[i]

		channel, err := dal.GetChannel(batch.ChannelID, batch.TeamID, b.db)
		if err != nil {
			b.log.Errorw("channel lookup failed for midpoint batch",
				"channel", batch.ChannelID, "team", batch.TeamID, "error", err)
			continue
		}
		if !channel.SendMidpointReminder {
			continue
		}
		api, _, err := b.client(channel.EnterpriseID, channel.TeamID)
		if err != nil {
			return err
		}

		allSent := true
		for j := range batch.Conversations.Pairs {
			pair := &batch.Conversations.Pairs[j]
			if pair.Status != models.StatusIntroSent || pair.MidpointSentOn != "" {
				continue
			}

			time.Sleep(b.sendDelay)
			if err := api.PostMessage(ctx, pair.ChannelID, midpointText); err != nil {
				allSent = false
				b.log.Errorw("error sending midpoint",
					"channel", batch.ChannelID, "pair", pair.Pair, "error", err)
				continue
			}
			pair.MidpointSentOn = b.today().Format(models.DateFormat)
		}

		if allSent {
			batch.Conversations.MidpointStatus = models.MidpointSent
		} else {
			batch.Conversations.MidpointStatus = models.StatusPartiallySent
		}

		if err := dal.SaveBatch(batch, b.db); err != nil {
			return err
		}
	}

	return nil
}

// deliverIntros attempts delivery for every pair still GENERATED: open a
// direct conversation with the pair and post the introduction. One pair's
// failure never aborts its siblings. Reports whether no undelivered pair
// remains.
func (b *Bot) deliverIntros(
	ctx context.Context,
	api slackutil.API,
	sourceChannelID string,
	doc *models.Document,
) bool {
	allSent := true
	for i := range doc.Pairs {
		pair := &doc.Pairs[i]
		if pair.Status != models.StatusGenerated {
			continue
		}

		time.Sleep(b.sendDelay)
		conversationID, err := api.OpenConversation(ctx, pair.Pair)
		if err != nil {
			allSent = false
			b.log.Errorw("error opening conversation",
				"channel", sourceChannelID, "pair", pair.Pair, "error", err)
			continue
		}
		err = api.PostMessage(ctx, conversationID, b.introMessage(sourceChannelID, pair.Pair))
		if err != nil {
			allSent = false
			b.log.Errorw("error sending intro",
				"channel", sourceChannelID, "pair", pair.Pair, "error", err)
			continue
		}

		pair.Status = models.StatusIntroSent
		pair.ChannelID = conversationID
	}

	return allSent
}

func (b *Bot) introMessage(channelID string, pair []string) string {
	organizer := pair[b.intn(len(pair))]
	iceBreaker := icebreakers[b.intn(len(icebreakers))]

	return fmt.Sprintf(
		":wave: You've been matched for a S'mores chat as you're a member of <#%s>, "+
			"to get to know your teammates better by talking about anything you like - "+
			"work, hobbies, interests, or anything else that's on your mind.\n"+
			"<@%s>, you have been randomly chosen as the organizer for this group to "+
			"schedule a meet, huddle or coffee (if you are located in the same area) "+
			"for this or next week.\n\n"+
			"Here's an Ice breaker to get this conversation started: _%s_",
		channelID, organizer, iceBreaker,
	)
}

// mergePool reconciles the rotation circle with the current opted-in cache:
// circle order is kept for members still cached, and cached members the
// circle has not seen yet are appended.
func mergePool(circle []string, cached []string) []string {
	cachedSet := make(map[string]struct{}, len(cached))
	for _, m := range cached {
		cachedSet[m] = struct{}{}
	}

	pool := make([]string, 0, len(cached))
	inPool := make(map[string]struct{}, len(cached))
	for _, m := range circle {
		if _, ok := cachedSet[m]; !ok {
			continue
		}
		if _, dup := inPool[m]; dup {
			continue
		}
		pool = append(pool, m)
		inPool[m] = struct{}{}
	}
	for _, m := range cached {
		if _, dup := inPool[m]; dup {
			continue
		}
		pool = append(pool, m)
		inPool[m] = struct{}{}
	}

	return pool
}

func remove(members []string, memberID string) []string {
	if memberID == "" {
		return members
	}

	out := members[:0]
	for _, m := range members {
		if m != memberID {
			out = append(out, m)
		}
	}

	return out
}
