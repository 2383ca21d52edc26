// Package bot implements the conversation lifecycle manager and membership
// synchronizer: it pairs channel members into S'mores chats, delivers and
// retries the introductions, sends mid-point reminders, and keeps the local
// membership cache reconciled with the live Slack roster.
package bot

import (
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"smores/creds"
	"smores/slackutil"
	"smores/tasks"
)

const (
	// rosterPageSize is the page size for draining a channel roster.
	rosterPageSize = 200

	// channelPageSize bounds how many eligible channels are loaded per query
	// during a periodic pairing pass.
	channelPageSize = 10

	// midpointOffsetDays is how long after a fully delivered round the
	// mid-point reminder goes out.
	midpointOffsetDays = 8

	// defaultSendDelay paces outbound Slack calls within a unit of work.
	defaultSendDelay = 1200 * time.Millisecond

	// rateLimitFallback is slept on a rate-limit response that carries no
	// retry delay.
	rateLimitFallback = 10 * time.Second
)

// Bot owns the database, credential store, and Slack client factory shared by
// every unit of work.
type Bot struct {
	db      *gorm.DB
	creds   creds.Store
	clients slackutil.Factory
	runner  *tasks.Runner
	log     *zap.SugaredLogger

	sendDelay time.Duration
	now       func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand

	flightMu sync.Mutex
	inFlight map[string]struct{}
}

// Config carries the Bot's dependencies. DB, Creds, Clients, and Log are
// required; the rest default to production values and exist so tests can pin
// the clock, the randomness source, and the send pacing.
type Config struct {
	DB      *gorm.DB
	Creds   creds.Store
	Clients slackutil.Factory
	Log     *zap.SugaredLogger

	Runner    *tasks.Runner
	SendDelay *time.Duration
	Now       func() time.Time
	Rand      *rand.Rand
}

// New initialises a new S'mores bot.
func New(cfg Config) *Bot {
	bot := &Bot{
		db:        cfg.DB,
		creds:     cfg.Creds,
		clients:   cfg.Clients,
		runner:    cfg.Runner,
		log:       cfg.Log,
		sendDelay: defaultSendDelay,
		now:       cfg.Now,
		rng:       cfg.Rand,
		inFlight:  make(map[string]struct{}),
	}

	if bot.runner == nil {
		bot.runner = tasks.NewRunner(cfg.Log)
	}
	if cfg.SendDelay != nil {
		bot.sendDelay = *cfg.SendDelay
	}
	if bot.now == nil {
		bot.now = time.Now
	}
	if bot.rng == nil {
		bot.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	return bot
}

// Wait blocks until background tasks spawned by the bot have drained.
func (b *Bot) Wait() {
	b.runner.Wait()
}

// today returns the current date as midnight UTC.
func (b *Bot) today() time.Time {
	now := b.now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// client resolves the workspace credential and builds an API client for it.
func (b *Bot) client(enterpriseID, teamID string) (slackutil.API, creds.Credentials, error) {
	cred, err := b.creds.Find(enterpriseID, teamID)
	if err != nil {
		return nil, creds.Credentials{}, err
	}

	return b.clients(cred.BotToken), cred, nil
}

func (b *Bot) intn(n int) int {
	b.rngMu.Lock()
	defer b.rngMu.Unlock()
	return b.rng.Intn(n)
}

// tryAcquire claims the per-channel single-flight slot so overlapping trigger
// firings cannot run two rounds for the same channel at once.
func (b *Bot) tryAcquire(channelID string) bool {
	b.flightMu.Lock()
	defer b.flightMu.Unlock()

	if _, running := b.inFlight[channelID]; running {
		return false
	}
	b.inFlight[channelID] = struct{}{}
	return true
}

func (b *Bot) release(channelID string) {
	b.flightMu.Lock()
	defer b.flightMu.Unlock()
	delete(b.inFlight, channelID)
}
