package bot

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"smores/creds"
	"smores/dal"
	"smores/slackutil"
)

const testBotUserID = "UBOT"

// fakeSlack scripts the Slack API surface for tests. Zero value is a
// workspace with an empty roster where every call succeeds.
type fakeSlack struct {
	mu sync.Mutex

	// pages is the scripted roster, one slice per page.
	pages [][]string

	// bots marks accounts reported as bot users.
	bots map[string]bool

	// botErrs queues errors returned by IsBot for a user, popped one per
	// call before the real answer is served.
	botErrs map[string][]error

	// openFail fails OpenConversation for any pair containing the member.
	openFail map[string]error

	// postFail fails PostMessage for the given conversation ID.
	postFail map[string]error

	// missing marks channels CheckChannel cannot see.
	missing map[string]bool

	// opened records every conversation opened, in order.
	opened [][]string

	// posts records every message posted, by conversation ID.
	posts map[string][]string

	nextConvo int
}

func (f *fakeSlack) MembersPage(
	_ context.Context,
	_, cursor string,
	_ int,
) ([]string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	page := 0
	if cursor != "" {
		var err error
		if page, err = strconv.Atoi(cursor); err != nil {
			return nil, "", fmt.Errorf("bad cursor %q", cursor)
		}
	}
	if page >= len(f.pages) {
		return nil, "", nil
	}

	next := ""
	if page+1 < len(f.pages) {
		next = strconv.Itoa(page + 1)
	}

	return f.pages[page], next, nil
}

func (f *fakeSlack) IsBot(_ context.Context, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if queued := f.botErrs[userID]; len(queued) > 0 {
		err := queued[0]
		f.botErrs[userID] = queued[1:]
		return false, err
	}

	return f.bots[userID], nil
}

func (f *fakeSlack) OpenConversation(
	_ context.Context,
	userIDs []string,
) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, userID := range userIDs {
		if err := f.openFail[userID]; err != nil {
			return "", err
		}
	}

	f.nextConvo++
	conversationID := fmt.Sprintf("D%03d", f.nextConvo)
	f.opened = append(f.opened, append([]string(nil), userIDs...))

	return conversationID, nil
}

func (f *fakeSlack) PostMessage(_ context.Context, channelID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.postFail[channelID]; err != nil {
		return err
	}

	if f.posts == nil {
		f.posts = make(map[string][]string)
	}
	f.posts[channelID] = append(f.posts[channelID], text)

	return nil
}

func (f *fakeSlack) CheckChannel(_ context.Context, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.missing[channelID] {
		return slackutil.ErrChannelNotFound
	}

	return nil
}

func (f *fakeSlack) postCount(channelID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.posts[channelID])
}

func (f *fakeSlack) openCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.opened)
}

// newTestBot builds a bot over an in-memory database with a pinned clock
// (Tuesday 2024-04-16, matching the default conversation day), no send
// pacing, and a fixed randomness seed.
func newTestBot(t *testing.T, fake *fakeSlack) (*Bot, *gorm.DB) {
	t.Helper()

	db, err := dal.InitDB(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	if err != nil {
		t.Fatalf("init db: %v", err)
	}

	noDelay := time.Duration(0)
	b := New(Config{
		DB: db,
		Creds: creds.StaticStore{
			Credentials: creds.Credentials{
				BotToken:  "xoxb-test",
				BotUserID: testBotUserID,
			},
		},
		Clients:   func(string) slackutil.API { return fake },
		Log:       zap.NewNop().Sugar(),
		SendDelay: &noDelay,
		Now: func() time.Time {
			return time.Date(2024, time.April, 16, 12, 0, 0, 0, time.UTC)
		},
		Rand: rand.New(rand.NewSource(1)),
	})

	return b, db
}
