// Package creds resolves the bot credential used to call the Slack API on
// behalf of a workspace.
package creds

import (
	"errors"
	"fmt"
	"os"
)

// ErrNoInstallation is returned when no credential is known for a workspace.
var ErrNoInstallation = errors.New("creds: no installation found")

// Credentials is the bot identity for one workspace installation.
type Credentials struct {
	BotToken  string
	BotUserID string
}

// Store looks up the bot credential for a workspace. The OAuth installation
// flow that populates a multi-workspace store lives outside this service;
// single-workspace deployments use StaticStore.
type Store interface {
	Find(enterpriseID, teamID string) (Credentials, error)
}

// StaticStore serves the same credential for every workspace, suitable for a
// bot installed into a single workspace.
type StaticStore struct {
	Credentials Credentials
}

// Find implements Store.
func (s StaticStore) Find(enterpriseID, teamID string) (Credentials, error) {
	if s.Credentials.BotToken == "" {
		return Credentials{}, ErrNoInstallation
	}
	return s.Credentials, nil
}

// FromEnv builds a StaticStore from SLACK_BOT_TOKEN and SLACK_BOT_USER_ID.
func FromEnv() (StaticStore, error) {
	token := os.Getenv("SLACK_BOT_TOKEN")
	if token == "" {
		return StaticStore{}, fmt.Errorf("creds: SLACK_BOT_TOKEN must be set")
	}

	return StaticStore{
		Credentials: Credentials{
			BotToken:  token,
			BotUserID: os.Getenv("SLACK_BOT_USER_ID"),
		},
	}, nil
}
