package models

import "time"

// Channel is a Slack channel enrolled for pairing rounds. One row per
// (channel_id, team_id) pair.
type Channel struct {
	ID           uint   `gorm:"primaryKey"`
	ChannelID    string `gorm:"index;uniqueIndex:channel_uc"`
	TeamID       string `gorm:"index;uniqueIndex:channel_uc"`
	EnterpriseID string
	IsActive     bool

	// LastSentOn is the date of the most recent pairing round, nil until the
	// first round is attempted. Stored as midnight UTC.
	LastSentOn *time.Time

	// ConversationDay selects the weekday rounds start on (time.Weekday,
	// Sunday = 0).
	ConversationDay int `gorm:"default:2"`

	// ConversationFrequencyWeeks is the minimum interval between rounds.
	ConversationFrequencyWeeks int `gorm:"default:2"`

	SendMidpointReminder bool `gorm:"default:true"`

	// MembersCircle holds the round-robin rotation state: the ordered member
	// IDs returned by the last pairing. Mutated only by pairing rounds.
	MembersCircle StringList `gorm:"type:text"`

	AddedOn time.Time `gorm:"autoCreateTime"`
}
