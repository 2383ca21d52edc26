package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Pair and batch delivery statuses. A pair that fails delivery simply stays
// GENERATED and is picked up by the retry sweep.
const (
	StatusGenerated     = "GENERATED"
	StatusIntroSent     = "INTRO_SENT"
	StatusPartiallySent = "PARTIALLY_SENT"
	MidpointSent        = "SENT"
)

// DateFormat is used for date stamps stored inside the conversations document.
const DateFormat = "2006-01-02"

// Pair is one matched group within a batch. Pair normally has two members;
// at most one pair per batch carries three (the odd-member accommodation).
type Pair struct {
	Pair   []string `json:"pair"`
	Status string   `json:"status"`

	// ChannelID is the direct conversation opened for this pair, set on the
	// first successful intro delivery and reused for the mid-point reminder.
	ChannelID      string `json:"channel_id,omitempty"`
	MidpointSentOn string `json:"midpoint_sent_on,omitempty"`
}

// Document is the conversations column of a batch: a JSON document mutated in
// place as delivery progresses so the history of attempts is preserved.
type Document struct {
	Status         string `json:"status"`
	MidpointStatus string `json:"midpoint_status,omitempty"`
	Pairs          []Pair `json:"pairs"`
}

// ConversationBatch records one pairing round for a channel. Batches are
// never deleted; SentOn stays nil until every pair's intro has been delivered.
type ConversationBatch struct {
	ID            uint     `gorm:"primaryKey"`
	ChannelID     string   `gorm:"index"`
	TeamID        string   `gorm:"index"`
	Conversations Document `gorm:"type:text"`
	CreatedOn     time.Time `gorm:"autoCreateTime"`
	SentOn        *time.Time
}

// Value implements driver.Valuer, storing the document as JSON text.
func (d Document) Value() (driver.Value, error) {
	return json.Marshal(d)
}

// Scan implements sql.Scanner.
func (d *Document) Scan(src interface{}) error {
	return scanJSON(src, d)
}

// StringList stores an ordered list of member IDs as a JSON text column.
type StringList []string

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		l = StringList{}
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner.
func (l *StringList) Scan(src interface{}) error {
	return scanJSON(src, l)
}

func scanJSON(src, dst interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("unsupported column type %T", src)
	}
}
