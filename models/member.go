package models

import "time"

// ChannelMember is a cached channel membership. One row per
// (channel_id, team_id, member_id); rows are deleted when a member leaves,
// opts out, or turns out to be a bot account.
type ChannelMember struct {
	ID        uint      `gorm:"primaryKey"`
	ChannelID string    `gorm:"index;uniqueIndex:channel_member_uc"`
	TeamID    string    `gorm:"index;uniqueIndex:channel_member_uc"`
	MemberID  string    `gorm:"uniqueIndex:channel_member_uc"`
	IsOpted   bool      `gorm:"default:true"`
	AddedOn   time.Time `gorm:"autoCreateTime"`
}
