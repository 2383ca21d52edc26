package dal

import (
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"smores/models"
)

// InitDB opens the database and migrates the schema.
func InitDB(dbPath string) (*gorm.DB, error) {
	db, err := gorm.Open(
		sqlite.Open(dbPath),
		&gorm.Config{Logger: logger.Default.LogMode(logger.Silent)},
	)
	if err != nil {
		return nil, err
	}

	err = db.AutoMigrate(
		&models.Channel{},
		&models.ChannelMember{},
		&models.ConversationBatch{},
	)
	if err != nil {
		return nil, err
	}

	return db, nil
}

// GetChannel gets the channel for the given channel & team.
func GetChannel(channelID, teamID string, db *gorm.DB) (*models.Channel, error) {
	var channel models.Channel
	err := db.Where(
		&models.Channel{
			ChannelID: channelID,
			TeamID:    teamID,
		},
	).Take(&channel).Error

	if err != nil {
		return nil, err
	}

	return &channel, nil
}

// GetChannelByID gets a channel by its platform channel ID alone, used by the
// force-round entry point where no team context is available.
func GetChannelByID(channelID string, db *gorm.DB) (*models.Channel, error) {
	var channel models.Channel
	err := db.Where(&models.Channel{ChannelID: channelID}).Take(&channel).Error
	if err != nil {
		return nil, err
	}

	return &channel, nil
}

// AddChannel inserts a new active channel.
func AddChannel(
	channelID, teamID, enterpriseID string,
	db *gorm.DB,
) (*models.Channel, error) {
	channel := models.Channel{
		ChannelID:    channelID,
		TeamID:       teamID,
		EnterpriseID: enterpriseID,
		IsActive:     true,
	}
	if err := db.Create(&channel).Error; err != nil {
		return nil, err
	}

	return &channel, nil
}

// SetChannelActive toggles a channel's participation in periodic pairing.
func SetChannelActive(channel *models.Channel, active bool, db *gorm.DB) error {
	channel.IsActive = active
	return db.Model(channel).Update("is_active", active).Error
}

// EligibleChannels returns up to limit channels due for a fresh pairing round
// on the given day: active, configured for this weekday, and either never
// paired or last paired at least conversation_frequency_weeks ago.
func EligibleChannels(
	day time.Time,
	limit int,
	db *gorm.DB,
) ([]models.Channel, error) {
	var channels []models.Channel
	err := db.
		Where("is_active = ? AND conversation_day = ?", true, int(day.Weekday())).
		Where(
			"last_sent_on IS NULL OR julianday(?) - julianday(last_sent_on) >= conversation_frequency_weeks * 7",
			day.Format(models.DateFormat),
		).
		Limit(limit).
		Find(&channels).Error
	if err != nil {
		return nil, err
	}

	return channels, nil
}

// UpdateLastSentOn stamps the date of the channel's most recent pairing round.
func UpdateLastSentOn(channel *models.Channel, day time.Time, db *gorm.DB) error {
	channel.LastSentOn = &day
	return db.Model(channel).Update("last_sent_on", day).Error
}

// UpdateMembersCircle persists the rotation state for the next round.
func UpdateMembersCircle(
	channel *models.Channel,
	circle []string,
	db *gorm.DB,
) error {
	channel.MembersCircle = models.StringList(circle)
	return db.Model(channel).Update("members_circle", channel.MembersCircle).Error
}

// AddMemberIfNotExists inserts a channel membership, ignoring the insert when
// the row already exists. Returns whether a row was actually inserted.
func AddMemberIfNotExists(
	memberID, channelID, teamID string,
	db *gorm.DB,
) (bool, error) {
	member := models.ChannelMember{
		ChannelID: channelID,
		TeamID:    teamID,
		MemberID:  memberID,
		IsOpted:   true,
	}
	result := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "channel_id"}, {Name: "team_id"}, {Name: "member_id"},
		},
		DoNothing: true,
	}).Create(&member)

	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected > 0, nil
}

// GetMember gets the cached membership row for the given member.
func GetMember(
	memberID, channelID, teamID string,
	db *gorm.DB,
) (*models.ChannelMember, error) {
	var member models.ChannelMember
	err := db.Where(
		&models.ChannelMember{
			ChannelID: channelID,
			TeamID:    teamID,
			MemberID:  memberID,
		},
	).Take(&member).Error

	if err != nil {
		return nil, err
	}

	return &member, nil
}

// DeleteMember removes a cached membership row, returning how many rows were
// deleted (zero when the member was not cached).
func DeleteMember(memberID, channelID, teamID string, db *gorm.DB) (int64, error) {
	result := db.Where(
		&models.ChannelMember{
			ChannelID: channelID,
			TeamID:    teamID,
			MemberID:  memberID,
		},
	).Delete(&models.ChannelMember{})

	return result.RowsAffected, result.Error
}

// CachedMemberIDs returns the cached member IDs for a channel, optionally
// restricted to members still opted into pairings.
func CachedMemberIDs(
	channelID, teamID string,
	optedOnly bool,
	db *gorm.DB,
) ([]string, error) {
	query := db.Model(&models.ChannelMember{}).
		Where("channel_id = ? AND team_id = ?", channelID, teamID)
	if optedOnly {
		query = query.Where("is_opted = ?", true)
	}

	var memberIDs []string
	if err := query.Order("id").Pluck("member_id", &memberIDs).Error; err != nil {
		return nil, err
	}

	return memberIDs, nil
}

// AddBatch persists a new conversation batch with every pair GENERATED.
func AddBatch(
	channel *models.Channel,
	pairs [][]string,
	db *gorm.DB,
) (*models.ConversationBatch, error) {
	doc := models.Document{Status: models.StatusGenerated}
	for _, pair := range pairs {
		doc.Pairs = append(doc.Pairs, models.Pair{
			Pair:   pair,
			Status: models.StatusGenerated,
		})
	}

	batch := models.ConversationBatch{
		ChannelID:     channel.ChannelID,
		TeamID:        channel.TeamID,
		Conversations: doc,
	}
	if err := db.Create(&batch).Error; err != nil {
		return nil, err
	}

	return &batch, nil
}

// SaveBatch writes back a batch whose conversations document was mutated in
// place during a delivery pass.
func SaveBatch(batch *models.ConversationBatch, db *gorm.DB) error {
	return db.Save(batch).Error
}

// PendingIntroBatches returns batches that still have undelivered intros:
// sent_on unset and batch status GENERATED or PARTIALLY_SENT.
func PendingIntroBatches(db *gorm.DB) ([]models.ConversationBatch, error) {
	var batches []models.ConversationBatch
	err := db.
		Where(
			"sent_on IS NULL AND json_extract(conversations, '$.status') IN ?",
			[]string{models.StatusGenerated, models.StatusPartiallySent},
		).
		Find(&batches).Error
	if err != nil {
		return nil, err
	}

	return batches, nil
}

// MidpointBatches returns batches fully delivered on the given day that have
// not had a mid-point reminder pass yet.
func MidpointBatches(day time.Time, db *gorm.DB) ([]models.ConversationBatch, error) {
	var batches []models.ConversationBatch
	err := db.
		Where(
			"sent_on >= ? AND sent_on < ? AND json_extract(conversations, '$.midpoint_status') IS NULL",
			day, day.AddDate(0, 0, 1),
		).
		Find(&batches).Error
	if err != nil {
		return nil, err
	}

	return batches, nil
}

// AllChannels returns every enrolled channel, used by the periodic membership
// reconciliation pass.
func AllChannels(db *gorm.DB) ([]models.Channel, error) {
	var channels []models.Channel
	if err := db.Find(&channels).Error; err != nil {
		return nil, err
	}

	return channels, nil
}
