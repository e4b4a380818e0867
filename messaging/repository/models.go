package repository

import (
	"context"
	"database/sql"
	"time"

	"gorm.io/gorm"
)

// --- Persistence Models ---

type channelModel struct {
	ID          string         `gorm:"primaryKey;column:id"`
	CompanyID   string         `gorm:"column:company_id;not null;index;uniqueIndex:idx_channel_identity"`
	Type        string         `gorm:"column:type;not null;uniqueIndex:idx_channel_identity"`
	Name        string         `gorm:"column:name;not null"`
	Status      string         `gorm:"column:status;not null;default:'INACTIVE';index"`
	Number      sql.NullString `gorm:"column:number"`
	ExternalRef *string        `gorm:"column:external_ref;uniqueIndex:idx_channel_identity"`
	Config      sql.NullString `gorm:"column:connection_config;type:text"` // JSON
	Metadata    sql.NullString `gorm:"column:metadata;type:text"`          // JSON
	ConnectedAt *time.Time     `gorm:"column:connected_at"`
	CreatedAt   time.Time      `gorm:"column:created_at;not null"`
	UpdatedAt   time.Time      `gorm:"column:updated_at;not null"`
}

func (channelModel) TableName() string { return "channels" }

type messageModel struct {
	ID                string         `gorm:"primaryKey;column:id"`
	ProviderMessageID string         `gorm:"column:provider_message_id;index"`
	ChannelID         string         `gorm:"column:channel_id;not null;index:idx_messages_conversation"`
	CompanyID         string         `gorm:"column:company_id;not null"`
	ParticipantID     string         `gorm:"column:participant_id;index:idx_messages_conversation"`
	Direction         string         `gorm:"column:direction;not null"`
	From              string         `gorm:"column:from_id"`
	To                string         `gorm:"column:to_id"`
	Body              sql.NullString `gorm:"column:body;type:text"`
	Media             sql.NullString `gorm:"column:media;type:text"` // JSON
	Timestamp         int64          `gorm:"column:ts;not null;index:idx_messages_conversation"`
	FromBot           bool           `gorm:"column:from_bot;default:false"`
	Status            string         `gorm:"column:status"`
	CreatedAt         time.Time      `gorm:"column:created_at;not null"`
}

func (messageModel) TableName() string { return "messages" }

type participantModel struct {
	ID          string         `gorm:"primaryKey;column:id"`
	CompanyID   string         `gorm:"column:company_id;not null;uniqueIndex:idx_participant_identity"`
	ExternalID  string         `gorm:"column:external_id;not null;uniqueIndex:idx_participant_identity"`
	DisplayName sql.NullString `gorm:"column:display_name"`
	CreatedAt   time.Time      `gorm:"column:created_at;not null"`
	UpdatedAt   time.Time      `gorm:"column:updated_at;not null"`
}

func (participantModel) TableName() string { return "participants" }

type flowModel struct {
	ID        string    `gorm:"primaryKey;column:id"`
	CompanyID string    `gorm:"column:company_id;not null;index"`
	Name      string    `gorm:"column:name;not null"`
	Active    bool      `gorm:"column:active"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

func (flowModel) TableName() string { return "flows" }

type bindingModel struct {
	ID        string    `gorm:"primaryKey;column:id"`
	ChannelID string    `gorm:"column:channel_id;not null;index"`
	FlowID    string    `gorm:"column:flow_id;not null"`
	Active    bool      `gorm:"column:active;default:false"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

func (bindingModel) TableName() string { return "flow_bindings" }

// Migrate creates or updates every messaging table.
func Migrate(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).AutoMigrate(
		&channelModel{},
		&messageModel{},
		&participantModel{},
		&flowModel{},
		&bindingModel{},
	)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}
