package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/AzielCF/az-connect/messaging/domain/channel"
	"github.com/AzielCF/az-connect/messaging/domain/message"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type MessageGormRepository struct {
	db *gorm.DB
}

func NewMessageGormRepository(db *gorm.DB) *MessageGormRepository {
	return &MessageGormRepository{db: db}
}

func (r *MessageGormRepository) Save(ctx context.Context, msg *message.Envelope) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	model := toMessageModel(msg)
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *MessageGormRepository) Recent(ctx context.Context, channelID, participantID string, limit int) ([]message.Envelope, error) {
	if limit <= 0 {
		return nil, nil
	}
	var models []messageModel
	err := r.db.WithContext(ctx).
		Where("channel_id = ? AND participant_id = ?", channelID, participantID).
		Order("ts DESC").Order("created_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	res := make([]message.Envelope, len(models))
	for i, m := range models {
		res[i] = fromMessageModel(m)
	}
	return res, nil
}

func (r *MessageGormRepository) UpdateStatus(ctx context.Context, channelID, providerMessageID, status string) error {
	return r.db.WithContext(ctx).Model(&messageModel{}).
		Where("channel_id = ? AND provider_message_id = ?", channelID, providerMessageID).
		Update("status", status).Error
}

func toMessageModel(msg *message.Envelope) messageModel {
	var media string
	if msg.Media != nil {
		if b, err := json.Marshal(msg.Media); err == nil {
			media = string(b)
		}
	}
	return messageModel{
		ID:                msg.ID,
		ProviderMessageID: msg.ProviderMessageID,
		ChannelID:         msg.ChannelID,
		CompanyID:         msg.CompanyID,
		ParticipantID:     msg.ParticipantID,
		Direction:         string(msg.Direction),
		From:              msg.From,
		To:                msg.To,
		Body:              nullString(msg.Body),
		Media:             nullString(media),
		Timestamp:         msg.Timestamp,
		FromBot:           msg.FromBot,
		Status:            msg.Status,
		CreatedAt:         msg.CreatedAt,
	}
}

func fromMessageModel(m messageModel) message.Envelope {
	env := message.Envelope{
		ID:                m.ID,
		ProviderMessageID: m.ProviderMessageID,
		ChannelID:         m.ChannelID,
		CompanyID:         m.CompanyID,
		ParticipantID:     m.ParticipantID,
		Direction:         message.Direction(m.Direction),
		From:              m.From,
		To:                m.To,
		Body:              nullStringValue(m.Body),
		Timestamp:         m.Timestamp,
		FromBot:           m.FromBot,
		Status:            m.Status,
		CreatedAt:         m.CreatedAt,
	}
	if m.Media.Valid && m.Media.String != "" {
		var media channel.MediaRef
		if err := json.Unmarshal([]byte(m.Media.String), &media); err == nil {
			env.Media = &media
		}
	}
	return env
}
