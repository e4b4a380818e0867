package repository

import (
	"context"
	"errors"
	"time"

	"github.com/AzielCF/az-connect/messaging/domain/conversation"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ConversationGormRepository struct {
	db *gorm.DB
}

func NewConversationGormRepository(db *gorm.DB) *ConversationGormRepository {
	return &ConversationGormRepository{db: db}
}

// FindParticipant returns nil, nil when the participant does not exist yet.
func (r *ConversationGormRepository) FindParticipant(ctx context.Context, companyID, externalID string) (*conversation.Participant, error) {
	var m participantModel
	err := r.db.WithContext(ctx).Where("company_id = ? AND external_id = ?", companyID, externalID).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conversation.Participant{
		ID:          m.ID,
		CompanyID:   m.CompanyID,
		ExternalID:  m.ExternalID,
		DisplayName: nullStringValue(m.DisplayName),
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}, nil
}

func (r *ConversationGormRepository) SaveParticipant(ctx context.Context, p *conversation.Participant) error {
	now := time.Now().UTC()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	return r.db.WithContext(ctx).Save(&participantModel{
		ID:          p.ID,
		CompanyID:   p.CompanyID,
		ExternalID:  p.ExternalID,
		DisplayName: nullString(p.DisplayName),
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}).Error
}

// ActiveBinding returns nil, nil when the channel has no active binding.
func (r *ConversationGormRepository) ActiveBinding(ctx context.Context, channelID string) (*conversation.Binding, error) {
	var m bindingModel
	err := r.db.WithContext(ctx).Where("channel_id = ? AND active = ?", channelID, true).
		Order("created_at DESC").First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conversation.Binding{ID: m.ID, ChannelID: m.ChannelID, FlowID: m.FlowID, Active: m.Active, CreatedAt: m.CreatedAt}, nil
}

func (r *ConversationGormRepository) AvailableFlow(ctx context.Context, companyID string) (*conversation.Flow, error) {
	var m flowModel
	err := r.db.WithContext(ctx).Where("company_id = ? AND active = ?", companyID, true).
		Order("created_at ASC").First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conversation.Flow{ID: m.ID, CompanyID: m.CompanyID, Name: m.Name, Active: m.Active, CreatedAt: m.CreatedAt}, nil
}

// Bind deactivates the channel's other bindings before storing b as active.
func (r *ConversationGormRepository) Bind(ctx context.Context, b *conversation.Binding) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	b.Active = true
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&bindingModel{}).
			Where("channel_id = ? AND id <> ? AND active = ?", b.ChannelID, b.ID, true).
			Update("active", false).Error; err != nil {
			return err
		}
		return tx.Save(&bindingModel{
			ID:        b.ID,
			ChannelID: b.ChannelID,
			FlowID:    b.FlowID,
			Active:    true,
			CreatedAt: b.CreatedAt,
		}).Error
	})
}

func (r *ConversationGormRepository) SaveFlow(ctx context.Context, f *conversation.Flow) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Save(&flowModel{
		ID:        f.ID,
		CompanyID: f.CompanyID,
		Name:      f.Name,
		Active:    f.Active,
		CreatedAt: f.CreatedAt,
	}).Error
}
