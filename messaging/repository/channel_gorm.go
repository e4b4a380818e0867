package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/AzielCF/az-connect/messaging/domain/channel"
	"github.com/AzielCF/az-connect/pkg/crypto"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ChannelGormRepository struct {
	db     *gorm.DB
	sealer *crypto.Sealer
}

func NewChannelGormRepository(db *gorm.DB) *ChannelGormRepository {
	return &ChannelGormRepository{db: db}
}

// WithSealer encrypts connection configs at rest.
func (r *ChannelGormRepository) WithSealer(s *crypto.Sealer) *ChannelGormRepository {
	r.sealer = s
	return r
}

func (r *ChannelGormRepository) Create(ctx context.Context, ch *channel.Channel) error {
	if ch.ID == "" {
		ch.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if ch.CreatedAt.IsZero() {
		ch.CreatedAt = now
	}
	ch.UpdatedAt = now
	model, err := r.toChannelModel(ch)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *ChannelGormRepository) Get(ctx context.Context, id string) (*channel.Channel, error) {
	var m channelModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, channel.ErrChannelNotFound
		}
		return nil, err
	}
	return r.fromChannelModel(m)
}

// Update overwrites the stored row with ch.
func (r *ChannelGormRepository) Update(ctx context.Context, ch *channel.Channel) error {
	ch.UpdatedAt = time.Now().UTC()
	model, err := r.toChannelModel(ch)
	if err != nil {
		return err
	}
	res := r.db.WithContext(ctx).Model(&channelModel{}).Where("id = ?", ch.ID).Select("*").Updates(&model)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return channel.ErrChannelNotFound
	}
	return nil
}

func (r *ChannelGormRepository) List(ctx context.Context, filter channel.Filter) ([]channel.Channel, error) {
	q := r.db.WithContext(ctx).Model(&channelModel{})
	if filter.CompanyID != "" {
		q = q.Where("company_id = ?", filter.CompanyID)
	}
	if filter.Type != "" {
		q = q.Where("type = ?", string(filter.Type))
	}
	if filter.ExternalRef != "" {
		q = q.Where("external_ref = ?", filter.ExternalRef)
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		q = q.Where("status IN ?", statuses)
	}

	var models []channelModel
	if err := q.Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]channel.Channel, 0, len(models))
	for _, m := range models {
		ch, err := r.fromChannelModel(m)
		if err != nil {
			return nil, err
		}
		res = append(res, *ch)
	}
	return res, nil
}

func (r *ChannelGormRepository) FindByExternalRef(ctx context.Context, companyID string, t channel.ChannelType, ref string) (*channel.Channel, error) {
	var m channelModel
	err := r.db.WithContext(ctx).
		Where("company_id = ? AND type = ? AND external_ref = ?", companyID, string(t), ref).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, channel.ErrChannelNotFound
		}
		return nil, err
	}
	return r.fromChannelModel(m)
}

// DeleteCascade removes dependent conversation records and the channel in one transaction.
func (r *ChannelGormRepository) DeleteCascade(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM flow_bindings WHERE channel_id = ?", id).Error; err != nil {
			return fmt.Errorf("delete bindings: %w", err)
		}
		if err := tx.Where("channel_id = ?", id).Delete(&messageModel{}).Error; err != nil {
			return fmt.Errorf("delete messages: %w", err)
		}
		res := tx.Where("id = ?", id).Delete(&channelModel{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return channel.ErrChannelNotFound
		}
		return nil
	})
}

// --- Mappers ---

func (r *ChannelGormRepository) toChannelModel(ch *channel.Channel) (channelModel, error) {
	cfg, err := json.Marshal(ch.Config)
	if err != nil {
		return channelModel{}, fmt.Errorf("encode connection config: %w", err)
	}
	sealed, err := r.sealer.Seal(string(cfg))
	if err != nil {
		return channelModel{}, fmt.Errorf("seal connection config: %w", err)
	}
	meta, err := json.Marshal(ch.Metadata)
	if err != nil {
		return channelModel{}, fmt.Errorf("encode metadata: %w", err)
	}

	var ref *string
	if ch.ExternalRef != "" {
		r := ch.ExternalRef
		ref = &r
	}

	return channelModel{
		ID:          ch.ID,
		CompanyID:   ch.CompanyID,
		Type:        string(ch.Type),
		Name:        ch.Name,
		Status:      string(ch.Status),
		Number:      nullString(ch.Number),
		ExternalRef: ref,
		Config:      nullString(sealed),
		Metadata:    nullString(string(meta)),
		ConnectedAt: ch.ConnectedAt,
		CreatedAt:   ch.CreatedAt,
		UpdatedAt:   ch.UpdatedAt,
	}, nil
}

func (r *ChannelGormRepository) fromChannelModel(m channelModel) (*channel.Channel, error) {
	ch := &channel.Channel{
		ID:          m.ID,
		CompanyID:   m.CompanyID,
		Type:        channel.ChannelType(m.Type),
		Name:        m.Name,
		Status:      channel.ChannelStatus(m.Status),
		Number:      nullStringValue(m.Number),
		ConnectedAt: m.ConnectedAt,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
	if m.ExternalRef != nil {
		ch.ExternalRef = *m.ExternalRef
	}
	if m.Config.Valid && m.Config.String != "" {
		raw, err := r.sealer.Open(m.Config.String)
		if err != nil {
			return nil, fmt.Errorf("open connection config of %s: %w", m.ID, err)
		}
		if err := json.Unmarshal([]byte(raw), &ch.Config); err != nil {
			return nil, fmt.Errorf("decode connection config of %s: %w", m.ID, err)
		}
	}
	if m.Metadata.Valid && m.Metadata.String != "" {
		if err := json.Unmarshal([]byte(m.Metadata.String), &ch.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata of %s: %w", m.ID, err)
		}
	}
	return ch, nil
}
