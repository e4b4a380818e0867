// Package fake provides in-memory collaborators for tests of the messaging engine.
package fake

import (
	"context"
	"sort"
	"sync"

	"github.com/AzielCF/az-connect/messaging/domain/channel"
	"github.com/AzielCF/az-connect/messaging/domain/conversation"
	"github.com/AzielCF/az-connect/messaging/domain/message"
	"github.com/google/uuid"
)

// ChannelRepo stores channels by value so callers never share pointers.
type ChannelRepo struct {
	mu       sync.Mutex
	items    map[string]channel.Channel
	Deleted  []string
	Updates  int
	UpdateFn func(ch *channel.Channel) error
}

func NewChannelRepo(channels ...channel.Channel) *ChannelRepo {
	r := &ChannelRepo{items: make(map[string]channel.Channel)}
	for _, ch := range channels {
		r.items[ch.ID] = ch
	}
	return r
}

func (r *ChannelRepo) Create(_ context.Context, ch *channel.Channel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ch.ID == "" {
		ch.ID = uuid.NewString()
	}
	r.items[ch.ID] = *ch
	return nil
}

func (r *ChannelRepo) Get(_ context.Context, id string) (*channel.Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.items[id]
	if !ok {
		return nil, channel.ErrChannelNotFound
	}
	return &ch, nil
}

func (r *ChannelRepo) Update(_ context.Context, ch *channel.Channel) error {
	if r.UpdateFn != nil {
		if err := r.UpdateFn(ch); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[ch.ID]; !ok {
		return channel.ErrChannelNotFound
	}
	r.items[ch.ID] = *ch
	r.Updates++
	return nil
}

func (r *ChannelRepo) List(_ context.Context, f channel.Filter) ([]channel.Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []channel.Channel
	for _, ch := range r.items {
		if f.CompanyID != "" && ch.CompanyID != f.CompanyID {
			continue
		}
		if f.Type != "" && ch.Type != f.Type {
			continue
		}
		if f.ExternalRef != "" && ch.ExternalRef != f.ExternalRef {
			continue
		}
		if len(f.Statuses) > 0 && !containsStatus(f.Statuses, ch.Status) {
			continue
		}
		res = append(res, ch)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func containsStatus(list []channel.ChannelStatus, s channel.ChannelStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (r *ChannelRepo) FindByExternalRef(_ context.Context, companyID string, t channel.ChannelType, ref string) (*channel.Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ch := range r.items {
		if ch.CompanyID == companyID && ch.Type == t && ch.ExternalRef == ref {
			c := ch
			return &c, nil
		}
	}
	return nil, channel.ErrChannelNotFound
}

func (r *ChannelRepo) DeleteCascade(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return channel.ErrChannelNotFound
	}
	delete(r.items, id)
	r.Deleted = append(r.Deleted, id)
	return nil
}

// Status returns the stored status of id.
func (r *ChannelRepo) Status(id string) channel.ChannelStatus {
	ch, err := r.Get(context.Background(), id)
	if err != nil {
		return ""
	}
	return ch.Status
}

// Channel returns the stored copy of id or panics.
func (r *ChannelRepo) Channel(id string) channel.Channel {
	ch, err := r.Get(context.Background(), id)
	if err != nil {
		panic(err)
	}
	return *ch
}

type MessageRepo struct {
	mu       sync.Mutex
	Saved    []message.Envelope
	Statuses map[string]string
}

func NewMessageRepo() *MessageRepo {
	return &MessageRepo{Statuses: make(map[string]string)}
}

func (r *MessageRepo) Save(_ context.Context, msg *message.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	r.Saved = append(r.Saved, *msg)
	return nil
}

func (r *MessageRepo) Recent(_ context.Context, channelID, participantID string, limit int) ([]message.Envelope, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []message.Envelope
	for i := len(r.Saved) - 1; i >= 0 && len(res) < limit; i-- {
		m := r.Saved[i]
		if m.ChannelID == channelID && m.ParticipantID == participantID {
			res = append(res, m)
		}
	}
	return res, nil
}

func (r *MessageRepo) UpdateStatus(_ context.Context, channelID, providerMessageID, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Statuses[channelID+"|"+providerMessageID] = status
	return nil
}

func (r *MessageRepo) All() []message.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]message.Envelope(nil), r.Saved...)
}

type ConversationRepo struct {
	mu           sync.Mutex
	Participants map[string]conversation.Participant // companyID|externalID
	Flows        []conversation.Flow
	Bindings     []conversation.Binding
}

func NewConversationRepo() *ConversationRepo {
	return &ConversationRepo{Participants: make(map[string]conversation.Participant)}
}

func (r *ConversationRepo) FindParticipant(_ context.Context, companyID, externalID string) (*conversation.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.Participants[companyID+"|"+externalID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *ConversationRepo) SaveParticipant(_ context.Context, p *conversation.Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	r.Participants[p.CompanyID+"|"+p.ExternalID] = *p
	return nil
}

func (r *ConversationRepo) ActiveBinding(_ context.Context, channelID string) (*conversation.Binding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.Bindings) - 1; i >= 0; i-- {
		if b := r.Bindings[i]; b.ChannelID == channelID && b.Active {
			return &b, nil
		}
	}
	return nil, nil
}

func (r *ConversationRepo) AvailableFlow(_ context.Context, companyID string) (*conversation.Flow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.Flows {
		if f.CompanyID == companyID && f.Active {
			flow := f
			return &flow, nil
		}
	}
	return nil, nil
}

func (r *ConversationRepo) Bind(_ context.Context, b *conversation.Binding) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	b.Active = true
	for i := range r.Bindings {
		if r.Bindings[i].ChannelID == b.ChannelID {
			r.Bindings[i].Active = false
		}
	}
	r.Bindings = append(r.Bindings, *b)
	return nil
}

func (r *ConversationRepo) SaveFlow(_ context.Context, f *conversation.Flow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	r.Flows = append(r.Flows, *f)
	return nil
}
