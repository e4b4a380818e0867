package application

import (
	"sync"

	"github.com/AzielCF/az-connect/messaging/domain/channel"
)

// Registry maps a channel type to the strategy that implements it.
type Registry struct {
	mu         sync.RWMutex
	strategies map[channel.ChannelType]channel.Strategy
}

func NewRegistry(strategies ...channel.Strategy) *Registry {
	r := &Registry{strategies: make(map[channel.ChannelType]channel.Strategy)}
	for _, s := range strategies {
		r.Register(s)
	}
	return r
}

func (r *Registry) Register(s channel.Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[s.Type()] = s
}

func (r *Registry) Get(t channel.ChannelType) (channel.Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[t]
	if !ok {
		return nil, channel.ErrUnsupportedType
	}
	return s, nil
}

// QR returns the strategy for t when it pairs through QR sessions.
func (r *Registry) QR(t channel.ChannelType) (channel.QRSessionStrategy, error) {
	s, err := r.Get(t)
	if err != nil {
		return nil, err
	}
	qr, ok := s.(channel.QRSessionStrategy)
	if !ok || s.Kind() != channel.KindQRSession {
		return nil, channel.ErrQRNotSupported
	}
	return qr, nil
}

// QRTypes lists the registered types whose strategies pair through QR sessions.
func (r *Registry) QRTypes() []channel.ChannelType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var types []channel.ChannelType
	for t, s := range r.strategies {
		if s.Kind() == channel.KindQRSession {
			types = append(types, t)
		}
	}
	return types
}
