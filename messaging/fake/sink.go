package fake

import (
	"context"
	"sync"

	"github.com/AzielCF/az-connect/messaging/domain/channel"
	"github.com/AzielCF/az-connect/messaging/domain/conversation"
	"github.com/AzielCF/az-connect/messaging/domain/message"
)

// Sink accepts every message and records it.
type Sink struct {
	mu       sync.Mutex
	Received []message.Envelope
}

func (s *Sink) Submit(_ context.Context, _ *channel.Channel, env *message.Envelope) message.Verdict {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Received = append(s.Received, *env)
	return message.VerdictAccepted
}

func (s *Sink) All() []message.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]message.Envelope(nil), s.Received...)
}

// Pipeline records inputs; Fn, when set, runs for each call.
type Pipeline struct {
	mu     sync.Mutex
	Inputs []conversation.PipelineInput
	Fn     func(in conversation.PipelineInput) error
}

func (p *Pipeline) ProcessIncoming(_ context.Context, in conversation.PipelineInput) error {
	if p.Fn != nil {
		if err := p.Fn(in); err != nil {
			return err
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Inputs = append(p.Inputs, in)
	return nil
}

func (p *Pipeline) All() []conversation.PipelineInput {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]conversation.PipelineInput(nil), p.Inputs...)
}
