package application

import (
	"context"
	"fmt"
	"time"

	"github.com/AzielCF/az-connect/messaging/domain/channel"
	"github.com/AzielCF/az-connect/messaging/domain/conversation"
	"github.com/AzielCF/az-connect/messaging/domain/event"
	"github.com/AzielCF/az-connect/messaging/domain/message"
	"github.com/AzielCF/az-connect/pkg/msgworker"
	"github.com/sirupsen/logrus"
)

// MessageProcessor is the ingress sink shared by every strategy: it filters
// duplicates and stale deliveries, then processes each message in order per
// (channel, sender).
type MessageProcessor struct {
	filter        *DedupFilter
	queue         *msgworker.MessageQueue
	messages      message.Repository
	conversations conversation.Repository
	pipeline      conversation.Pipeline
	notifier      event.Notifier
	historyLimit  int
	now           func() time.Time
}

func NewMessageProcessor(
	filter *DedupFilter,
	queue *msgworker.MessageQueue,
	messages message.Repository,
	conversations conversation.Repository,
	pipeline conversation.Pipeline,
	notifier event.Notifier,
	historyLimit int,
) *MessageProcessor {
	if historyLimit <= 0 {
		historyLimit = 20
	}
	if notifier == nil {
		notifier = event.NopNotifier{}
	}
	return &MessageProcessor{
		filter:        filter,
		queue:         queue,
		messages:      messages,
		conversations: conversations,
		pipeline:      pipeline,
		notifier:      notifier,
		historyLimit:  historyLimit,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Submit admits env and queues it. It never blocks on processing.
func (p *MessageProcessor) Submit(ctx context.Context, ch *channel.Channel, env *message.Envelope) message.Verdict {
	if env == nil || env.ProviderMessageID == "" || env.From == "" {
		return message.VerdictIgnored
	}

	var ts time.Time
	if env.Timestamp > 0 {
		ts = env.Time()
	}
	verdict := p.filter.Admit(ctx, dedupKey(ch, env.ProviderMessageID), ts)
	if verdict != message.VerdictAccepted {
		return verdict
	}

	chCopy, envCopy := *ch, *env
	p.queue.Dispatch(msgworker.MessageJob{
		ChannelID: ch.ID,
		SenderID:  env.SenderKey(),
		Handler: func(ctx context.Context) error {
			return p.Process(ctx, &chCopy, &envCopy)
		},
	})
	return verdict
}

func dedupKey(ch *channel.Channel, providerMessageID string) string {
	return string(ch.Type) + ":" + ch.ID + ":" + providerMessageID
}

// Process persists one inbound message and hands it to the conversation pipeline.
func (p *MessageProcessor) Process(ctx context.Context, ch *channel.Channel, env *message.Envelope) error {
	log := logrus.WithFields(logrus.Fields{
		"channel_id": ch.ID,
		"message_id": env.ProviderMessageID,
		"sender":     env.From,
	})

	participant, err := p.resolveParticipant(ctx, ch.CompanyID, env.From, env.SenderName)
	if err != nil {
		return fmt.Errorf("resolve participant: %w", err)
	}

	env.ParticipantID = participant.ID
	env.ChannelID = ch.ID
	env.CompanyID = ch.CompanyID
	if env.CreatedAt.IsZero() {
		env.CreatedAt = p.now()
	}
	if err := p.messages.Save(ctx, env); err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	p.notifier.EmitToCompany(ch.CompanyID, event.MessageNew, env)

	binding, err := p.resolveBinding(ctx, ch)
	if err != nil {
		return fmt.Errorf("resolve binding: %w", err)
	}
	if binding == nil || !binding.Active {
		log.Debug("[INGRESS] No active flow binding, message stored only")
		return nil
	}

	history, err := p.history(ctx, ch.ID, participant.ID, env.ID)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}

	err = p.pipeline.ProcessIncoming(ctx, conversation.PipelineInput{
		ConversationBindingID: binding.ID,
		ParticipantID:         participant.ID,
		Message:               *env,
		History:               history,
		ChannelNumber:         ch.Number,
	})
	if err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	log.Debug("[INGRESS] Message delivered to pipeline")
	return nil
}

func (p *MessageProcessor) resolveParticipant(ctx context.Context, companyID, externalID, name string) (*conversation.Participant, error) {
	participant, err := p.conversations.FindParticipant(ctx, companyID, externalID)
	if err != nil {
		return nil, err
	}
	if participant == nil {
		participant = &conversation.Participant{
			CompanyID:   companyID,
			ExternalID:  externalID,
			DisplayName: name,
			CreatedAt:   p.now(),
			UpdatedAt:   p.now(),
		}
		if err := p.conversations.SaveParticipant(ctx, participant); err != nil {
			return nil, err
		}
		return participant, nil
	}

	if name != "" && name != participant.DisplayName {
		participant.DisplayName = name
		participant.UpdatedAt = p.now()
		if err := p.conversations.SaveParticipant(ctx, participant); err != nil {
			return nil, err
		}
	}
	return participant, nil
}

// resolveBinding returns the channel's active binding, auto-binding the
// company's available flow when the channel has none.
func (p *MessageProcessor) resolveBinding(ctx context.Context, ch *channel.Channel) (*conversation.Binding, error) {
	binding, err := p.conversations.ActiveBinding(ctx, ch.ID)
	if err != nil || binding != nil {
		return binding, err
	}

	flow, err := p.conversations.AvailableFlow(ctx, ch.CompanyID)
	if err != nil || flow == nil {
		return nil, err
	}

	binding = &conversation.Binding{ChannelID: ch.ID, FlowID: flow.ID, Active: true, CreatedAt: p.now()}
	if err := p.conversations.Bind(ctx, binding); err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{"channel_id": ch.ID, "flow_id": flow.ID}).Info("[INGRESS] Channel auto-bound to flow")
	return binding, nil
}

// history returns up to historyLimit earlier messages in chronological order,
// without the message currently being processed.
func (p *MessageProcessor) history(ctx context.Context, channelID, participantID, currentID string) ([]message.Envelope, error) {
	recent, err := p.messages.Recent(ctx, channelID, participantID, p.historyLimit+1)
	if err != nil {
		return nil, err
	}

	history := make([]message.Envelope, 0, len(recent))
	for _, m := range recent {
		if m.ID == currentID {
			continue
		}
		history = append(history, m)
		if len(history) == p.historyLimit {
			break
		}
	}
	for i, j := 0, len(history)-1; i < j; i, j = i+1, j-1 {
		history[i], history[j] = history[j], history[i]
	}
	return history, nil
}

// Wait blocks until queued messages are processed.
func (p *MessageProcessor) Wait(ctx context.Context) error {
	return p.queue.Wait(ctx)
}

func (p *MessageProcessor) Stats() msgworker.QueueStats {
	return p.queue.Stats()
}
