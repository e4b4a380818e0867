package application

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/AzielCF/az-connect/messaging/domain/channel"
	"github.com/AzielCF/az-connect/messaging/domain/conversation"
	"github.com/AzielCF/az-connect/messaging/domain/event"
	"github.com/AzielCF/az-connect/messaging/domain/message"
	"github.com/AzielCF/az-connect/messaging/fake"
	"github.com/AzielCF/az-connect/pkg/msgworker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type processorHarness struct {
	p        *MessageProcessor
	clock    *clock
	messages *fake.MessageRepo
	convs    *fake.ConversationRepo
	pipeline *fake.Pipeline
	notifier *fake.Notifier
	ch       channel.Channel
}

func newProcessorHarness(t *testing.T, historyLimit int) *processorHarness {
	t.Helper()
	c := newClock()
	filter, _ := newTestFilter(c)
	h := &processorHarness{
		clock:    c,
		messages: fake.NewMessageRepo(),
		convs:    fake.NewConversationRepo(),
		pipeline: &fake.Pipeline{},
		notifier: &fake.Notifier{},
		ch:       qrChannel("ch-1", channel.StatusActive),
	}
	h.ch.Number = "5511999999999"
	h.p = NewMessageProcessor(filter, msgworker.NewMessageQueue(context.Background()), h.messages, h.convs, h.pipeline, h.notifier, historyLimit)
	h.p.now = c.Now
	require.NoError(t, h.convs.SaveFlow(context.Background(), &conversation.Flow{CompanyID: "co-1", Name: "welcome", Active: true}))
	return h
}

func (h *processorHarness) env(id, from, body string) *message.Envelope {
	return &message.Envelope{
		ProviderMessageID: id,
		ChannelID:         h.ch.ID,
		CompanyID:         h.ch.CompanyID,
		Direction:         message.DirectionInbound,
		From:              from,
		Body:              body,
		Timestamp:         h.clock.Now().UnixMilli(),
	}
}

func (h *processorHarness) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.p.Wait(ctx))
}

func TestProcessor_DuplicateDeliveredOnce(t *testing.T) {
	h := newProcessorHarness(t, 20)
	ctx := context.Background()

	assert.Equal(t, message.VerdictAccepted, h.p.Submit(ctx, &h.ch, h.env("wamid.1", "5511888", "hola")))
	assert.Equal(t, message.VerdictDuplicate, h.p.Submit(ctx, &h.ch, h.env("wamid.1", "5511888", "hola")))
	h.wait(t)
	assert.Len(t, h.pipeline.All(), 1)

	h.clock.Advance(11 * time.Minute)
	assert.Equal(t, message.VerdictAccepted, h.p.Submit(ctx, &h.ch, h.env("wamid.1", "5511888", "hola")))
	h.wait(t)
	assert.Len(t, h.pipeline.All(), 2)
}

func TestProcessor_StaleNeverReachesPipeline(t *testing.T) {
	h := newProcessorHarness(t, 20)
	env := h.env("wamid.old", "5511888", "late")
	env.Timestamp = h.clock.Now().Add(-15 * time.Minute).UnixMilli()

	assert.Equal(t, message.VerdictStale, h.p.Submit(context.Background(), &h.ch, env))
	h.wait(t)
	assert.Empty(t, h.pipeline.All())
	assert.Empty(t, h.messages.All())
}

func TestProcessor_OrderPerSender(t *testing.T) {
	h := newProcessorHarness(t, 20)
	release := make(chan struct{})
	h.pipeline.Fn = func(in conversation.PipelineInput) error {
		if in.Message.Body == "m1" {
			<-release
		}
		return nil
	}

	ctx := context.Background()
	for _, body := range []string{"m1", "m2", "m3"} {
		h.p.Submit(ctx, &h.ch, h.env("id-"+body, "5511888", body))
	}
	// another sender is not held back by the slow m1
	h.p.Submit(ctx, &h.ch, h.env("id-other", "5511777", "other"))
	require.Eventually(t, func() bool { return len(h.pipeline.All()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "other", h.pipeline.All()[0].Message.Body)

	close(release)
	h.wait(t)

	var order []string
	for _, in := range h.pipeline.All() {
		if in.Message.From == "5511888" {
			order = append(order, in.Message.Body)
		}
	}
	assert.Equal(t, []string{"m1", "m2", "m3"}, order)
}

func TestProcessor_FailureDoesNotBreakChain(t *testing.T) {
	h := newProcessorHarness(t, 20)
	var mu sync.Mutex
	var seen []string
	h.pipeline.Fn = func(in conversation.PipelineInput) error {
		mu.Lock()
		seen = append(seen, in.Message.Body)
		mu.Unlock()
		if in.Message.Body == "boom" {
			return fmt.Errorf("flow crashed")
		}
		return nil
	}

	ctx := context.Background()
	h.p.Submit(ctx, &h.ch, h.env("a", "5511888", "boom"))
	h.p.Submit(ctx, &h.ch, h.env("b", "5511888", "after"))
	h.wait(t)

	assert.Equal(t, []string{"boom", "after"}, seen)
	assert.Equal(t, int64(1), h.p.Stats().TotalErrors)
}

func TestProcessor_ParticipantAndNotification(t *testing.T) {
	h := newProcessorHarness(t, 20)
	ctx := context.Background()

	first := h.env("a", "5511888", "hi")
	first.SenderName = "Ana"
	h.p.Submit(ctx, &h.ch, first)
	h.wait(t)

	renamed := h.env("b", "5511888", "again")
	renamed.SenderName = "Ana María"
	h.p.Submit(ctx, &h.ch, renamed)
	h.wait(t)

	p, err := h.convs.FindParticipant(ctx, "co-1", "5511888")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "Ana María", p.DisplayName)
	assert.Len(t, h.convs.Participants, 1)
	assert.Len(t, h.notifier.Named(event.MessageNew), 2)

	for _, m := range h.messages.All() {
		assert.Equal(t, p.ID, m.ParticipantID)
	}
}

func TestProcessor_AutoBindAndHistory(t *testing.T) {
	h := newProcessorHarness(t, 2)
	ctx := context.Background()

	for i, body := range []string{"one", "two", "three", "four"} {
		h.p.Submit(ctx, &h.ch, h.env(fmt.Sprintf("m%d", i), "5511888", body))
		h.wait(t)
	}

	inputs := h.pipeline.All()
	require.Len(t, inputs, 4)
	last := inputs[3]
	assert.Equal(t, "four", last.Message.Body)
	assert.Equal(t, "5511999999999", last.ChannelNumber)
	require.Len(t, last.History, 2)
	assert.Equal(t, "two", last.History[0].Body)
	assert.Equal(t, "three", last.History[1].Body)

	assert.Empty(t, inputs[0].History)
	require.Len(t, h.convs.Bindings, 1)
	assert.Equal(t, h.convs.Bindings[0].ID, last.ConversationBindingID)
}

func TestProcessor_NoFlowStoresOnly(t *testing.T) {
	h := newProcessorHarness(t, 20)
	h.convs.Flows = nil

	h.p.Submit(context.Background(), &h.ch, h.env("a", "5511888", "hi"))
	h.wait(t)

	assert.Len(t, h.messages.All(), 1)
	assert.Empty(t, h.pipeline.All())
}

func TestProcessor_IgnoresIncompleteEnvelopes(t *testing.T) {
	h := newProcessorHarness(t, 20)
	assert.Equal(t, message.VerdictIgnored, h.p.Submit(context.Background(), &h.ch, &message.Envelope{ProviderMessageID: "x"}))
}
