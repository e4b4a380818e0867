package pipeline

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AzielCF/az-connect/messaging/domain/conversation"
	"github.com/AzielCF/az-connect/messaging/domain/message"
	pkgError "github.com/AzielCF/az-connect/pkg/error"
	"github.com/AzielCF/az-connect/pkg/retry"
	pkgUtils "github.com/AzielCF/az-connect/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry() retry.Config {
	return retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}
}

func sampleInput() conversation.PipelineInput {
	return conversation.PipelineInput{
		ConversationBindingID: "b-1",
		ParticipantID:         "p-1",
		ChannelNumber:         "5511999999999",
		Message:               message.Envelope{ProviderMessageID: "wamid.1", Body: "hola"},
	}
}

func TestForwarder_SignsBody(t *testing.T) {
	var gotSig, gotEvent string
	var got conversation.PipelineInput
	var raw []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(SignatureHeader)
		gotEvent = r.Header.Get(EventHeader)
		raw, _ = io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	f := NewForwarder(Config{URL: srv.URL, Secret: "s3cret", Retry: fastRetry()})
	require.NoError(t, f.ProcessIncoming(context.Background(), sampleInput()))

	want, err := pkgUtils.GetMessageDigestOrSignature(raw, []byte("s3cret"))
	require.NoError(t, err)
	assert.Equal(t, "sha256="+want, gotSig)
	assert.Equal(t, "message.incoming", gotEvent)
	assert.Equal(t, "b-1", got.ConversationBindingID)
	assert.Equal(t, "hola", got.Message.Body)
}

func TestForwarder_NoSecretNoSignature(t *testing.T) {
	var hasSig atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hasSig.Store(r.Header.Get(SignatureHeader) != "")
	}))
	defer srv.Close()

	f := NewForwarder(Config{URL: srv.URL})
	require.NoError(t, f.ProcessIncoming(context.Background(), sampleInput()))
	assert.False(t, hasSig.Load())
}

func TestForwarder_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := NewForwarder(Config{URL: srv.URL, Retry: fastRetry()})
	require.NoError(t, f.ProcessIncoming(context.Background(), sampleInput()))
	assert.Equal(t, int32(3), calls.Load())
}

func TestForwarder_ClientErrorIsTerminal(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	f := NewForwarder(Config{URL: srv.URL, Retry: fastRetry()})
	err := f.ProcessIncoming(context.Background(), sampleInput())
	require.Error(t, err)
	assert.IsType(t, pkgError.WebhookError(""), err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestNop(t *testing.T) {
	assert.NoError(t, Nop{}.ProcessIncoming(context.Background(), sampleInput()))
}
