package pipeline

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/AzielCF/az-connect/messaging/domain/conversation"
	pkgError "github.com/AzielCF/az-connect/pkg/error"
	"github.com/AzielCF/az-connect/pkg/retry"
	pkgUtils "github.com/AzielCF/az-connect/pkg/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	provider        = "pipeline"
	SignatureHeader = "X-Hub-Signature-256"
	EventHeader     = "X-Event"
	incomingEvent   = "message.incoming"
)

type Config struct {
	URL                string
	Secret             string
	Timeout            time.Duration
	InsecureSkipVerify bool
	Retry              retry.Config
	// Transport overrides the base transport (tests).
	Transport http.RoundTripper
}

// Forwarder delivers pipeline inputs to the conversation engine over HTTP.
// Bodies are signed with HMAC-SHA256 when a secret is configured.
type Forwarder struct {
	url    string
	secret []byte
	http   *http.Client
	retry  retry.Config
}

func NewForwarder(cfg Config) *Forwarder {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	base := cfg.Transport
	if base == nil {
		base = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify},
		}
	}
	return &Forwarder{
		url:    cfg.URL,
		secret: []byte(cfg.Secret),
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(base),
		},
		retry: cfg.Retry,
	}
}

func (f *Forwarder) ProcessIncoming(ctx context.Context, in conversation.PipelineInput) error {
	body, err := json.Marshal(in)
	if err != nil {
		return pkgError.WebhookError(fmt.Sprintf("Failed to marshal body: %v", err))
	}

	var signature string
	if len(f.secret) > 0 {
		digest, err := pkgUtils.GetMessageDigestOrSignature(body, f.secret)
		if err != nil {
			return pkgError.WebhookError(fmt.Sprintf("error when create signature %v", err))
		}
		signature = "sha256=" + digest
	}

	_, err = retry.Do(ctx, f.retry, "pipeline.forward", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, f.post(ctx, body, signature)
	})
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"binding_id": in.ConversationBindingID,
			"message_id": in.Message.ProviderMessageID,
		}).Error("[PIPELINE] Forward failed")
		return pkgError.WebhookError(fmt.Sprintf("error when submit pipeline input: %v", err))
	}
	logrus.WithField("binding_id", in.ConversationBindingID).Debug("[PIPELINE] Input forwarded")
	return nil
}

func (f *Forwarder) post(ctx context.Context, body []byte, signature string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(EventHeader, incomingEvent)
	if signature != "" {
		req.Header.Set(SignatureHeader, signature)
	}

	resp, err := f.http.Do(req)
	if err != nil {
		return retry.TransportError(provider, "forward", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return retry.StatusError(provider, "forward", resp.StatusCode, string(data))
	}
	return nil
}

// Nop accepts every input without forwarding it. Used when no pipeline URL is configured.
type Nop struct{}

func (Nop) ProcessIncoming(_ context.Context, in conversation.PipelineInput) error {
	logrus.WithField("binding_id", in.ConversationBindingID).Debug("[PIPELINE] No pipeline configured; input dropped")
	return nil
}
