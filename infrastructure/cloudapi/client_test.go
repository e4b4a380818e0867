package cloudapi

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/AzielCF/az-connect/infrastructure/httpclient"
	pkgError "github.com/AzielCF/az-connect/pkg/error"
	"github.com/AzielCF/az-connect/pkg/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string) *Client {
	return NewClient(httpclient.New(httpclient.Config{
		Provider: "cloud_api",
		BaseURL:  url,
		Timeout:  time.Second,
		Retry:    retry.Config{MaxAttempts: 1},
	}), "v19.0")
}

func TestPhoneNumber(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v19.0/1055", r.URL.Path)
		assert.Equal(t, "Bearer EAAG", r.Header.Get("Authorization"))
		w.Write([]byte(`{"id":"1055","display_phone_number":"+1 555-010-0000","verified_name":"Acme"}`))
	}))
	defer srv.Close()

	pn, err := newTestClient(srv.URL).PhoneNumber(context.Background(), "1055", "EAAG")
	require.NoError(t, err)
	assert.Equal(t, "+1 555-010-0000", pn.DisplayPhoneNumber)
}

func TestPhoneNumber_InvalidTokenIsNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(httpclient.New(httpclient.Config{
		Provider: "cloud_api",
		BaseURL:  srv.URL,
		Retry:    retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond},
	}), "")
	_, err := c.PhoneNumber(context.Background(), "1055", "bad")
	require.Error(t, err)
	assert.True(t, pkgError.IsUnauthorizedProvider(err))
	assert.Equal(t, 1, calls)
}

func TestSend(t *testing.T) {
	var got SendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v19.0/1055/messages", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"messaging_product":"whatsapp","messages":[{"id":"wamid.X"}]}`))
	}))
	defer srv.Close()

	res, err := newTestClient(srv.URL).Send(context.Background(), "1055", "EAAG", SendRequest{
		To:   "5511888",
		Type: "text",
		Text: &TextObject{Body: "hi"},
	})
	require.NoError(t, err)
	assert.Equal(t, "wamid.X", res.MessageID())
	assert.Equal(t, "whatsapp", got.MessagingProduct)
	assert.Equal(t, "hi", got.Text.Body)
}

func TestTimestamp(t *testing.T) {
	var v struct {
		A Timestamp `json:"a"`
		B Timestamp `json:"b"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"1700000000","b":1700000001}`), &v))
	assert.Equal(t, int64(1700000000000), v.A.Millis())
	assert.Equal(t, int64(1700000001000), v.B.Millis())
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"object":"whatsapp_business_account"}`)
	mac := hmac.New(sha256.New, []byte("s3cret"))
	mac.Write(body)
	header := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	assert.True(t, VerifySignature("s3cret", body, header))
	assert.False(t, VerifySignature("other", body, header))
	assert.False(t, VerifySignature("s3cret", body, "sha1=abc"))
	assert.False(t, VerifySignature("", body, header))
}
