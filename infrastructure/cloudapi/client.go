package cloudapi

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/AzielCF/az-connect/infrastructure/httpclient"
)

const DefaultVersion = "v19.0"

// Client calls the Graph API on behalf of one phone number. Credentials are per
// channel, so they are passed on every call.
type Client struct {
	http    *httpclient.Client
	version string
}

func NewClient(client *httpclient.Client, version string) *Client {
	if version == "" {
		version = DefaultVersion
	}
	return &Client{http: client, version: version}
}

func (c *Client) path(parts ...string) string {
	return "/" + c.version + "/" + strings.Join(parts, "/")
}

// PhoneNumber verifies the credentials by reading the phone number resource.
func (c *Client) PhoneNumber(ctx context.Context, phoneNumberID, accessToken string) (*PhoneNumber, error) {
	var res PhoneNumber
	path := c.path(phoneNumberID) + "?fields=display_phone_number,verified_name,quality_rating"
	if err := c.http.JSON(ctx, "phone_number", http.MethodGet, path, accessToken, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) Send(ctx context.Context, phoneNumberID, accessToken string, req SendRequest) (*SendResponse, error) {
	if req.MessagingProduct == "" {
		req.MessagingProduct = "whatsapp"
	}
	var res SendResponse
	if err := c.http.JSON(ctx, "send_"+req.Type, http.MethodPost, c.path(phoneNumberID, "messages"), accessToken, req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// VerifySignature checks the X-Hub-Signature-256 header against the app secret.
func VerifySignature(appSecret string, body []byte, header string) bool {
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok || appSecret == "" {
		return false
	}
	want, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), want)
}
