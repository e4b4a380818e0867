package valkey

import (
	"context"
	"fmt"
	"strings"
	"time"

	valkeylib "github.com/valkey-io/valkey-go"
)

// DefaultConnectTimeout bounds the initial ping.
const DefaultConnectTimeout = 5 * time.Second

// releaseScript deletes a key only if it still holds the caller's token.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

type Config struct {
	Address        string
	Password       string
	DB             int
	KeyPrefix      string
	ConnectTimeout time.Duration
}

// Client wraps valkey-go with key prefixing and the few primitives the
// messaging engine needs: set-once markers, token locks and pub/sub.
type Client struct {
	inner     valkeylib.Client
	keyPrefix string
}

// NewClient connects and pings. The caller must Close the client.
func NewClient(cfg Config) (*Client, error) {
	opts := valkeylib.ClientOption{
		InitAddress: []string{cfg.Address},
		SelectDB:    cfg.DB,
		Password:    cfg.Password,
	}

	inner, err := valkeylib.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	timeout := cfg.ConnectTimeout
	if timeout == 0 {
		timeout = DefaultConnectTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := inner.Do(ctx, inner.B().Ping().Build()).Error(); err != nil {
		inner.Close()
		return nil, fmt.Errorf("failed to ping valkey (timeout: %v): %w", timeout, err)
	}

	return &Client{inner: inner, keyPrefix: normalizePrefix(cfg.KeyPrefix)}, nil
}

// NewFromInner wraps an existing valkey-go client (used by tests with a mock client).
func NewFromInner(inner valkeylib.Client, prefix string) *Client {
	return &Client{inner: inner, keyPrefix: normalizePrefix(prefix)}
}

func normalizePrefix(prefix string) string {
	if prefix != "" && !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}
	return prefix
}

func (c *Client) Inner() valkeylib.Client {
	return c.inner
}

func (c *Client) Close() {
	if c.inner != nil {
		c.inner.Close()
	}
}

// Key joins parts under the configured prefix: Key("dedup", "abc") -> "azconnect:dedup:abc".
func (c *Client) Key(parts ...string) string {
	if len(parts) == 0 {
		return strings.TrimSuffix(c.keyPrefix, ":")
	}
	return c.keyPrefix + strings.Join(parts, ":")
}

func (c *Client) Ping(ctx context.Context) error {
	return c.inner.Do(ctx, c.inner.B().Ping().Build()).Error()
}

// SetOnce stores value under key only if the key is absent (SET NX PX).
// It returns true when this call created the key.
func (c *Client) SetOnce(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	cmd := c.inner.B().Set().Key(key).Value(value).Nx().Px(ttl).Build()
	err := c.inner.Do(ctx, cmd).Error()
	if err == nil {
		return true, nil
	}
	if IsNil(err) {
		return false, nil
	}
	return false, err
}

// Exists reports whether key is present.
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.inner.Do(ctx, c.inner.B().Exists().Key(key).Build()).AsInt64()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (c *Client) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.inner.Do(ctx, c.inner.B().Del().Key(keys...).Build()).Error()
}

// Unlock deletes key only when it still holds token.
func (c *Client) Unlock(ctx context.Context, key, token string) error {
	cmd := c.inner.B().Eval().Script(releaseScript).Numkeys(1).Key(key).Arg(token).Build()
	if err := c.inner.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to release lock %s: %w", key, err)
	}
	return nil
}

func (c *Client) Publish(ctx context.Context, channel, message string) error {
	return c.inner.Do(ctx, c.inner.B().Publish().Channel(channel).Message(message).Build()).Error()
}

// Subscribe blocks delivering messages on channel to fn until ctx ends or the connection drops.
func (c *Client) Subscribe(ctx context.Context, channel string, fn func(message string)) error {
	return c.inner.Receive(ctx, c.inner.B().Subscribe().Channel(channel).Build(), func(msg valkeylib.PubSubMessage) {
		fn(msg.Message)
	})
}

// IsNil reports a valkey NIL reply.
func IsNil(err error) bool {
	return valkeylib.IsValkeyNil(err)
}
