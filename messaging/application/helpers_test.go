package application

import (
	"sync"
	"time"

	"github.com/AzielCF/az-connect/messaging/domain/channel"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func qrChannel(id string, status channel.ChannelStatus) channel.Channel {
	return channel.Channel{
		ID:          id,
		CompanyID:   "co-1",
		Type:        channel.ChannelTypeWhapi,
		Status:      status,
		ExternalRef: "REMOTE-" + id,
		Config:      channel.ConnectionConfig{Token: "tok-" + id, ExternalID: "REMOTE-" + id},
	}
}

func cloudChannel(id string, status channel.ChannelStatus) channel.Channel {
	return channel.Channel{
		ID:          id,
		CompanyID:   "co-1",
		Type:        channel.ChannelTypeCloudAPI,
		Status:      status,
		ExternalRef: "1055",
		Config:      channel.ConnectionConfig{PhoneNumberID: "1055", AccessToken: "EAAG"},
	}
}
