package event

// Events pushed to clients of a company.
const (
	ChannelStatus       = "channel:status"
	ChannelQR           = "channel:qr"
	ChannelError        = "channel:error"
	ChannelConnected    = "channel:connected"
	ChannelDisconnected = "channel:disconnected"
	MessageNew          = "message:new"
	MessageStatus       = "message:status"
)

// Notifier pushes events to connected clients. Fire and forget.
type Notifier interface {
	EmitToCompany(companyID, event string, payload any)
}

// NopNotifier drops every event.
type NopNotifier struct{}

func (NopNotifier) EmitToCompany(string, string, any) {}
