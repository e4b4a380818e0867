package channel

type CreateRequest struct {
	CompanyID string           `json:"company_id"`
	Type      ChannelType      `json:"type"`
	Name      string           `json:"name"`
	Config    ConnectionConfig `json:"config"`
}

type ConfigureRequest struct {
	Config ConnectionConfig `json:"config"`
}

type SendRequest struct {
	OutboundPayload
}
