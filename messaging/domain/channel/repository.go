package channel

import "context"

// Filter narrows List. Zero values match everything.
type Filter struct {
	CompanyID   string
	Type        ChannelType
	Statuses    []ChannelStatus
	ExternalRef string
}

// Repository persists channels. Update writes the whole document.
type Repository interface {
	Create(ctx context.Context, ch *Channel) error
	Get(ctx context.Context, id string) (*Channel, error)
	Update(ctx context.Context, ch *Channel) error
	List(ctx context.Context, filter Filter) ([]Channel, error)
	FindByExternalRef(ctx context.Context, companyID string, t ChannelType, ref string) (*Channel, error)
	// DeleteCascade removes the channel with its messages and flow bindings.
	DeleteCascade(ctx context.Context, id string) error
}
