package validations

import (
	"context"
	"regexp"

	"github.com/AzielCF/az-connect/messaging/domain/channel"
	pkgError "github.com/AzielCF/az-connect/pkg/error"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

var phoneLike = regexp.MustCompile(`^\+?[0-9][0-9\s\-().]*(@[a-z.]+)?$`)

func ValidateCreateChannel(ctx context.Context, request channel.CreateRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.CompanyID, validation.Required),
		validation.Field(&request.Type, validation.Required, validation.In(channel.ChannelTypeWhapi, channel.ChannelTypeCloudAPI)),
		validation.Field(&request.Name, validation.Length(0, 120)),
	)
	if err != nil {
		return pkgError.ValidationError(err.Error())
	}
	return ValidateConnectionConfig(ctx, request.Type, request.Config)
}

// ValidateConnectionConfig checks the credentials a provider family needs.
// The QR provider may start without a token: one is provisioned on configure.
func ValidateConnectionConfig(ctx context.Context, t channel.ChannelType, cfg channel.ConnectionConfig) error {
	var err error
	switch t {
	case channel.ChannelTypeCloudAPI:
		err = validation.ValidateStructWithContext(ctx, &cfg,
			validation.Field(&cfg.PhoneNumberID, validation.Required, is.Digit),
			validation.Field(&cfg.AccessToken, validation.Required),
			validation.Field(&cfg.BusinessAccountID, is.Digit),
		)
	case channel.ChannelTypeWhapi:
		err = validation.ValidateStructWithContext(ctx, &cfg,
			validation.Field(&cfg.ExternalID, validation.When(cfg.Token != "", validation.Length(1, 64))),
		)
	default:
		return channel.ErrUnsupportedType
	}
	if err != nil {
		return pkgError.ValidationError(err.Error())
	}
	return nil
}

func ValidateOutbound(ctx context.Context, request channel.OutboundPayload) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.To, validation.Required, validation.Match(phoneLike)),
		validation.Field(&request.Body, validation.When(request.Media == nil, validation.Required)),
		validation.Field(&request.Media),
	)
	if err != nil {
		return pkgError.ValidationError(err.Error())
	}
	return nil
}
