package channel

import pkgError "github.com/AzielCF/az-connect/pkg/error"

const (
	ErrChannelNotFound    = pkgError.NotFoundError("channel not found")
	ErrDuplicateChannel   = pkgError.ValidationError("a channel already exists for this provider identifier")
	ErrAlreadyActive      = pkgError.ChannelStateError("channel is already active")
	ErrChannelNotActive   = pkgError.ChannelStateError("channel is not active")
	ErrUnsupportedType    = pkgError.ValidationError("unsupported channel type")
	ErrDisconnectedByUser = pkgError.ChannelStateError("channel was disconnected by the user")
	ErrQRNotSupported     = pkgError.ValidationError("channel type does not use QR sessions")
	ErrMissingCredentials = pkgError.ValidationError("channel has no stored credentials")
)
