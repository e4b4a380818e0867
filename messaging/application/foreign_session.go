package application

import (
	"context"

	"github.com/AzielCF/az-connect/messaging/domain/channel"
	"github.com/AzielCF/az-connect/messaging/domain/event"
	pkgError "github.com/AzielCF/az-connect/pkg/error"
	"github.com/sirupsen/logrus"
)

// refuseForeignSession reports a session that authenticated with a number other
// than the bound one and logs it out where the provider holds sessions.
// The channel keeps its status and number.
func refuseForeignSession(ctx context.Context, strategy channel.Strategy, ch *channel.Channel, mismatch pkgError.AuthenticationMismatchError, notifier event.Notifier, tag string) {
	log := logrus.WithFields(logrus.Fields{"channel_id": ch.ID, "bound": mismatch.Bound, "incoming": mismatch.Incoming})
	log.Warnf("%s Session authenticated with a different number, logging it out", tag)
	notifier.EmitToCompany(ch.CompanyID, event.ChannelError, map[string]any{
		"channel_id": ch.ID,
		"code":       mismatch.ErrCode(),
		"error":      mismatch.Error(),
	})

	qr, ok := strategy.(channel.QRSessionStrategy)
	if !ok {
		return
	}
	if err := qr.Logout(ctx, ch); err != nil && !pkgError.IsNotFoundOnProvider(err) {
		log.WithError(err).Errorf("%s Forced logout after number mismatch failed", tag)
	}
}
