package rest

import (
	"context"

	cloudclient "github.com/AzielCF/az-connect/infrastructure/cloudapi"
	"github.com/AzielCF/az-connect/messaging/domain/channel"
	pkgError "github.com/AzielCF/az-connect/pkg/error"
	"github.com/AzielCF/az-connect/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

const signatureHeader = "X-Hub-Signature-256"

type WebhookReceiver interface {
	HandleWebhook(ctx context.Context, t channel.ChannelType, payload []byte, identifier string) error
}

// SubscriptionVerifier is implemented by the Cloud API strategy.
type SubscriptionVerifier interface {
	VerifySubscription(ctx context.Context, identifier, mode, token, challenge string) (string, error)
	AppSecrets(ctx context.Context, identifier string, payload []byte) ([]string, error)
}

type Webhook struct {
	Receiver WebhookReceiver
	Verifier SubscriptionVerifier
}

// InitRestWebhook mounts the provider callbacks. They sit outside basic auth:
// providers authenticate through the verify token and the body signature.
func InitRestWebhook(app fiber.Router, receiver WebhookReceiver, verifier SubscriptionVerifier) Webhook {
	handler := Webhook{Receiver: receiver, Verifier: verifier}

	group := app.Group("/webhooks")
	if verifier != nil {
		group.Get("/"+string(channel.ChannelTypeCloudAPI), handler.Verify)
		group.Get("/"+string(channel.ChannelTypeCloudAPI)+"/:identifier", handler.Verify)
	}
	group.Post("/:type", handler.Receive)
	group.Post("/:type/:identifier", handler.Receive)

	return handler
}

// Verify answers the hub.challenge handshake.
func (h *Webhook) Verify(c *fiber.Ctx) error {
	challenge, err := h.Verifier.VerifySubscription(c.UserContext(),
		c.Params("identifier"),
		c.Query("hub.mode"),
		c.Query("hub.verify_token"),
		c.Query("hub.challenge"),
	)
	if err != nil {
		logrus.WithError(err).Warn("[WEBHOOK] Subscription verification rejected")
		return c.Status(fiber.StatusForbidden).SendString("forbidden")
	}
	return c.Status(fiber.StatusOK).SendString(challenge)
}

func (h *Webhook) Receive(c *fiber.Ctx) error {
	t := channel.ChannelType(c.Params("type"))
	identifier := c.Params("identifier")
	// fiber reuses the request buffer once the handler returns
	body := append([]byte(nil), c.Body()...)

	if !t.Valid() {
		utils.PanicIfNeeded(channel.ErrUnsupportedType)
	}
	if len(body) == 0 {
		utils.PanicIfNeeded(pkgError.WebhookError("empty webhook body"))
	}

	// the bare path routes by phone_number_id in the body, so every channel
	// the body resolves to must have signed it
	if t == channel.ChannelTypeCloudAPI && h.Verifier != nil {
		secrets, err := h.Verifier.AppSecrets(c.UserContext(), identifier, body)
		utils.PanicIfNeeded(err)
		for _, secret := range secrets {
			if secret != "" && !cloudclient.VerifySignature(secret, body, c.Get(signatureHeader)) {
				logrus.WithField("identifier", identifier).Warn("[WEBHOOK] Invalid signature")
				return c.Status(fiber.StatusUnauthorized).JSON(utils.ResponseData{
					Status:  fiber.StatusUnauthorized,
					Code:    "INVALID_SIGNATURE",
					Message: "webhook signature mismatch",
				})
			}
		}
	}

	err := h.Receiver.HandleWebhook(c.UserContext(), t, body, identifier)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  fiber.StatusOK,
		Code:    "SUCCESS",
		Message: "Webhook processed",
	})
}
