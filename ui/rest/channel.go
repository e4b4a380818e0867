package rest

import (
	"context"

	"github.com/AzielCF/az-connect/messaging/domain/channel"
	pkgError "github.com/AzielCF/az-connect/pkg/error"
	"github.com/AzielCF/az-connect/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

// ChannelService is the lifecycle API the channel routes call.
type ChannelService interface {
	CreateChannel(ctx context.Context, req channel.CreateRequest) (*channel.Channel, error)
	ListChannels(ctx context.Context, companyID string) ([]channel.Channel, error)
	GetChannel(ctx context.Context, id string) (*channel.Channel, error)
	DeleteChannel(ctx context.Context, id string) error
	Connect(ctx context.Context, id string) (*channel.Channel, error)
	Disconnect(ctx context.Context, id string) error
	ConfigureChannel(ctx context.Context, id string, cfg channel.ConnectionConfig) (*channel.Channel, error)
	InitiateQRSession(ctx context.Context, id string) error
	Recover(ctx context.Context, id string) error
	SendMessage(ctx context.Context, id string, payload channel.OutboundPayload) (*channel.SendResult, error)
	Status(ctx context.Context, id string) (*channel.Status, error)
	SyncAdminState(ctx context.Context, id string) (*channel.AdminState, error)
}

type Channel struct {
	Service ChannelService
}

func InitRestChannel(app fiber.Router, service ChannelService) Channel {
	rest := Channel{Service: service}

	group := app.Group("/channels")
	group.Post("/", rest.Create)
	group.Get("/", rest.List)
	group.Get("/:id", rest.Get)
	group.Delete("/:id", rest.Delete)
	group.Post("/:id/connect", rest.Connect)
	group.Post("/:id/disconnect", rest.Disconnect)
	group.Put("/:id/config", rest.Configure)
	group.Post("/:id/qr", rest.QR)
	group.Post("/:id/recover", rest.Recover)
	group.Post("/:id/messages", rest.Send)
	group.Get("/:id/status", rest.Status)
	group.Post("/:id/admin/sync", rest.SyncAdmin)

	return rest
}

func success(c *fiber.Ctx, status int, message string, results any) error {
	return c.Status(status).JSON(utils.ResponseData{
		Status:  status,
		Code:    "SUCCESS",
		Message: message,
		Results: results,
	})
}

func parseBody(c *fiber.Ctx, dest any) {
	if err := c.BodyParser(dest); err != nil {
		utils.PanicIfNeeded(pkgError.ValidationError("invalid request body: " + err.Error()))
	}
}

func (handler *Channel) Create(c *fiber.Ctx) error {
	var request channel.CreateRequest
	parseBody(c, &request)

	ch, err := handler.Service.CreateChannel(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	return success(c, fiber.StatusCreated, "Channel created", ch)
}

func (handler *Channel) List(c *fiber.Ctx) error {
	companyID := c.Query("company_id")
	if companyID == "" {
		utils.PanicIfNeeded(pkgError.ValidationError("company_id is required"))
	}
	channels, err := handler.Service.ListChannels(c.UserContext(), companyID)
	utils.PanicIfNeeded(err)

	return success(c, fiber.StatusOK, "Channels retrieved", channels)
}

func (handler *Channel) Get(c *fiber.Ctx) error {
	ch, err := handler.Service.GetChannel(c.UserContext(), c.Params("id"))
	utils.PanicIfNeeded(err)

	return success(c, fiber.StatusOK, "Channel retrieved", ch)
}

func (handler *Channel) Delete(c *fiber.Ctx) error {
	err := handler.Service.DeleteChannel(c.UserContext(), c.Params("id"))
	utils.PanicIfNeeded(err)

	return success(c, fiber.StatusOK, "Channel deleted", nil)
}

// Connect answers 202 while a QR channel is still pairing.
func (handler *Channel) Connect(c *fiber.Ctx) error {
	ch, err := handler.Service.Connect(c.UserContext(), c.Params("id"))
	utils.PanicIfNeeded(err)

	if ch.Status == channel.StatusConnecting {
		return success(c, fiber.StatusAccepted, "Channel connecting, waiting for QR scan", ch)
	}
	return success(c, fiber.StatusOK, "Channel connected", ch)
}

func (handler *Channel) Disconnect(c *fiber.Ctx) error {
	err := handler.Service.Disconnect(c.UserContext(), c.Params("id"))
	utils.PanicIfNeeded(err)

	return success(c, fiber.StatusOK, "Channel disconnected", nil)
}

func (handler *Channel) Configure(c *fiber.Ctx) error {
	var request channel.ConfigureRequest
	parseBody(c, &request)

	ch, err := handler.Service.ConfigureChannel(c.UserContext(), c.Params("id"), request.Config)
	utils.PanicIfNeeded(err)

	return success(c, fiber.StatusOK, "Channel configured", ch)
}

func (handler *Channel) QR(c *fiber.Ctx) error {
	err := handler.Service.InitiateQRSession(c.UserContext(), c.Params("id"))
	utils.PanicIfNeeded(err)

	return success(c, fiber.StatusAccepted, "QR code delivered to connected clients", nil)
}

func (handler *Channel) Recover(c *fiber.Ctx) error {
	err := handler.Service.Recover(c.UserContext(), c.Params("id"))
	utils.PanicIfNeeded(err)

	return success(c, fiber.StatusAccepted, "Recovery triggered", nil)
}

func (handler *Channel) Send(c *fiber.Ctx) error {
	var request channel.SendRequest
	parseBody(c, &request)

	res, err := handler.Service.SendMessage(c.UserContext(), c.Params("id"), request.OutboundPayload)
	utils.PanicIfNeeded(err)

	return success(c, fiber.StatusOK, "Message sent", res)
}

func (handler *Channel) Status(c *fiber.Ctx) error {
	st, err := handler.Service.Status(c.UserContext(), c.Params("id"))
	utils.PanicIfNeeded(err)

	return success(c, fiber.StatusOK, "Provider status retrieved", st)
}

func (handler *Channel) SyncAdmin(c *fiber.Ctx) error {
	state, err := handler.Service.SyncAdminState(c.UserContext(), c.Params("id"))
	utils.PanicIfNeeded(err)

	return success(c, fiber.StatusOK, "Admin state synchronized", state)
}
