package middleware

import (
	"fmt"

	pkgError "github.com/AzielCF/az-connect/pkg/error"
	"github.com/AzielCF/az-connect/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// Recovery renders panics raised by utils.PanicIfNeeded. GenericError values
// keep their status and code; anything else becomes a 500.
func Recovery() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		defer func() {
			err := recover()
			if err == nil {
				return
			}
			res := utils.ResponseData{
				Status:  fiber.StatusInternalServerError,
				Code:    "INTERNAL_SERVER_ERROR",
				Message: fmt.Sprintf("%v", err),
			}

			if ge, ok := err.(pkgError.GenericError); ok {
				res.Status = ge.StatusCode()
				res.Code = ge.ErrCode()
				res.Message = ge.Error()
			}

			log := logrus.WithFields(logrus.Fields{"method": ctx.Method(), "path": ctx.Path(), "status": res.Status})
			if res.Status >= fiber.StatusInternalServerError {
				log.Errorf("[REST] Panic recovered: %v", err)
			} else {
				log.Debugf("[REST] Request failed: %v", err)
			}

			_ = ctx.Status(res.Status).JSON(res)
		}()

		return ctx.Next()
	}
}
