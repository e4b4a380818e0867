package utils

import (
	pkgError "github.com/AzielCF/az-connect/pkg/error"
	"github.com/sirupsen/logrus"
)

type ResponseData struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Results any    `json:"results,omitempty"`
}

// PanicIfNeeded panics with err so the Recovery middleware renders it.
// Errors that are not GenericError are rendered as 500.
func PanicIfNeeded(err any) {
	if err == nil {
		return
	}
	if e, ok := err.(error); ok {
		if ge, ok := pkgError.AsGeneric(e); ok {
			panic(ge)
		}
		logrus.Errorf("panic: %v", e)
	}
	panic(err)
}
