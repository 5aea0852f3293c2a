package api

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "github.com/socdo/notifyd/pkg/errors"
	"github.com/socdo/notifyd/pkg/response"
	appvalidator "github.com/socdo/notifyd/pkg/validator"
)

// bindAndValidate decodes the JSON payload into dest and runs the struct
// rules. On failure the error response is already written and false returned.
func bindAndValidate[T any](c *gin.Context, dest *T) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, apperrors.NewBadRequest("invalid JSON payload"))
		return false
	}

	if err := appvalidator.ValidateStruct(dest); err != nil {
		response.Error(c, apperrors.NewBadRequest(formatValidationError(err)))
		return false
	}

	return true
}

func formatValidationError(err error) string {
	fes, ok := err.(appvalidator.FieldErrors)
	if !ok || len(fes) == 0 {
		return "invalid request payload"
	}

	messages := make([]string, 0, len(fes))
	for _, fe := range fes {
		switch fe.Tag {
		case "required":
			messages = append(messages, fmt.Sprintf("%s is required", fe.Field))
		case "max":
			messages = append(messages, fmt.Sprintf("%s must be at most %s characters", fe.Field, fe.Param))
		case "oneof":
			messages = append(messages, fmt.Sprintf("%s must be one of: %s", fe.Field, fe.Param))
		default:
			if fe.Param != "" {
				messages = append(messages, fmt.Sprintf("%s failed validation: %s=%s", fe.Field, fe.Tag, fe.Param))
			} else {
				messages = append(messages, fmt.Sprintf("%s failed validation: %s", fe.Field, fe.Tag))
			}
		}
	}
	return strings.Join(messages, "; ")
}
