package validator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type registrationPayload struct {
	DeviceToken string `json:"device_token" validate:"required,max=16"`
	Platform    string `json:"platform" validate:"required,oneof=android ios"`
}

func TestValidateStructSuccess(t *testing.T) {
	payload := registrationPayload{
		DeviceToken: "fcm-token",
		Platform:    "android",
	}

	require.NoError(t, ValidateStruct(payload))
}

func TestValidateStructFailures(t *testing.T) {
	payload := registrationPayload{
		DeviceToken: "",
		Platform:    "windows",
	}

	err := ValidateStruct(payload)
	require.Error(t, err)

	fes, ok := err.(FieldErrors)
	require.True(t, ok, "expected FieldErrors, got %T", err)
	require.Len(t, fes, 2)

	fields := make(map[string]string, len(fes))
	for _, fe := range fes {
		fields[fe.Field] = fe.Tag
	}
	require.Equal(t, "required", fields["device_token"])
	require.Equal(t, "oneof", fields["platform"])
}

func TestFieldErrorsMessage(t *testing.T) {
	fes := FieldErrors{
		{Field: "device_token", Tag: "max", Param: "16"},
		{Field: "platform", Tag: "required"},
	}

	require.Equal(t, "device_token failed on max=16; platform failed on required", fes.Error())
}
