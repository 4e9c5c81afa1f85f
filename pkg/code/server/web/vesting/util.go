package vesting

import (
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"

	"github.com/code-payments/code-vesting/pkg/code/vesting"
)

const (
	successJsonKey = "success"
	errorJsonKey   = "error"
)

type GenericApiResponseBody map[string]any

func NewGenericApiSuccessResponseBody() GenericApiResponseBody {
	return map[string]any{
		successJsonKey: true,
	}
}

func NewGenericApiFailureResponseBody(err error) GenericApiResponseBody {
	return map[string]any{
		successJsonKey: false,
		errorJsonKey:   err.Error(),
	}
}

func (b *GenericApiResponseBody) ToString() string {
	marshalled, _ := json.Marshal(b)
	return string(marshalled)
}

// HandleVestingErrorInWebContext maps an error from the vesting program to an
// HTTP status code and the error that's safe to surface to the caller
func HandleVestingErrorInWebContext(err error) (int, error) {
	if err == nil {
		return http.StatusOK, nil
	}

	switch {
	case vesting.IsValidationError(err):
		return http.StatusBadRequest, err
	case vesting.IsAuthorizationError(err):
		return http.StatusForbidden, err
	case vesting.IsNotFoundError(err):
		return http.StatusNotFound, err
	case vesting.IsStateError(err), vesting.IsResourceError(err):
		return http.StatusConflict, err
	default:
		return http.StatusInternalServerError, errors.New("internal server error")
	}
}
