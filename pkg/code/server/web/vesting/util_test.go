package vesting

import (
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/code-payments/code-vesting/pkg/code/ledger"
	"github.com/code-payments/code-vesting/pkg/code/vesting"
)

func TestHandleVestingErrorInWebContext(t *testing.T) {
	for _, tc := range []struct {
		err      error
		expected int
	}{
		{nil, http.StatusOK},
		{errors.Wrap(vesting.ErrMalformedSchedule, "context"), http.StatusBadRequest},
		{errors.Wrap(ledger.ErrInvalidAmount, "source and destination are the same account"), http.StatusBadRequest},
		{errors.Wrap(vesting.ErrInvalidTokenAccount, "context"), http.StatusForbidden},
		{vesting.ErrContractNotFound, http.StatusNotFound},
		{vesting.ErrNothingToRelease, http.StatusConflict},
		{errors.New("unexpected"), http.StatusInternalServerError},
	} {
		statusCode, err := HandleVestingErrorInWebContext(tc.err)
		assert.Equal(t, tc.expected, statusCode)
		if tc.err == nil {
			assert.NoError(t, err)
		} else {
			assert.Error(t, err)
		}
	}
}
