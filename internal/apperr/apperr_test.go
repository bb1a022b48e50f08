package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindStatus(t *testing.T) {
	cases := map[Kind]int{
		KindAuthentication: http.StatusUnauthorized,
		KindConfiguration:  http.StatusInternalServerError,
		KindNotFound:       http.StatusNotFound,
		KindValidation:     http.StatusBadRequest,
		KindUpstream:       http.StatusBadGateway,
		KindForbidden:      http.StatusForbidden,
		KindConflict:       http.StatusConflict,
		KindRateLimited:    http.StatusTooManyRequests,
		KindInternal:       http.StatusInternalServerError,
	}
	for kind, status := range cases {
		assert.Equal(t, status, kind.Status(), kind.String())
	}
}

func TestWrappedErrorKeepsKindAndCause(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := fmt.Errorf("reconcile: %w", Wrap(KindUpstream, "Failed to reach payment provider", cause))

	assert.Equal(t, KindUpstream, KindOf(err))
	assert.Equal(t, "Failed to reach payment provider", Message(err))
	assert.Equal(t, cause.Error(), Details(err))
	assert.ErrorIs(t, err, cause)
}

func TestUnclassifiedErrorIsInternal(t *testing.T) {
	err := errors.New("boom")

	assert.Equal(t, KindInternal, KindOf(err))
	assert.Equal(t, "Internal server error", Message(err))
	assert.Equal(t, "boom", Details(err))
}

func TestNewHasNoDetails(t *testing.T) {
	err := New(KindValidation, "Name and email are required")
	assert.Equal(t, "", Details(err))
	assert.Equal(t, "Name and email are required", err.Error())
}
