package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorsIsMatchesByKind(t *testing.T) {
	err := fmt.Errorf("update quote: %w", StaleState("quote %s changed", "q-1"))

	assert.True(t, errors.Is(err, ErrStaleState))
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, KindStaleState, KindOf(err))
	assert.Equal(t, "update quote: quote q-1 changed", err.Error())
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{IncompleteEstimate("missing"), http.StatusBadRequest},
		{InvalidInput("bad"), http.StatusBadRequest},
		{Unauthorized("no"), http.StatusForbidden},
		{NotFound("gone"), http.StatusNotFound},
		{StaleState("again"), http.StatusConflict},
		{InvalidTransition("nope"), http.StatusConflict},
		{NotConvertible("nope"), http.StatusConflict},
		{ImmutableState("frozen"), http.StatusConflict},
		{errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HTTPStatus(tt.err), tt.err.Error())
	}
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "Something went wrong. Please try again.", UserMessage(errors.New("pq: connection refused")))
	assert.Equal(t, headlines[KindStaleState], UserMessage(ErrStaleState))
	assert.Contains(t, UserMessage(IncompleteEstimate("missing estimate for service svc-2")), "svc-2")
}
