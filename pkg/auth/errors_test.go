package auth

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKind_Status(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, KindUnauthenticated.Status())
	assert.Equal(t, http.StatusForbidden, KindForbidden.Status())
	assert.Equal(t, http.StatusNotFound, KindNotFound.Status())
	assert.Equal(t, http.StatusBadRequest, KindValidation.Status())
	assert.Equal(t, http.StatusInternalServerError, Kind(0).Status())
}

func TestError_WrapsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Unauthenticated("unable to verify API key", fmt.Errorf("%w: %w", ErrStoreUnavailable, cause))

	assert.True(t, errors.Is(err, ErrStoreUnavailable))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "unable to verify API key", err.Message)
	assert.Contains(t, err.Error(), "connection refused")

	kind, ok := KindOf(fmt.Errorf("handler: %w", err))
	assert.True(t, ok)
	assert.Equal(t, KindUnauthenticated, kind)

	_, ok = KindOf(cause)
	assert.False(t, ok)
}
