package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAs_WrappedAppError(t *testing.T) {
	err := fmt.Errorf("login: %w", ErrInvalidCredentials)

	appErr := As(err)
	assert.Equal(t, KindAuthentication, appErr.Kind)
	assert.Equal(t, "INVALID_CREDENTIALS", appErr.Code)
	assert.True(t, errors.Is(err, ErrInvalidCredentials))
}

func TestAs_PlainErrorIsInternal(t *testing.T) {
	cause := errors.New("connection refused")
	appErr := As(cause)

	assert.Equal(t, KindInternal, appErr.Kind)
	assert.ErrorIs(t, appErr, cause)
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, HTTPStatus(KindAuthentication))
	assert.Equal(t, http.StatusForbidden, HTTPStatus(KindAuthorization))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(KindValidation))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(KindNotFound))
	assert.Equal(t, http.StatusConflict, HTTPStatus(KindConflict))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(KindInternal))
}
