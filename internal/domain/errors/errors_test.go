package errors

import (
	stderrors "errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Constructors(t *testing.T) {
	err := NewAppError(http.StatusBadRequest, CodeBadRequest, "bad", ErrBadRequest)
	assert.Equal(t, http.StatusBadRequest, err.Status)
	assert.Equal(t, CodeBadRequest, err.Code)
	assert.Equal(t, ErrBadRequest.Error(), err.Error())

	notFound := NotFound("missing")
	assert.Equal(t, http.StatusNotFound, notFound.Status)
	assert.Equal(t, CodeNotFound, notFound.Code)

	conflict := Conflict("exists")
	assert.Equal(t, http.StatusConflict, conflict.Status)
	assert.Equal(t, CodeConflict, conflict.Code)

	internal := InternalError(stderrors.New("db down"))
	assert.Equal(t, http.StatusInternalServerError, internal.Status)
	assert.Equal(t, CodeInternalError, internal.Code)
	assert.Equal(t, "db down", internal.Error())

	custom := NewError("custom", ErrForbidden)
	assert.Equal(t, ErrForbidden.Error(), custom.Error())

	badReq := BadRequest("bad request")
	assert.Equal(t, http.StatusBadRequest, badReq.Status)
	assert.Equal(t, CodeInvalidInput, badReq.Code)

	unauth := Unauthorized("unauthorized")
	assert.Equal(t, http.StatusUnauthorized, unauth.Status)
	assert.Equal(t, CodeUnauthorized, unauth.Code)

	forbidden := Forbidden("forbidden")
	assert.Equal(t, http.StatusForbidden, forbidden.Status)
	assert.Equal(t, CodeForbidden, forbidden.Code)

	internalMsg := InternalServerError("boom")
	assert.Equal(t, http.StatusInternalServerError, internalMsg.Status)
	assert.Equal(t, "boom", internalMsg.Message)
	assert.Equal(t, "boom", internalMsg.Error())
}

func TestAppError_TaxonomyConstructors(t *testing.T) {
	rl := RateLimited("too many requests")
	assert.Equal(t, http.StatusTooManyRequests, rl.Status)
	assert.Equal(t, CodeRateLimit, rl.Code)
	assert.ErrorIs(t, rl, ErrRateLimitExceeded)

	ext := ExternalProvider("gateway down", stderrors.New("timeout"))
	assert.Equal(t, http.StatusBadGateway, ext.Status)
	assert.Equal(t, CodeExternalProvider, ext.Code)
	assert.Equal(t, "timeout", ext.Error())

	extDefault := ExternalProvider("gateway down", nil)
	assert.ErrorIs(t, extDefault, ErrExternalProvider)

	integrity := Integrity("amount mismatch", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, integrity.Status)
	assert.ErrorIs(t, integrity, ErrIntegrityMismatch)

	fatal := FatalConfig("missing env", nil)
	assert.Equal(t, http.StatusInternalServerError, fatal.Status)
	assert.Equal(t, CodeFatalConfig, fatal.Code)
}

func TestAppError_Unwrap(t *testing.T) {
	wrapped := stderrors.New("root cause")
	err := InternalError(wrapped)
	assert.ErrorIs(t, err, wrapped)
}
