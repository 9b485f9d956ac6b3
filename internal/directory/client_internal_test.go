package directory

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dropDatabas3/hellocards/internal/domain"
)

func TestStatusError(t *testing.T) {
	body := func(code string) []byte {
		b, _ := json.Marshal(ErrorBody{Code: code, Message: "msg"})
		return b
	}
	cases := []struct {
		status int
		code   string
		want   error
	}{
		{http.StatusBadRequest, "BAD_REQUEST", domain.ErrInvalidArgument},
		{http.StatusUnauthorized, "TOKEN_INVALID", domain.ErrUnauthorized},
		{http.StatusForbidden, "FORBIDDEN", domain.ErrForbidden},
		{http.StatusNotFound, "NOT_FOUND", domain.ErrNotFound},
		{http.StatusConflict, "DUPLICATE_IDENTITY", domain.ErrDuplicateIdentity},
		{http.StatusUnprocessableEntity, CodeSignatureInvalid, domain.ErrSignature},
		{http.StatusUnprocessableEntity, "OTHER", domain.ErrInvalidArgument},
		{http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", domain.ErrRateLimited},
		{http.StatusBadGateway, "", domain.ErrNetwork},
		{http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", domain.ErrNetwork},
	}
	for _, tc := range cases {
		err := statusError(tc.status, body(tc.code))
		assert.ErrorIs(t, err, tc.want, "status %d", tc.status)
	}

	err := statusError(http.StatusServiceUnavailable, []byte("not json"))
	assert.True(t, domain.IsTransient(err))
}
