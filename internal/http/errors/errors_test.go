package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dropDatabas3/hellocards/internal/domain"
)

func TestFromError(t *testing.T) {
	cases := map[error]int{
		fmt.Errorf("%w: x", domain.ErrInvalidArgument):   http.StatusBadRequest,
		fmt.Errorf("%w: x", domain.ErrUnauthorized):      http.StatusUnauthorized,
		fmt.Errorf("%w: x", domain.ErrForbidden):         http.StatusForbidden,
		fmt.Errorf("%w: x", domain.ErrNotFound):          http.StatusNotFound,
		fmt.Errorf("%w: x", domain.ErrDuplicateIdentity): http.StatusConflict,
		fmt.Errorf("%w: x", domain.ErrSignature):         http.StatusUnprocessableEntity,
		fmt.Errorf("%w: x", domain.ErrRateLimited):       http.StatusTooManyRequests,
		fmt.Errorf("%w: x", domain.ErrIssuerUnavailable): http.StatusServiceUnavailable,
		stderrors.New("boom"):                            http.StatusInternalServerError,
		ErrMethodNotAllowed:                              http.StatusMethodNotAllowed,
	}
	for err, want := range cases {
		assert.Equal(t, want, FromError(err).HTTPStatus, err.Error())
	}
}

func TestWithDetailCopies(t *testing.T) {
	e := ErrNotFound.WithDetail("card x")
	assert.Equal(t, "card x", e.Detail)
	assert.Empty(t, ErrNotFound.Detail)
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, fmt.Errorf("%w: bad", domain.ErrSignature))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"SIGNATURE_INVALID"`)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
}
