package response

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"orgadmin/pkg/apperror"
)

func TestFromError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{"not found", apperror.NotFound("role %s not found", "x"), http.StatusNotFound, "role x not found"},
		{"conflict", apperror.Conflict("dup"), http.StatusConflict, "dup"},
		{"forbidden", apperror.Forbidden("no"), http.StatusForbidden, "no"},
		{"validation", apperror.Validation("bad"), http.StatusBadRequest, "bad"},
		{"unauthenticated", apperror.Unauthenticated("who"), http.StatusUnauthorized, "who"},
		{"unavailable", apperror.Unavailable(errors.New("dial tcp")), http.StatusServiceUnavailable, "storage temporarily unavailable"},
		{"internal hides cause", apperror.Internal(errors.New("pq: secret")), http.StatusInternalServerError, "Internal Server Error"},
		{"untyped", errors.New("boom"), http.StatusInternalServerError, "Internal Server Error"},
		{"wrapped", fmt.Errorf("list: %w", apperror.Conflict("stale")), http.StatusConflict, "stale"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := FromError(tt.err)
			assert.Equal(t, "error", res.Status)
			assert.Equal(t, tt.status, res.StatusCode)
			assert.Equal(t, tt.msg, res.Error)
		})
	}
}
