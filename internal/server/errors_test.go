package server

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/jonathan/product-factory/internal/db"
	"github.com/jonathan/product-factory/internal/orchestrator"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"email exists", &ErrEmailAlreadyExists{Email: "a@b.com"}, http.StatusConflict},
		{"invalid credentials", &ErrInvalidCredentials{}, http.StatusUnauthorized},
		{"password mismatch", &ErrPasswordMismatch{}, http.StatusUnauthorized},
		{"user not found", &ErrUserNotFound{UserID: uuid.New()}, http.StatusNotFound},
		{"validation", &ErrValidation{Field: "email", Message: "required"}, http.StatusBadRequest},
		{"run active", orchestrator.ErrRunActive, http.StatusConflict},
		{"wrapped run active", fmt.Errorf("start: %w", orchestrator.ErrRunActive), http.StatusConflict},
		{"run not found", orchestrator.ErrRunNotFound, http.StatusNotFound},
		{"invalid stage", orchestrator.ErrInvalidStage, http.StatusBadRequest},
		{"not running", db.ErrNotRunning, http.StatusConflict},
		{"duplicate row", db.ErrDuplicate, http.StatusConflict},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}
