package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeValidator accepts a fixed set of tokens mapped to user IDs.
type fakeValidator struct {
	tokens map[string]uuid.UUID
}

func (v *fakeValidator) ValidateToken(tokenString string) (UserIDGetter, error) {
	userID, ok := v.tokens[tokenString]
	if !ok {
		return nil, errors.New("invalid token")
	}
	return fakeClaims{userID: userID}, nil
}

type fakeClaims struct {
	userID uuid.UUID
}

func (c fakeClaims) GetUserID() uuid.UUID { return c.userID }

func authRequest(header string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/projects", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	return req
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	userID := uuid.New()
	validator := &fakeValidator{tokens: map[string]uuid.UUID{"good-token": userID}}

	var seenUserID uuid.UUID
	called := false
	handler := AuthMiddleware(validator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		id, err := GetUserID(r)
		require.NoError(t, err)
		seenUserID = id
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authRequest("Bearer good-token"))

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, userID, seenUserID)
}

func TestAuthMiddleware_SchemeIsCaseInsensitive(t *testing.T) {
	userID := uuid.New()
	validator := &fakeValidator{tokens: map[string]uuid.UUID{"good-token": userID}}

	handler := AuthMiddleware(validator)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, header := range []string{"bearer good-token", "BEARER good-token", "BeArEr good-token"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, authRequest(header))
		assert.Equal(t, http.StatusOK, rec.Code, header)
	}
}

func TestAuthMiddleware_Rejections(t *testing.T) {
	validator := &fakeValidator{tokens: map[string]uuid.UUID{"good-token": uuid.New()}}

	tests := []struct {
		name   string
		header string
	}{
		{name: "no header", header: ""},
		{name: "no scheme", header: "good-token"},
		{name: "scheme only", header: "Bearer"},
		{name: "empty token", header: "Bearer "},
		{name: "wrong scheme", header: "Basic good-token"},
		{name: "unknown token", header: "Bearer forged-token"},
		{name: "extra parts", header: "Bearer one two"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := AuthMiddleware(validator)(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
				called = true
			}))

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, authRequest(tt.header))

			assert.False(t, called, "handler must not run")
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), "Unauthorized")
		})
	}
}

func TestGetUserID(t *testing.T) {
	userID := uuid.New()

	req := authRequest("")
	req = req.WithContext(context.WithValue(req.Context(), userIDKey, userID))

	got, err := GetUserID(req)
	require.NoError(t, err)
	assert.Equal(t, userID, got)
}

func TestGetUserID_Missing(t *testing.T) {
	got, err := GetUserID(authRequest(""))
	require.Error(t, err)
	assert.Equal(t, uuid.Nil, got)
	assert.Contains(t, err.Error(), "user ID not found")
}

func TestGetUserID_WrongType(t *testing.T) {
	req := authRequest("")
	req = req.WithContext(context.WithValue(req.Context(), userIDKey, "not-a-uuid"))

	got, err := GetUserID(req)
	require.Error(t, err)
	assert.Equal(t, uuid.Nil, got)
}
