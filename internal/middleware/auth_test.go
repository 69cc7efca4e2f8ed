package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"socialgraph/internal/auth"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionalAuth(t *testing.T) {
	secret := "test-secret-key-12345678901234567890123456789012"

	app := fiber.New()
	app.Get("/test", OptionalAuth(secret), func(c *fiber.Ctx) error {
		id, ok := auth.FromContext(c.UserContext())
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"userID": id.UserID, "authenticated": ok})
	})

	generateToken := func(userID string, exp time.Duration) string {
		s, err := auth.IssueToken(secret, userID, exp)
		require.NoError(t, err)
		return s
	}

	tests := []struct {
		name              string
		authHeader        string
		expectedStatus    int
		expectedUserID    string
		expectedAuthState bool
	}{
		{
			name:              "Happy Path",
			authHeader:        "Bearer " + generateToken("123", time.Hour),
			expectedStatus:    http.StatusOK,
			expectedUserID:    "123",
			expectedAuthState: true,
		},
		{
			name:           "Missing Header Is Anonymous",
			authHeader:     "",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "Invalid Format",
			authHeader:     "Basic dXNlcjpwYXNz",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Malformed Token",
			authHeader:     "Bearer malformed.token.here",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Expired Token",
			authHeader:     "Bearer " + generateToken("123", -time.Hour),
			expectedStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}

			resp, err := app.Test(req)
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)

			if tt.expectedStatus != http.StatusOK {
				return
			}
			var body struct {
				UserID        string `json:"userID"`
				Authenticated bool   `json:"authenticated"`
			}
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.expectedUserID, body.UserID)
			assert.Equal(t, tt.expectedAuthState, body.Authenticated)
		})
	}
}

func TestBearerToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		header string
		token  string
		ok     bool
	}{
		{"", "", true},
		{"Bearer abc", "abc", true},
		{"Bearer", "", false},
		{"Token abc", "", false},
		{"Bearer a b", "", false},
	}
	for _, tt := range tests {
		token, ok := BearerToken(tt.header)
		assert.Equal(t, tt.ok, ok, tt.header)
		assert.Equal(t, tt.token, token, tt.header)
	}
}
