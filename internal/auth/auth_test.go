package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret-key-12345678901234567890123456789012"

func TestParseToken(t *testing.T) {
	t.Parallel()

	valid, err := IssueToken(secret, "1", time.Hour)
	require.NoError(t, err)
	expired, err := IssueToken(secret, "1", -time.Hour)
	require.NoError(t, err)
	otherSecret, err := IssueToken("another-secret", "1", time.Hour)
	require.NoError(t, err)

	wrongAudience, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "1",
		Issuer:    Issuer,
		Audience:  jwt.ClaimStrings{"someone-else"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(secret))
	require.NoError(t, err)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    Issuer,
		Audience:  jwt.ClaimStrings{Audience},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(secret))
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		wantErr error
		wantID  string
	}{
		{name: "valid", token: valid, wantID: "1"},
		{name: "expired", token: expired, wantErr: ErrInvalidToken},
		{name: "wrong secret", token: otherSecret, wantErr: ErrInvalidToken},
		{name: "wrong audience", token: wrongAudience, wantErr: ErrInvalidToken},
		{name: "malformed", token: "malformed.token.here", wantErr: ErrInvalidToken},
		{name: "missing subject", token: noSubject, wantErr: ErrInvalidSubject},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			id, err := ParseToken(secret, tt.token)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, id.UserID)
		})
	}
}

func TestIdentityContext(t *testing.T) {
	t.Parallel()

	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	ctx := WithIdentity(context.Background(), Identity{UserID: "2"})
	id, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "2", id.UserID)
}
