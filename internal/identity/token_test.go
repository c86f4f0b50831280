package identity

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokens_RoundTrip(t *testing.T) {
	tokens := NewTokens("s3cret", "telecare")
	caller := Caller{ID: uuid.New(), Role: RoleProvider}

	raw, err := tokens.Issue(caller, time.Minute)
	require.NoError(t, err)

	got, err := tokens.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, caller, got)
}

func TestTokens_RejectsForeignSignatureAndExpiry(t *testing.T) {
	caller := Caller{ID: uuid.New(), Role: RolePatient}

	raw, err := NewTokens("other", "").Issue(caller, time.Minute)
	require.NoError(t, err)
	_, err = NewTokens("s3cret", "").Parse(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := NewTokens("s3cret", "").Issue(caller, -time.Minute)
	require.NoError(t, err)
	_, err = NewTokens("s3cret", "").Parse(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestMemoryDirectory(t *testing.T) {
	u := User{ID: uuid.New(), Role: RoleAdmin, DisplayName: "Ada", Email: "ada@example.com"}
	d := NewMemoryDirectory(u)

	got, err := d.Resolve(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.DisplayName)

	_, err = d.Resolve(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrUserNotFound)
}
