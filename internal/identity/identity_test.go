package identity

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fixtrack/fixtrack/internal/actorcontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignParseRoundTrip(t *testing.T) {
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	actor := actorcontext.Actor{
		UserID: node.Generate(),
		Name:   "Dana Fixit",
		Role:   "Technician",
	}

	token, err := SignToken("test-secret", actor, time.Hour)
	require.NoError(t, err)

	parsed, err := ParseToken("test-secret", token)
	require.NoError(t, err)
	assert.Equal(t, actor.UserID, parsed.UserID)
	assert.Equal(t, actor.Name, parsed.Name)
	assert.Equal(t, "technician", parsed.Role)
}

func TestParseTokenRejectsBadInput(t *testing.T) {
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	actor := actorcontext.Actor{UserID: node.Generate(), Role: "admin"}

	_, err = ParseToken("secret", "")
	assert.ErrorIs(t, err, ErrMissingToken)

	_, err = ParseToken("secret", "not.a.jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)

	token, err := SignToken("secret", actor, time.Hour)
	require.NoError(t, err)
	_, err = ParseToken("wrong-secret", token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := SignToken("secret", actor, -time.Minute)
	require.NoError(t, err)
	_, err = ParseToken("secret", expired)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseTokenRequiresRole(t *testing.T) {
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	token, err := SignToken("secret", actorcontext.Actor{UserID: node.Generate()}, time.Hour)
	require.NoError(t, err)

	_, err = ParseToken("secret", token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
