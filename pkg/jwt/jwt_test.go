package jwt

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestVerifyToken(t *testing.T) {
	verifier := NewVerifier("test-secret-key-for-unit-tests-only")
	userID := uuid.New()

	token, err := verifier.SignToken(userID, "alice", 15*time.Minute)
	assert.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := verifier.VerifyToken(token)
	assert.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "alice", claims.Username)
}

func TestVerifyToken_WrongSecret(t *testing.T) {
	verifier := NewVerifier("test-secret-key-for-unit-tests-only")
	other := NewVerifier("a-completely-different-secret-key")

	token, err := verifier.SignToken(uuid.New(), "alice", 15*time.Minute)
	assert.NoError(t, err)

	_, err = other.VerifyToken(token)
	assert.Error(t, err)
}

func TestVerifyToken_Expired(t *testing.T) {
	verifier := NewVerifier("test-secret-key-for-unit-tests-only")

	token, err := verifier.SignToken(uuid.New(), "alice", -1*time.Minute)
	assert.NoError(t, err)

	_, err = verifier.VerifyToken(token)
	assert.Error(t, err)
}

func TestVerifyToken_Garbage(t *testing.T) {
	verifier := NewVerifier("test-secret-key-for-unit-tests-only")

	_, err := verifier.VerifyToken("not-a-token")
	assert.Error(t, err)
}
