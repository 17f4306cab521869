package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignedURLSignerGenerateAndParse(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, expiresAt, err := signer.Generate("42", "results/abc.pdf")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	grant, err := signer.Parse(token)
	require.NoError(t, err)
	require.Equal(t, "42", grant.ResourceID)
	require.Equal(t, "results/abc.pdf", grant.Key)
	require.WithinDuration(t, expiresAt, grant.ExpiresAt, time.Second)
}

func TestSignedURLSignerExpired(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Minute)
	token, _, err := signer.Generate("42", "results/abc.pdf")
	require.NoError(t, err)

	signer.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = signer.Parse(token)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestSignedURLSignerTampered(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, _, err := signer.Generate("42", "results/abc.pdf")
	require.NoError(t, err)

	other := NewSignedURLSigner("other-secret", time.Hour)
	_, err = other.Parse(token)
	require.ErrorIs(t, err, ErrTokenInvalid)

	_, err = signer.Parse("garbage")
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestSignedURLSignerRequiresInputs(t *testing.T) {
	_, _, err := NewSignedURLSigner("", time.Hour).Generate("42", "k")
	require.Error(t, err)
	_, _, err = NewSignedURLSigner("secret", time.Hour).Generate("", "k")
	require.Error(t, err)
}
