package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/require"
)

func TestSignAndValidate(t *testing.T) {
	v := NewHMACValidator("secret", quartz.NewMock(t))

	token := v.Sign("alice", time.Hour)
	id, err := v.Validate(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, "alice", id.Subject)
}

func TestValidateRejectsTamperedSubject(t *testing.T) {
	v := NewHMACValidator("secret", quartz.NewMock(t))

	token := v.Sign("alice", time.Hour)
	forged := v.Sign("mallory", time.Hour)

	// graft mallory's subject onto alice's signature
	parts := strings.Split(token, ".")
	forgedParts := strings.Split(forged, ".")
	mixed := forgedParts[0] + "." + parts[1] + "." + parts[2]

	_, err := v.Validate(context.Background(), mixed)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	clock := quartz.NewMock(t)
	signer := NewHMACValidator("secret-a", clock)
	verifier := NewHMACValidator("secret-b", clock)

	_, err := verifier.Validate(context.Background(), signer.Sign("alice", time.Hour))
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateRejectsExpired(t *testing.T) {
	clock := quartz.NewMock(t)
	v := NewHMACValidator("secret", clock)

	token := v.Sign("alice", time.Minute)
	clock.Advance(2 * time.Minute)

	_, err := v.Validate(context.Background(), token)
	require.ErrorIs(t, err, ErrExpiredToken)
}

func TestValidateRejectsGarbage(t *testing.T) {
	v := NewHMACValidator("secret", quartz.NewMock(t))

	for _, token := range []string{"", "a.b", "a.b.c.d", "!!.123.sig"} {
		_, err := v.Validate(context.Background(), token)
		require.ErrorIs(t, err, ErrInvalidToken, token)
	}
}

func TestNoopValidator(t *testing.T) {
	id, err := NoopValidator{}.Validate(context.Background(), "anything")
	require.NoError(t, err)
	require.Nil(t, id)
}
