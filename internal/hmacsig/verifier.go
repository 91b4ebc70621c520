package hmacsig

import (
	"context"
	"crypto/hmac"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/logang-di/dsx-connect/internal/dcctx"
)

// CredentialSource resolves a key id to the connector that owns it and its shared
// secret. Revoked or unknown key ids return an error.
type CredentialSource interface {
	GetSecretForKeyId(ctx context.Context, keyId string) (connectorId uuid.UUID, secret string, err error)
}

// NonceStore provides the replay defense. CheckNonceValidAndMarkUsed must be atomic:
// the same nonce can pass at most once.
type NonceStore interface {
	CheckNonceValidAndMarkUsed(ctx context.Context, nonce uuid.UUID, retainRecordUntil time.Time) (wasValid bool, err error)
}

// Verifier authenticates inbound DSX-HMAC requests.
type Verifier struct {
	creds  CredentialSource
	nonces NonceStore
	skew   time.Duration
}

func NewVerifier(creds CredentialSource, nonces NonceStore, skew time.Duration) *Verifier {
	return &Verifier{
		creds:  creds,
		nonces: nonces,
		skew:   skew,
	}
}

// Verify checks the Authorization header against the request components and returns the
// authenticated connector id. Every failure path returns an error; callers respond 401
// without detail regardless of which check failed.
func (v *Verifier) Verify(ctx context.Context, method, pathWithQuery, authHeader string, body []byte) (uuid.UUID, error) {
	params, err := ParseAuthorization(authHeader)
	if err != nil {
		return uuid.Nil, err
	}

	now := dcctx.GetClock(ctx).Now()
	ts := time.Unix(params.Ts, 0)
	if ts.Before(now.Add(-v.skew)) || ts.After(now.Add(v.skew)) {
		return uuid.Nil, errors.New("request timestamp outside allowed clock skew")
	}

	nonce, err := uuid.Parse(params.Nonce)
	if err != nil {
		return uuid.Nil, errors.New("malformed nonce")
	}

	connectorId, secret, err := v.creds.GetSecretForKeyId(ctx, params.KeyId)
	if err != nil {
		return uuid.Nil, errors.Wrap(err, "failed to resolve key id")
	}

	canonical := CanonicalString(method, pathWithQuery, params.Ts, params.Nonce, body)
	expected := ComputeSignature(secret, canonical)
	if !hmac.Equal([]byte(expected), []byte(params.Sig)) {
		return uuid.Nil, errors.New("signature mismatch")
	}

	// The signature is checked before the nonce is burned so a forged request cannot
	// invalidate a nonce a legitimate caller is about to use.
	wasValid, err := v.nonces.CheckNonceValidAndMarkUsed(ctx, nonce, now.Add(2*v.skew))
	if err != nil {
		return uuid.Nil, errors.Wrap(err, "failed to check nonce")
	}

	if !wasValid {
		return uuid.Nil, errors.New("nonce has already been used")
	}

	return connectorId, nil
}
