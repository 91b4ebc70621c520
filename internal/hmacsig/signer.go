package hmacsig

import (
	"bytes"
	"io"

	"gopkg.in/h2non/gentleman.v2/context"
	"gopkg.in/h2non/gentleman.v2/plugin"

	"github.com/logang-di/dsx-connect/internal/dcctx"
)

// Signer signs outbound requests with a connector credential.
type Signer struct {
	KeyId  string
	Secret string
}

// Sign produces the Authorization header value for the passed request components.
func (s *Signer) Sign(method, pathWithQuery string, ts int64, nonce string, body []byte) string {
	canonical := CanonicalString(method, pathWithQuery, ts, nonce, body)
	return FormatAuthorization(s.KeyId, ts, nonce, ComputeSignature(s.Secret, canonical))
}

// Plugin returns a gentleman plugin that signs every request sent through the client.
// The timestamp and nonce come from the request context so tests can pin both. The
// signer runs in the "before dial" phase so it sees the final method, path, query, and
// body rather than the defaults the request-phase middleware has not yet applied.
func (s *Signer) Plugin() plugin.Plugin {
	return plugin.NewPhasePlugin("before dial", func(ctx *context.Context, h context.Handler) {
		var body []byte
		if ctx.Request.Body != nil {
			var err error
			body, err = io.ReadAll(ctx.Request.Body)
			if err != nil {
				h.Error(ctx, err)
				return
			}
			ctx.Request.Body = io.NopCloser(bytes.NewReader(body))
		}

		ts := dcctx.GetClock(ctx.Request.Context()).Now().Unix()
		nonce := dcctx.GetUuidGenerator(ctx.Request.Context()).New().String()

		ctx.Request.Header.Set("Authorization", s.Sign(ctx.Request.Method, RequestURIOf(ctx.Request), ts, nonce, body))
		h.Next(ctx)
	})
}
