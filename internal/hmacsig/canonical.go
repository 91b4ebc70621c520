package hmacsig

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/pkg/errors"
)

// AuthScheme is the Authorization header scheme used between connectors and the core.
const AuthScheme = "DSX-HMAC"

// CanonicalString builds the string that is signed for a request:
//
//	METHOD|PATH?QUERY|ts|nonce|body
//
// The path includes the query string exactly as sent, so a request cannot be replayed
// against a different resource or with altered parameters.
func CanonicalString(method, pathWithQuery string, ts int64, nonce string, body []byte) string {
	return fmt.Sprintf("%s|%s|%d|%s|%s", strings.ToUpper(method), pathWithQuery, ts, nonce, body)
}

// ComputeSignature HMAC-SHA256s the canonical string with the shared secret and returns
// the base64 signature.
func ComputeSignature(secret string, canonical string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(canonical))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// FormatAuthorization renders the Authorization header value for a signed request.
func FormatAuthorization(keyId string, ts int64, nonce string, sig string) string {
	return fmt.Sprintf(`%s key_id=%s, ts=%d, nonce=%s, sig=%s`, AuthScheme, keyId, ts, nonce, sig)
}

// AuthParams are the components parsed out of a DSX-HMAC Authorization header.
type AuthParams struct {
	KeyId string
	Ts    int64
	Nonce string
	Sig   string
}

// ParseAuthorization parses an Authorization header value. Any malformed header returns
// an error; callers must not distinguish between malformed and unauthorized responses.
func ParseAuthorization(header string) (*AuthParams, error) {
	if header == "" {
		return nil, errors.New("authorization header not present")
	}

	if !strings.HasPrefix(header, AuthScheme+" ") {
		return nil, errors.Errorf("authorization scheme is not %s", AuthScheme)
	}

	params := &AuthParams{}
	seen := map[string]bool{}

	for _, part := range strings.Split(strings.TrimPrefix(header, AuthScheme+" "), ",") {
		part = strings.TrimSpace(part)
		key, value, found := strings.Cut(part, "=")
		if !found || value == "" {
			return nil, errors.Errorf("malformed authorization parameter '%s'", part)
		}

		if seen[key] {
			return nil, errors.Errorf("duplicate authorization parameter '%s'", key)
		}
		seen[key] = true

		switch key {
		case "key_id":
			params.KeyId = value
		case "ts":
			var err error
			if _, err = fmt.Sscanf(value, "%d", &params.Ts); err != nil {
				return nil, errors.Errorf("malformed timestamp '%s'", value)
			}
		case "nonce":
			params.Nonce = value
		case "sig":
			// Signatures are base64 and may contain '='; recover the full value
			params.Sig = strings.TrimPrefix(part, "sig=")
		default:
			return nil, errors.Errorf("unknown authorization parameter '%s'", key)
		}
	}

	if params.KeyId == "" || params.Ts == 0 || params.Nonce == "" || params.Sig == "" {
		return nil, errors.New("authorization header is missing required parameters")
	}

	return params, nil
}

// RequestURIOf returns the path plus query exactly as it should be signed for a request.
func RequestURIOf(req *http.Request) string {
	if req.URL.RawQuery != "" {
		return req.URL.Path + "?" + req.URL.RawQuery
	}

	return req.URL.Path
}
