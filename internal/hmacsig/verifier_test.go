package hmacsig

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/h2non/gentleman.v2"

	"github.com/logang-di/dsx-connect/internal/dclog"
	"github.com/logang-di/dsx-connect/internal/dcctx"
)

type fakeCredentialSource struct {
	keyId       string
	secret      string
	connectorId uuid.UUID
}

func (f *fakeCredentialSource) GetSecretForKeyId(ctx context.Context, keyId string) (uuid.UUID, string, error) {
	if keyId != f.keyId {
		return uuid.Nil, "", errors.New("unknown key id")
	}

	return f.connectorId, f.secret, nil
}

type fakeNonceStore struct {
	used map[uuid.UUID]bool
}

func (f *fakeNonceStore) CheckNonceValidAndMarkUsed(ctx context.Context, nonce uuid.UUID, retainRecordUntil time.Time) (bool, error) {
	if f.used == nil {
		f.used = map[uuid.UUID]bool{}
	}

	if f.used[nonce] {
		return false, nil
	}

	f.used[nonce] = true
	return true, nil
}

func TestVerifier(t *testing.T) {
	keyId := uuid.New().String()
	connectorId := uuid.New()
	secret := "sufficiently-long-shared-secret"
	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

	setup := func() (*Verifier, *Signer, context.Context) {
		creds := &fakeCredentialSource{keyId: keyId, secret: secret, connectorId: connectorId}
		v := NewVerifier(creds, &fakeNonceStore{}, 5*time.Minute)
		s := &Signer{KeyId: keyId, Secret: secret}
		ctx := dcctx.NewBuilderBackground().WithFixedClock(now).Build()
		return v, s, ctx
	}

	t.Run("round trip", func(t *testing.T) {
		v, s, ctx := setup()
		body := []byte(`{"path":"/inbox/report.pdf"}`)
		header := s.Sign("POST", "/dsx-connect/v1/scan/request", now.Unix(), uuid.New().String(), body)

		got, err := v.Verify(ctx, "POST", "/dsx-connect/v1/scan/request", header, body)
		require.NoError(t, err)
		assert.Equal(t, connectorId, got)
	})

	t.Run("replayed nonce is rejected", func(t *testing.T) {
		v, s, ctx := setup()
		body := []byte(`{"path":"/inbox/report.pdf"}`)
		header := s.Sign("POST", "/dsx-connect/v1/scan/request", now.Unix(), uuid.New().String(), body)

		_, err := v.Verify(ctx, "POST", "/dsx-connect/v1/scan/request", header, body)
		require.NoError(t, err)

		_, err = v.Verify(ctx, "POST", "/dsx-connect/v1/scan/request", header, body)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "nonce")
	})

	t.Run("tampered body is rejected", func(t *testing.T) {
		v, s, ctx := setup()
		header := s.Sign("POST", "/dsx-connect/v1/scan/request", now.Unix(), uuid.New().String(), []byte(`{"path":"/a"}`))

		_, err := v.Verify(ctx, "POST", "/dsx-connect/v1/scan/request", header, []byte(`{"path":"/b"}`))
		assert.Error(t, err)
	})

	t.Run("different path is rejected", func(t *testing.T) {
		v, s, ctx := setup()
		body := []byte(`{}`)
		header := s.Sign("POST", "/dsx-connect/v1/scan/request", now.Unix(), uuid.New().String(), body)

		_, err := v.Verify(ctx, "POST", "/dsx-connect/v1/enroll", header, body)
		assert.Error(t, err)
	})

	t.Run("query string is part of the signature", func(t *testing.T) {
		v, s, ctx := setup()
		header := s.Sign("GET", "/dsx-connect/v1/state/cursors?key=last", now.Unix(), uuid.New().String(), nil)

		_, err := v.Verify(ctx, "GET", "/dsx-connect/v1/state/cursors?key=other", header, nil)
		assert.Error(t, err)

		_, err = v.Verify(ctx, "GET", "/dsx-connect/v1/state/cursors?key=last", header, nil)
		assert.NoError(t, err)
	})

	t.Run("timestamp outside skew is rejected", func(t *testing.T) {
		v, s, ctx := setup()
		body := []byte(`{}`)

		for _, ts := range []int64{
			now.Add(-6 * time.Minute).Unix(),
			now.Add(6 * time.Minute).Unix(),
		} {
			header := s.Sign("POST", "/dsx-connect/v1/scan/request", ts, uuid.New().String(), body)
			_, err := v.Verify(ctx, "POST", "/dsx-connect/v1/scan/request", header, body)
			assert.Error(t, err)
		}
	})

	t.Run("timestamp just inside skew is accepted", func(t *testing.T) {
		v, s, ctx := setup()
		body := []byte(`{}`)
		header := s.Sign("POST", "/dsx-connect/v1/scan/request", now.Add(-4*time.Minute).Unix(), uuid.New().String(), body)

		_, err := v.Verify(ctx, "POST", "/dsx-connect/v1/scan/request", header, body)
		assert.NoError(t, err)
	})

	t.Run("unknown key id is rejected", func(t *testing.T) {
		v, _, ctx := setup()
		other := &Signer{KeyId: uuid.New().String(), Secret: secret}
		body := []byte(`{}`)
		header := other.Sign("POST", "/dsx-connect/v1/scan/request", now.Unix(), uuid.New().String(), body)

		_, err := v.Verify(ctx, "POST", "/dsx-connect/v1/scan/request", header, body)
		assert.Error(t, err)
	})

	t.Run("wrong secret is rejected", func(t *testing.T) {
		v, _, ctx := setup()
		other := &Signer{KeyId: keyId, Secret: "some-other-secret"}
		body := []byte(`{}`)
		header := other.Sign("POST", "/dsx-connect/v1/scan/request", now.Unix(), uuid.New().String(), body)

		_, err := v.Verify(ctx, "POST", "/dsx-connect/v1/scan/request", header, body)
		assert.Error(t, err)
	})
}

func TestGinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	keyId := uuid.New().String()
	connectorId := uuid.New()
	secret := "sufficiently-long-shared-secret"
	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

	creds := &fakeCredentialSource{keyId: keyId, secret: secret, connectorId: connectorId}
	v := NewVerifier(creds, &fakeNonceStore{}, 5*time.Minute)
	s := &Signer{KeyId: keyId, Secret: secret}

	router := gin.New()
	router.Use(GinMiddleware(v, dclog.NewNoopLogger()))
	router.POST("/echo", func(gctx *gin.Context) {
		gctx.JSON(http.StatusOK, gin.H{"connector_id": MustGetConnectorId(gctx).String()})
	})

	doReq := func(authHeader string, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(body))
		req = req.WithContext(dcctx.NewBuilderBackground().WithFixedClock(now).Build())
		if authHeader != "" {
			req.Header.Set("Authorization", authHeader)
		}

		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	t.Run("signed request passes and exposes the connector id", func(t *testing.T) {
		body := `{"hello":"world"}`
		header := s.Sign("POST", "/echo", now.Unix(), uuid.New().String(), []byte(body))

		w := doReq(header, body)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), connectorId.String())
	})

	t.Run("missing header gets a bare 401", func(t *testing.T) {
		w := doReq("", `{}`)
		require.Equal(t, http.StatusUnauthorized, w.Code)
		assert.JSONEq(t, `{"error":"authentication failed"}`, w.Body.String())
	})

	t.Run("bad signature gets the same 401 body", func(t *testing.T) {
		body := `{"hello":"world"}`
		header := s.Sign("POST", "/echo", now.Unix(), uuid.New().String(), []byte(`{"hello":"tampered"}`))

		w := doReq(header, body)
		require.Equal(t, http.StatusUnauthorized, w.Code)
		assert.JSONEq(t, `{"error":"authentication failed"}`, w.Body.String())
	})
}

func TestSignerPlugin(t *testing.T) {
	keyId := uuid.New().String()
	connectorId := uuid.New()
	secret := "sufficiently-long-shared-secret"

	creds := &fakeCredentialSource{keyId: keyId, secret: secret, connectorId: connectorId}
	v := NewVerifier(creds, &fakeNonceStore{}, 5*time.Minute)

	var gotAuth string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx := context.Background()

	s := &Signer{KeyId: keyId, Secret: secret}
	cli := gentleman.New().URL(srv.URL).UseContext(ctx).Use(s.Plugin())

	resp, err := cli.Request().
		Method(http.MethodPost).
		Path("/dsx-connect/v1/scan/request").
		BodyString(`{"path":"/inbox/report.pdf"}`).
		Send()
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NotEmpty(t, gotAuth)
	got, err := v.Verify(ctx, "POST", "/dsx-connect/v1/scan/request", gotAuth, gotBody)
	require.NoError(t, err)
	assert.Equal(t, connectorId, got)
}
