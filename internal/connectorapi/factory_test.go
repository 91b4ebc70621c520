package connectorapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logang-di/dsx-connect/internal/database"
	"github.com/logang-di/dsx-connect/internal/encrypt"
	"github.com/logang-di/dsx-connect/internal/hmacsig"
)

func TestFactory(t *testing.T) {
	ctx := context.Background()
	cfg, db := database.MustApplyBlankTestDbConfig(t, nil)
	e := encrypt.NewEncryptService(cfg)
	f := NewFactory(cfg, db, e)

	mint := func(t *testing.T, baseUrl string) (*database.Connector, string) {
		secret := uuid.New().String()
		encrypted, err := e.EncryptStringGlobal(ctx, secret)
		require.NoError(t, err)

		connector := &database.Connector{
			ID:           uuid.New(),
			DisplayName:  "factory test connector",
			BaseUrl:      baseUrl,
			Capabilities: allCapabilities(),
			Status:       database.ConnectorStatusReady,
			HmacKeyId:    uuid.New().String(),
		}
		require.NoError(t, db.CreateConnector(ctx, connector))
		require.NoError(t, db.CreateHmacCredential(ctx, &database.HmacCredential{
			KeyId:           connector.HmacKeyId,
			ConnectorId:     connector.ID,
			EncryptedSecret: encrypted,
		}))

		return connector, secret
	}

	t.Run("builds a client that signs with the live credential", func(t *testing.T) {
		var gotAuth string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		connector, secret := mint(t, srv.URL)

		client, err := f.ForConnector(ctx, connector)
		require.NoError(t, err)
		require.NoError(t, client.RepoCheck(ctx))

		params, err := hmacsig.ParseAuthorization(gotAuth)
		require.NoError(t, err)
		assert.Equal(t, connector.HmacKeyId, params.KeyId)
		assert.Equal(t,
			hmacsig.ComputeSignature(secret, hmacsig.CanonicalString("GET", "/repo_check", params.Ts, params.Nonce, nil)),
			params.Sig)
	})

	t.Run("revoked credential is refused", func(t *testing.T) {
		connector, _ := mint(t, "http://127.0.0.1:1")

		encrypted, err := e.EncryptStringGlobal(ctx, "rotated-secret")
		require.NoError(t, err)
		require.NoError(t, db.ReplaceHmacCredential(ctx, &database.HmacCredential{
			KeyId:           uuid.New().String(),
			ConnectorId:     connector.ID,
			EncryptedSecret: encrypted,
		}))

		// The connector record still points at the old, now revoked key id.
		_, err = f.ForConnector(ctx, connector)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no live credential")
	})

	t.Run("connector without a credential is refused", func(t *testing.T) {
		connector := &database.Connector{
			ID:          uuid.New(),
			DisplayName: "credential-less",
			BaseUrl:     "http://127.0.0.1:1",
		}

		_, err := f.ForConnector(ctx, connector)
		require.Error(t, err)
	})
}
