package connectorapi

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logang-di/dsx-connect/internal/config"
	"github.com/logang-di/dsx-connect/internal/database"
	"github.com/logang-di/dsx-connect/internal/hmacsig"
)

func testConnectorClient(t *testing.T, caps database.Capabilities, handler http.HandlerFunc) (Client, *hmacsig.Signer) {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	signer := &hmacsig.Signer{KeyId: uuid.New().String(), Secret: "shared-secret"}
	connector := &database.Connector{
		ID:           uuid.New(),
		DisplayName:  "test connector",
		BaseUrl:      srv.URL,
		Capabilities: caps,
		Status:       database.ConnectorStatusReady,
	}

	return newClient(connector, signer, 5*time.Second, 5*time.Second), signer
}

func allCapabilities() database.Capabilities {
	return database.Capabilities{
		database.CapabilityFullScan,
		database.CapabilityRead,
		database.CapabilityItemAction,
	}
}

func TestReadFile(t *testing.T) {
	t.Run("streams content and signs the request", func(t *testing.T) {
		var gotAuth string
		c, _ := testConnectorClient(t, allCapabilities(), func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			require.Equal(t, "/read_file", r.URL.Path)
			gotAuth = r.Header.Get("Authorization")

			body, _ := io.ReadAll(r.Body)
			assert.Contains(t, string(body), "inbox/report.pdf")

			_, _ = w.Write([]byte("file content bytes"))
		})

		rc, err := c.ReadFile(context.Background(), ReadFileRequest{Location: "inbox/report.pdf"})
		require.NoError(t, err)
		defer rc.Close()

		content, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, "file content bytes", string(content))
		assert.Contains(t, gotAuth, hmacsig.AuthScheme)
	})

	t.Run("missing read capability never dispatches", func(t *testing.T) {
		dispatched := false
		c, _ := testConnectorClient(t, database.Capabilities{database.CapabilityFullScan}, func(w http.ResponseWriter, r *http.Request) {
			dispatched = true
		})

		_, err := c.ReadFile(context.Background(), ReadFileRequest{Location: "a/b.txt"})
		require.Error(t, err)
		assert.True(t, IsNotImplemented(err))
		assert.False(t, dispatched)
	})

	t.Run("5xx is retriable", func(t *testing.T) {
		c, _ := testConnectorClient(t, allCapabilities(), func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})

		_, err := c.ReadFile(context.Background(), ReadFileRequest{Location: "a/b.txt"})
		require.Error(t, err)
		assert.True(t, IsUnavailable(err))
	})

	t.Run("401 is an authentication failure", func(t *testing.T) {
		c, _ := testConnectorClient(t, allCapabilities(), func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})

		_, err := c.ReadFile(context.Background(), ReadFileRequest{Location: "a/b.txt"})
		require.Error(t, err)
		assert.True(t, IsAuthentication(err))
		assert.False(t, IsUnavailable(err))
	})

	t.Run("unreachable connector is retriable", func(t *testing.T) {
		connector := &database.Connector{
			ID:           uuid.New(),
			BaseUrl:      "http://127.0.0.1:1",
			Capabilities: allCapabilities(),
		}
		c := newClient(connector, &hmacsig.Signer{KeyId: "k", Secret: "s"}, time.Second, time.Second)

		_, err := c.ReadFile(context.Background(), ReadFileRequest{Location: "a/b.txt"})
		require.Error(t, err)
		assert.True(t, IsUnavailable(err))
	})
}

func TestItemAction(t *testing.T) {
	jobId := uuid.New()

	t.Run("successful action", func(t *testing.T) {
		c, _ := testConnectorClient(t, allCapabilities(), func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPut, r.Method)
			require.Equal(t, "/item_action", r.URL.Path)
			_, _ = w.Write([]byte(`{"outcome":"succeeded","detail":"moved to quarantine/"}`))
		})

		result, err := c.ItemAction(context.Background(), ItemActionRequest{
			JobId:    jobId,
			Location: "inbox/report.pdf",
			Action:   config.ItemActionMove,
			Verdict:  database.VerdictMalicious,
		})
		require.NoError(t, err)
		assert.Equal(t, jobId, result.JobId)
		assert.Equal(t, ActionOutcomeSucceeded, result.Outcome)
		assert.Equal(t, config.ItemActionMove, result.Action)
		assert.Equal(t, "moved to quarantine/", result.Detail)
	})

	t.Run("missing capability yields not_implemented without dispatch", func(t *testing.T) {
		dispatched := false
		c, _ := testConnectorClient(t, database.Capabilities{database.CapabilityRead}, func(w http.ResponseWriter, r *http.Request) {
			dispatched = true
		})

		result, err := c.ItemAction(context.Background(), ItemActionRequest{
			JobId:  jobId,
			Action: config.ItemActionDelete,
		})
		require.NoError(t, err)
		assert.Equal(t, ActionOutcomeNotImplemented, result.Outcome)
		assert.False(t, dispatched)
	})

	t.Run("connector 501 yields not_implemented", func(t *testing.T) {
		c, _ := testConnectorClient(t, allCapabilities(), func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotImplemented)
		})

		result, err := c.ItemAction(context.Background(), ItemActionRequest{
			JobId:  jobId,
			Action: config.ItemActionDelete,
		})
		require.NoError(t, err)
		assert.Equal(t, ActionOutcomeNotImplemented, result.Outcome)
	})

	t.Run("5xx is retriable", func(t *testing.T) {
		c, _ := testConnectorClient(t, allCapabilities(), func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})

		_, err := c.ItemAction(context.Background(), ItemActionRequest{JobId: jobId, Action: config.ItemActionTag})
		require.Error(t, err)
		assert.True(t, IsUnavailable(err))
	})
}

func TestTriggerFullScan(t *testing.T) {
	t.Run("dispatches with filter", func(t *testing.T) {
		fullScanId := uuid.New()
		c, _ := testConnectorClient(t, allCapabilities(), func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/full_scan", r.URL.Path)
			body, _ := io.ReadAll(r.Body)
			assert.Contains(t, string(body), fullScanId.String())
			assert.Contains(t, string(body), "-tmp")
			w.WriteHeader(http.StatusAccepted)
		})

		err := c.TriggerFullScan(context.Background(), FullScanRequest{
			FullScanId: fullScanId,
			Filter:     "-tmp",
		})
		assert.NoError(t, err)
	})

	t.Run("missing capability", func(t *testing.T) {
		c, _ := testConnectorClient(t, database.Capabilities{database.CapabilityRead}, func(w http.ResponseWriter, r *http.Request) {})

		err := c.TriggerFullScan(context.Background(), FullScanRequest{FullScanId: uuid.New()})
		require.Error(t, err)
		assert.True(t, IsNotImplemented(err))
	})
}

func TestRepoCheck(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		c, _ := testConnectorClient(t, allCapabilities(), func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/repo_check", r.URL.Path)
			w.WriteHeader(http.StatusOK)
		})

		assert.NoError(t, c.RepoCheck(context.Background()))
	})

	t.Run("backend down", func(t *testing.T) {
		c, _ := testConnectorClient(t, allCapabilities(), func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})

		err := c.RepoCheck(context.Background())
		require.Error(t, err)
		assert.True(t, IsUnavailable(err))
	})
}
