package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logang-di/dsx-connect/internal/config"
	"github.com/logang-di/dsx-connect/internal/connectorapi"
	"github.com/logang-di/dsx-connect/internal/database"
	"github.com/logang-di/dsx-connect/internal/dcasynq"
	"github.com/logang-di/dsx-connect/internal/dcctx"
	"github.com/logang-di/dsx-connect/internal/encrypt"
	"github.com/logang-di/dsx-connect/internal/hmacsig"
	"github.com/logang-di/dsx-connect/internal/pipeline"
	"github.com/logang-di/dsx-connect/internal/registry"
	"github.com/logang-di/dsx-connect/internal/results"
	"github.com/logang-di/dsx-connect/internal/statestore"
	"github.com/logang-di/dsx-connect/internal/test_utils"
)

const testEnrollmentToken = "enroll-me"

// recordingAsynq swallows enqueues; routes tests exercise the HTTP surface, not the
// queue machinery.
type recordingAsynq struct {
	mu    sync.Mutex
	tasks []*asynq.Task
}

func (c *recordingAsynq) Close() error { return nil }
func (c *recordingAsynq) Ping() error  { return nil }

func (c *recordingAsynq) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tasks = append(c.tasks, task)
	return &asynq.TaskInfo{}, nil
}

func (c *recordingAsynq) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	return c.Enqueue(task, opts...)
}

var _ dcasynq.Client = (*recordingAsynq)(nil)

type routesEnv struct {
	cfg      config.C
	db       database.DB
	engine   *gin.Engine
	registry registry.R
	results  results.R
	asynq    *recordingAsynq

	connectorId uuid.UUID
	keyId       string
	secret      string
}

func newRoutesEnv(t *testing.T) *routesEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.FromRoot(&config.Root{
		SystemAuth: config.SystemAuth{
			EnrollmentTokens: config.StringValues{
				&config.StringValueDirect{Value: testEnrollmentToken},
			},
		},
	})
	cfg, db := database.MustApplyBlankTestDbConfig(t, cfg)

	logger := test_utils.NewTestLogger()
	e := encrypt.NewEncryptService(cfg)
	reg := registry.NewRegistry(cfg, db, e, logger)
	state := statestore.NewStateStore(db)
	res := results.NewService(cfg, db, results.NewEmitterForRoot(cfg, logger), logger)
	captured := &recordingAsynq{}
	enqueuer := pipeline.NewEnqueuer(cfg, db, captured, connectorapi.NewFactory(cfg, db, e), logger)

	verifier := hmacsig.NewVerifier(reg, db, cfg.GetRoot().SystemAuth.ClockSkew())
	signed := hmacsig.GinMiddleware(verifier, logger)

	engine := gin.New()
	api := engine.Group("/api/v1")
	NewConnectorsRoutes(cfg, db, reg, enqueuer, state, signed).Register(api)
	NewScanRoutes(cfg, db, enqueuer, res, signed).Register(api)
	NewStateRoutes(cfg, state, signed).Register(api)

	env := &routesEnv{
		cfg:      cfg,
		db:       db,
		engine:   engine,
		registry: reg,
		results:  res,
		asynq:    captured,
	}

	resp, err := reg.Register(context.Background(), &registry.RegisterRequest{
		DisplayName: "nfs-share",
		BaseUrl:     "https://connector.internal",
		Capabilities: database.Capabilities{
			database.CapabilityFullScan,
			database.CapabilityRead,
			database.CapabilityItemAction,
		},
	})
	require.NoError(t, err)

	env.connectorId = resp.ConnectorUuid
	env.keyId = resp.HmacKeyId
	env.secret = resp.HmacSecret

	return env
}

// signedRequest builds a request carrying a valid DSX-HMAC Authorization header for the
// env's connector.
func (env *routesEnv) signedRequest(method, target string, body []byte) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))

	signer := &hmacsig.Signer{KeyId: env.keyId, Secret: env.secret}
	ts := time.Now().Unix()
	nonce := uuid.NewString()
	req.Header.Set("Authorization", signer.Sign(method, target, ts, nonce, body))

	return req
}

func (env *routesEnv) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	env.engine.ServeHTTP(w, req)
	return w
}

func TestRegisterRoute(t *testing.T) {
	t.Run("valid enrollment token mints credentials", func(t *testing.T) {
		env := newRoutesEnv(t)

		body, _ := json.Marshal(RegisterRequestJson{
			DisplayName:  "s3-prod",
			BaseUrl:      "https://s3-connector.internal",
			Capabilities: database.Capabilities{database.CapabilityRead},
		})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/connectors/register", bytes.NewReader(body))
		req.Header.Set(EnrollmentTokenHeader, testEnrollmentToken)

		w := env.do(req)
		require.Equal(t, http.StatusOK, w.Code)

		var resp RegisterResponseJson
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.NotEqual(t, uuid.Nil, resp.ConnectorUuid)
		assert.NotEmpty(t, resp.HmacKeyId)
		assert.NotEmpty(t, resp.HmacSecret)
	})

	t.Run("missing and wrong tokens are rejected the same way", func(t *testing.T) {
		env := newRoutesEnv(t)

		for _, token := range []string{"", "wrong-token"} {
			body, _ := json.Marshal(RegisterRequestJson{DisplayName: "x", BaseUrl: "https://x"})
			req := httptest.NewRequest(http.MethodPost, "/api/v1/connectors/register", bytes.NewReader(body))
			if token != "" {
				req.Header.Set(EnrollmentTokenHeader, token)
			}

			w := env.do(req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.JSONEq(t, `{"error":"authentication failed"}`, w.Body.String())
		}
	})

	t.Run("invalid body is a 400", func(t *testing.T) {
		env := newRoutesEnv(t)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/connectors/register", strings.NewReader("{nope"))
		req.Header.Set(EnrollmentTokenHeader, testEnrollmentToken)

		w := env.do(req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestUnregisterRoute(t *testing.T) {
	ctx := context.Background()

	t.Run("connector can unregister itself", func(t *testing.T) {
		env := newRoutesEnv(t)

		target := "/api/v1/connectors/unregister/" + env.connectorId.String()
		w := env.do(env.signedRequest(http.MethodDelete, target, nil))
		require.Equal(t, http.StatusNoContent, w.Code)

		c, err := env.db.GetConnector(ctx, env.connectorId)
		require.NoError(t, err)
		require.NotNil(t, c)
		assert.Equal(t, database.ConnectorStatusUnregistered, c.Status)
	})

	t.Run("unsigned unregister is rejected", func(t *testing.T) {
		env := newRoutesEnv(t)

		target := "/api/v1/connectors/unregister/" + env.connectorId.String()
		req := httptest.NewRequest(http.MethodDelete, target, nil)

		w := env.do(req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("connector cannot unregister another connector", func(t *testing.T) {
		env := newRoutesEnv(t)

		other, err := env.registry.Register(ctx, &registry.RegisterRequest{
			DisplayName: "other",
			BaseUrl:     "https://other.internal",
		})
		require.NoError(t, err)

		target := "/api/v1/connectors/unregister/" + other.ConnectorUuid.String()
		w := env.do(env.signedRequest(http.MethodDelete, target, nil))
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

func TestScanRequestRoute(t *testing.T) {
	ctx := context.Background()

	t.Run("signed scan request creates a job", func(t *testing.T) {
		env := newRoutesEnv(t)

		body, _ := json.Marshal(ScanRequestJson{Location: "invoices/q3.xlsx", Metainfo: "etag=abc"})
		w := env.do(env.signedRequest(http.MethodPost, "/api/v1/scan/request", body))
		require.Equal(t, http.StatusAccepted, w.Code)

		var resp ScanJobJson
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, env.connectorId, resp.ConnectorId)
		assert.Equal(t, "invoices/q3.xlsx", resp.Location)
		assert.Equal(t, database.JobStageSubmitted, resp.Stage)

		job, err := env.db.GetScanJob(ctx, resp.Id)
		require.NoError(t, err)
		require.NotNil(t, job)
		assert.Len(t, env.asynq.tasks, 1)
	})

	t.Run("missing location is a 400", func(t *testing.T) {
		env := newRoutesEnv(t)

		body, _ := json.Marshal(ScanRequestJson{})
		w := env.do(env.signedRequest(http.MethodPost, "/api/v1/scan/request", body))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unsigned scan request is rejected", func(t *testing.T) {
		env := newRoutesEnv(t)

		body, _ := json.Marshal(ScanRequestJson{Location: "a.txt"})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/scan/request", bytes.NewReader(body))

		w := env.do(req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.JSONEq(t, `{"error":"authentication failed"}`, w.Body.String())
	})

	t.Run("tampered body fails verification", func(t *testing.T) {
		env := newRoutesEnv(t)

		body, _ := json.Marshal(ScanRequestJson{Location: "a.txt"})
		req := env.signedRequest(http.MethodPost, "/api/v1/scan/request", body)
		tampered, _ := json.Marshal(ScanRequestJson{Location: "b.txt"})
		req.Body = httptest.NewRequest(http.MethodPost, "/api/v1/scan/request", bytes.NewReader(tampered)).Body
		req.ContentLength = int64(len(tampered))

		w := env.do(req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestJobAndDeadLetterRoutes(t *testing.T) {
	ctx := context.Background()

	t.Run("get job round trip", func(t *testing.T) {
		env := newRoutesEnv(t)

		body, _ := json.Marshal(ScanRequestJson{Location: "a/b.txt"})
		w := env.do(env.signedRequest(http.MethodPost, "/api/v1/scan/request", body))
		require.Equal(t, http.StatusAccepted, w.Code)
		var created ScanJobJson
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

		w = env.do(httptest.NewRequest(http.MethodGet, "/api/v1/scan/jobs/"+created.Id.String(), nil))
		require.Equal(t, http.StatusOK, w.Code)

		var fetched ScanJobJson
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fetched))
		assert.Equal(t, created.Id, fetched.Id)
	})

	t.Run("unknown job is a 404", func(t *testing.T) {
		env := newRoutesEnv(t)

		w := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/scan/jobs/"+uuid.NewString(), nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("malformed job id is a 400", func(t *testing.T) {
		env := newRoutesEnv(t)

		w := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/scan/jobs/not-a-uuid", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("dead letters list and requeue", func(t *testing.T) {
		env := newRoutesEnv(t)

		job := &database.ScanJob{
			ID:          uuid.New(),
			ConnectorId: env.connectorId,
			ItemPath:    "a/b.txt",
			Stage:       database.JobStageFailedPermanent,
			Verdict:     database.VerdictPending,
			SubmittedAt: time.Now().UTC(),
		}
		require.NoError(t, env.db.CreateScanJob(ctx, job))

		payload, _ := json.Marshal(map[string]any{
			"task_type": "pipeline:scan",
			"payload":   json.RawMessage(`{"job_id":"` + job.ID.String() + `"}`),
		})
		dl := &database.DeadLetter{
			ID:          uuid.New(),
			JobId:       job.ID,
			ConnectorId: env.connectorId,
			Stage:       database.JobStageScanning,
			Class:       database.FailureClassConnectorUnavailable,
			Payload:     payload,
		}
		require.NoError(t, env.db.CreateDeadLetter(ctx, dl))

		w := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/scan/deadletters", nil))
		require.Equal(t, http.StatusOK, w.Code)

		var list ListDeadLettersResponseJson
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
		require.Len(t, list.Items, 1)
		assert.Equal(t, dl.ID, list.Items[0].Id)

		w = env.do(httptest.NewRequest(http.MethodPost, "/api/v1/scan/deadletters/"+dl.ID.String()+"/requeue", nil))
		require.Equal(t, http.StatusNoContent, w.Code)

		reset, err := env.db.GetScanJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, database.JobStageSubmitted, reset.Stage)

		// Second requeue is refused.
		w = env.do(httptest.NewRequest(http.MethodPost, "/api/v1/scan/deadletters/"+dl.ID.String()+"/requeue", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestFullScanRoutes(t *testing.T) {
	ctx := context.Background()

	t.Run("trigger dispatches to the connector and is queryable", func(t *testing.T) {
		env := newRoutesEnv(t)

		var dispatched struct {
			FullScanId uuid.UUID `json:"full_scan_id"`
			Filter     string    `json:"filter"`
		}
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/full_scan", r.URL.Path)
			require.NoError(t, json.NewDecoder(r.Body).Decode(&dispatched))
			w.WriteHeader(http.StatusAccepted)
		}))
		defer srv.Close()

		resp, err := env.registry.Register(ctx, &registry.RegisterRequest{
			DisplayName:  "smb-archive",
			BaseUrl:      srv.URL,
			Capabilities: database.Capabilities{database.CapabilityFullScan, database.CapabilityRead},
		})
		require.NoError(t, err)

		body, _ := json.Marshal(TriggerFullScanRequestJson{Filter: "+Finance/** -**"})
		target := "/api/v1/connectors/" + resp.ConnectorUuid.String() + "/full_scan"
		w := env.do(httptest.NewRequest(http.MethodPost, target, bytes.NewReader(body)))
		require.Equal(t, http.StatusAccepted, w.Code)

		var created FullScanJson
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
		assert.Equal(t, database.FullScanStateEnumerating, created.State)
		assert.Equal(t, created.Id, dispatched.FullScanId)
		assert.Equal(t, "+Finance/** -**", dispatched.Filter)

		w = env.do(httptest.NewRequest(http.MethodGet, "/api/v1/scan/full_scans/"+created.Id.String(), nil))
		require.Equal(t, http.StatusOK, w.Code)

		var fetched FullScanJson
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fetched))
		assert.Equal(t, created.Id, fetched.Id)
	})

	t.Run("unknown connector is a 404", func(t *testing.T) {
		env := newRoutesEnv(t)

		target := "/api/v1/connectors/" + uuid.NewString() + "/full_scan"
		w := env.do(httptest.NewRequest(http.MethodPost, target, nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("unreachable connector is a 502 and the scan is marked failed", func(t *testing.T) {
		env := newRoutesEnv(t)

		// env's default connector points at a base URL nothing is listening on.
		fullScanId := uuid.New()
		target := "/api/v1/connectors/" + env.connectorId.String() + "/full_scan"
		req := httptest.NewRequest(http.MethodPost, target, nil)
		req = req.WithContext(dcctx.WithFixedUuidGenerator(req.Context(), fullScanId))

		w := env.do(req)
		assert.Equal(t, http.StatusBadGateway, w.Code)

		scan, err := env.db.GetFullScan(ctx, fullScanId)
		require.NoError(t, err)
		require.NotNil(t, scan)
		assert.Equal(t, database.FullScanStateFailed, scan.State)
	})
}

func TestStateRoutes(t *testing.T) {
	t.Run("put then get round trip", func(t *testing.T) {
		env := newRoutesEnv(t)

		target := "/api/v1/connectors/state/" + env.connectorId.String() + "/cursors/last_key"
		w := env.do(env.signedRequest(http.MethodPut, target, []byte("s3://bucket/object-991")))
		require.Equal(t, http.StatusNoContent, w.Code)

		w = env.do(env.signedRequest(http.MethodGet, target, nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "s3://bucket/object-991", w.Body.String())
	})

	t.Run("missing key is a 404", func(t *testing.T) {
		env := newRoutesEnv(t)

		target := "/api/v1/connectors/state/" + env.connectorId.String() + "/cursors/never_written"
		w := env.do(env.signedRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("oversized value is a 413", func(t *testing.T) {
		env := newRoutesEnv(t)

		target := "/api/v1/connectors/state/" + env.connectorId.String() + "/cursors/big"
		w := env.do(env.signedRequest(http.MethodPut, target, bytes.Repeat([]byte("x"), statestore.MaxValueSize+1)))
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})

	t.Run("connector cannot touch another connector's state", func(t *testing.T) {
		env := newRoutesEnv(t)

		other, err := env.registry.Register(context.Background(), &registry.RegisterRequest{
			DisplayName: "other",
			BaseUrl:     "https://other.internal",
		})
		require.NoError(t, err)

		target := "/api/v1/connectors/state/" + other.ConnectorUuid.String() + "/cursors/last_key"
		w := env.do(env.signedRequest(http.MethodPut, target, []byte("value")))
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

func TestEnqueueDoneRoute(t *testing.T) {
	ctx := context.Background()

	newFullScan := func(t *testing.T, env *routesEnv) *database.FullScan {
		f := &database.FullScan{
			ID:          uuid.New(),
			ConnectorId: env.connectorId,
			State:       database.FullScanStateEnumerating,
		}
		require.NoError(t, env.db.CreateFullScan(ctx, f))
		return f
	}

	t.Run("reports total and flips to processing", func(t *testing.T) {
		env := newRoutesEnv(t)
		f := newFullScan(t, env)

		body, _ := json.Marshal(EnqueueDoneRequestJson{Total: 42})
		target := "/api/v1/scan/jobs/" + f.ID.String() + "/enqueue_done"
		w := env.do(env.signedRequest(http.MethodPost, target, body))
		require.Equal(t, http.StatusNoContent, w.Code)

		loaded, err := env.db.GetFullScan(ctx, f.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(42), loaded.TotalItems)
		assert.Equal(t, database.FullScanStateProcessing, loaded.State)
	})

	t.Run("negative total is a 400", func(t *testing.T) {
		env := newRoutesEnv(t)
		f := newFullScan(t, env)

		body, _ := json.Marshal(EnqueueDoneRequestJson{Total: -1})
		target := "/api/v1/scan/jobs/" + f.ID.String() + "/enqueue_done"
		w := env.do(env.signedRequest(http.MethodPost, target, body))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown full scan is a 404", func(t *testing.T) {
		env := newRoutesEnv(t)

		body, _ := json.Marshal(EnqueueDoneRequestJson{Total: 1})
		target := "/api/v1/scan/jobs/" + uuid.NewString() + "/enqueue_done"
		w := env.do(env.signedRequest(http.MethodPost, target, body))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("another connector's full scan is a 403", func(t *testing.T) {
		env := newRoutesEnv(t)

		f := &database.FullScan{
			ID:          uuid.New(),
			ConnectorId: uuid.New(),
			State:       database.FullScanStateEnumerating,
		}
		require.NoError(t, env.db.CreateFullScan(ctx, f))

		body, _ := json.Marshal(EnqueueDoneRequestJson{Total: 1})
		target := "/api/v1/scan/jobs/" + f.ID.String() + "/enqueue_done"
		w := env.do(env.signedRequest(http.MethodPost, target, body))
		require.Equal(t, http.StatusForbidden, w.Code)

		loaded, err := env.db.GetFullScan(ctx, f.ID)
		require.NoError(t, err)
		assert.Equal(t, database.FullScanStateEnumerating, loaded.State)
	})
}
