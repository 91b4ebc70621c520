package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshallYamlRoot(t *testing.T) {
	t.Run("full config", func(t *testing.T) {
		ctx := context.Background()
		root, err := UnmarshallYamlRootString(`
api:
  port: 8080
worker:
  port: 8081
  concurrency:
    scan_request: 16
system_auth:
  enrollment_tokens:
    - value: super-secret-token
    - env_var: DSX_ENROLLMENT_TOKEN
  global_aes_key:
    base64: c2VjcmV0LWtleS1zZWNyZXQta2V5LXNlY3JldC1rZXk=
  clock_skew: 2m
database:
  provider: sqlite
  path: /tmp/dsx.db
redis:
  provider: redis
  address: localhost:6379
  password:
    env_var: REDIS_PASSWORD
scanner:
  url: https://scanner.internal:9443
  timeout: 30s
  api_key: inline-key
pipeline:
  max_connector_retries: 3
  retry_base_delay: 1s
results:
  retention: 500
  syslog:
    address: siem.internal:6514
    tls: true
notifications:
  channel: custom:events
  webhook_url: https://hooks.internal/dsx
item_action: move_tag
logging:
  type: json
  level: debug
`)
		require.NoError(t, err)

		require.Equal(t, uint16(8080), root.Api.GetPort())
		require.Equal(t, 16, root.Worker.GetConcurrencyOrDefault("scan_request", 4))
		require.Equal(t, 4, root.Worker.GetConcurrencyOrDefault("notification", 4))

		require.Len(t, root.SystemAuth.EnrollmentTokens, 2)
		tok, err := root.SystemAuth.EnrollmentTokens[0].GetValue(ctx)
		require.NoError(t, err)
		require.Equal(t, "super-secret-token", tok)
		require.Equal(t, 2*time.Minute, root.SystemAuth.ClockSkew())
		require.Equal(t, 4*time.Minute, root.SystemAuth.NonceRetention())

		key, err := root.SystemAuth.GlobalAESKey.GetData(ctx)
		require.NoError(t, err)
		require.Len(t, key, 32)

		require.Equal(t, DatabaseProviderSqlite, root.Database.GetProvider())
		sqlite, ok := root.Database.(*DatabaseSqlite)
		require.True(t, ok)
		require.Equal(t, "/tmp/dsx.db", sqlite.Path)

		require.Equal(t, RedisProviderRedis, root.Redis.GetProvider())
		redis, ok := root.Redis.(*RedisReal)
		require.True(t, ok)
		require.Equal(t, "localhost:6379", redis.Address)
		require.IsType(t, &StringValueEnvVar{}, redis.Password)

		require.Equal(t, "https://scanner.internal:9443", root.Scanner.Url)
		require.Equal(t, 30*time.Second, root.Scanner.Timeout())
		apiKey, err := root.Scanner.ApiKey.GetValue(ctx)
		require.NoError(t, err)
		require.Equal(t, "inline-key", apiKey)

		require.Equal(t, 3, root.Pipeline.MaxConnectorRetries())
		require.Equal(t, 5, root.Pipeline.MaxScannerRetries())
		require.Equal(t, 1*time.Second, root.Pipeline.RetryBaseDelay())

		require.Equal(t, 500, root.Results.Retention())
		require.NotNil(t, root.Results.Syslog)
		require.Equal(t, "siem.internal:6514", root.Results.Syslog.Address)
		require.True(t, root.Results.Syslog.Tls)

		require.Equal(t, "custom:events", root.Notifications.Channel())
		require.Equal(t, ItemActionMoveTag, root.ItemAction)
	})

	t.Run("defaults", func(t *testing.T) {
		root, err := UnmarshallYamlRootString(`
api:
  port: 8080
worker:
  port: 8081
database:
  provider: sqlite
  path: /tmp/dsx.db
redis:
  provider: miniredis
`)
		require.NoError(t, err)

		assert.Equal(t, 5*time.Minute, root.SystemAuth.ClockSkew())
		assert.Equal(t, 10*time.Minute, root.SystemAuth.NonceRetention())
		assert.Equal(t, 5, root.Pipeline.MaxConnectorRetries())
		assert.Equal(t, 2*time.Second, root.Pipeline.RetryBaseDelay())
		assert.Equal(t, 5*time.Minute, root.Pipeline.RetryMaxDelay())
		assert.Equal(t, 10_000, root.Results.Retention())
		assert.Equal(t, "dsx:events", root.Notifications.Channel())
		assert.Equal(t, ItemActionNothing, root.ItemAction)
		assert.Equal(t, "@every 1m", root.Registry.LivenessSchedule())
		assert.Equal(t, 10*time.Second, root.Registry.ProbeTimeout())
		assert.Equal(t, RedisProviderMiniredis, root.Redis.GetProvider())
	})

	t.Run("invalid item action", func(t *testing.T) {
		_, err := UnmarshallYamlRootString(`
item_action: shred
`)
		require.Error(t, err)
	})

	t.Run("unknown database provider", func(t *testing.T) {
		_, err := UnmarshallYamlRootString(`
database:
  provider: postgres
`)
		require.Error(t, err)
	})

	t.Run("unknown redis provider", func(t *testing.T) {
		_, err := UnmarshallYamlRootString(`
redis:
  provider: memcached
`)
		require.Error(t, err)
	})
}

func TestMustServiceForId(t *testing.T) {
	root, err := UnmarshallYamlRootString(`
api:
  port: 8080
worker:
  port: 8081
`)
	require.NoError(t, err)

	require.Equal(t, ServiceIdApi, root.MustServiceForId(ServiceIdApi).GetId())
	require.Equal(t, ServiceIdWorker, root.MustServiceForId(ServiceIdWorker).GetId())
	require.Panics(t, func() {
		root.MustServiceForId(ServiceId("bogus"))
	})
}
