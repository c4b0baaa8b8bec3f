package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "storefront.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[http]
addr = ":9090"
request_timeout = "5s"
checkout_burst = 2

[auth]
jwt_secret = "s3cret"
operator_ids = [" staff-1 ", "", "staff-2"]

[store]
driver = "Postgres"
host = "db.internal"
port = 6432

[kafka]
brokers = ["kafka-1:9092", "kafka-2:9092"]
poll_interval = "250ms"

[log]
level = "debug"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, 5*time.Second, cfg.HTTP.RequestTimeout)
	assert.Equal(t, 10*time.Second, cfg.HTTP.ShutdownTimeout)
	assert.Equal(t, 2, cfg.HTTP.CheckoutBurst)
	assert.Equal(t, float64(1), cfg.HTTP.CheckoutRate)
	assert.Equal(t, []string{"staff-1", "staff-2"}, cfg.Auth.OperatorIDs)
	assert.Equal(t, DriverPostgres, cfg.Store.Driver)
	assert.Equal(t, "db.internal", cfg.Store.Host)
	assert.Equal(t, 6432, cfg.Store.Port)
	assert.Equal(t, "postgres", cfg.Store.User)
	assert.True(t, cfg.KafkaEnabled())
	assert.Equal(t, "storefront.orders", cfg.Kafka.Topic)
	assert.Equal(t, 250*time.Millisecond, cfg.Kafka.PollInterval)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
[auth]
jwt_secret = "from-file"

[store]
driver = "sqlite"
`)
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("STORE_DRIVER", "MONGO")
	t.Setenv("DB_PORT", "15432")
	t.Setenv("OPERATOR_IDS", "ops-1, ops-2")
	t.Setenv("KAFKA_BROKERS", "localhost:9092")
	t.Setenv("LOG_PRETTY", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, DriverMongo, cfg.Store.Driver)
	assert.Equal(t, 15432, cfg.Store.Port)
	assert.Equal(t, []string{"ops-1", "ops-2"}, cfg.Auth.OperatorIDs)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Log.Pretty)
}

func TestLoad_WithoutFile(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, cfg.Store.Driver)
	assert.False(t, cfg.KafkaEnabled())
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		env  map[string]string
	}{
		{"bad toml", "[http\naddr = 1", nil},
		{"bad duration", "[auth]\njwt_secret = \"x\"\n[http]\nrequest_timeout = \"soon\"", nil},
		{"unknown key", "[auth]\njwt_secret = \"x\"\n[store]\ndriverr = \"sqlite\"", nil},
		{"unknown driver", "[auth]\njwt_secret = \"x\"\n[store]\ndriver = \"oracle\"", nil},
		{"no auth", "[store]\ndriver = \"sqlite\"", nil},
		{"bad port env", "[auth]\njwt_secret = \"x\"", map[string]string{"DB_PORT": "fivefour"}},
		{"zero burst", "[auth]\njwt_secret = \"x\"\n[http]\ncheckout_burst = 0", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("JWT_SECRET", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestValidate_DevHeadersWithoutSecret(t *testing.T) {
	cfg := Default()
	cfg.Auth.DevHeaders = true
	assert.NoError(t, cfg.Validate())
}
