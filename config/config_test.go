package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unsetForTest clears key for the duration of the test and restores it after.
func unsetForTest(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))
}

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"DB_DRIVER", "DATABASE_URL", "DB_HOST", "HTTP_PORT", "KAFKA_BROKERS", "LOG_FORMAT", "APP_ENV", "FEATURE_EVENT_STREAMING"} {
		unsetForTest(t, k)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DriverMemory, cfg.Database.Driver)
	assert.True(t, cfg.Database.Seed)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, 100, cfg.HTTP.RateLimitPerMinute)
	assert.Equal(t, "rms.assessments", cfg.Kafka.Topic)
	assert.Equal(t, 5*time.Minute, cfg.Redis.ProgressTTL)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
	assert.True(t, cfg.IsDevelopment())
	assert.True(t, cfg.Features.IsEnabled(FeatureProgressCache, ""))
	assert.False(t, cfg.Features.IsEnabled(FeatureEventStreaming, ""))
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("DB_DRIVER", "Postgres")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_USER", "rms")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("HTTP_API_KEYS", "a,b")
	t.Setenv("HTTP_READ_TIMEOUT", "3s")
	t.Setenv("FEATURE_EVENT_STREAMING", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, "postgres://rms:secret@db:5432/rms?sslmode=disable", cfg.Database.URL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, []string{"a", "b"}, cfg.HTTP.APIKeys)
	assert.Equal(t, 3*time.Second, cfg.HTTP.ReadTimeout)
	assert.True(t, cfg.Features.IsEnabled(FeatureEventStreaming, ""))
}

func TestLoad_EnvFile(t *testing.T) {
	unsetForTest(t, "APP_NAME")
	t.Setenv("HTTP_PORT", "9090")

	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("APP_NAME=from-file\nHTTP_PORT=7070\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.App.Name)
	assert.Equal(t, 9090, cfg.HTTP.Port, "environment wins over the file")

	_, err = Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}

func TestValidate_AggregatesErrors(t *testing.T) {
	cfg := &Config{
		App:      AppConfig{Environment: EnvProduction},
		Database: DatabaseConfig{Driver: "mongo", MaxConns: 0, MinConns: 2},
		HTTP:     HTTPConfig{Port: 0, MaxBodyBytes: 1},
		Features: LoadFeatureFlags(),
		Observability: ObservabilityConfig{
			LogFormat:          "xml",
			TracingSampleRatio: 2,
		},
	}
	require.NoError(t, cfg.Features.EnableFeature(FeatureEventStreaming))

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{
		"DB_DRIVER must be postgres, sqlite or memory",
		"DB_MAX_CONNS",
		"DB_MIN_CONNS",
		"HTTP_PORT",
		"KAFKA_BROKERS",
		"LOG_FORMAT",
		"TRACING_SAMPLE_RATIO",
	} {
		assert.Contains(t, msg, want)
	}
}

func TestValidate_DriverRequirements(t *testing.T) {
	base := func(driver string) *Config {
		return &Config{
			App:           AppConfig{Environment: EnvProduction},
			Database:      DatabaseConfig{Driver: driver, MaxConns: 5, SQLitePath: "x.db"},
			HTTP:          HTTPConfig{Port: 8080, MaxBodyBytes: 1024},
			Observability: ObservabilityConfig{LogFormat: "json", TracingSampleRatio: 1},
		}
	}

	assert.ErrorContains(t, base(DriverPostgres).Validate(), "DATABASE_URL")
	assert.ErrorContains(t, base(DriverMemory).Validate(), "not allowed in production")
	assert.NoError(t, base(DriverSQLite).Validate())
}

func TestFeatureFlags_EnvOverrides(t *testing.T) {
	t.Setenv("FEATURE_PROGRESS_CACHE", "false")
	t.Setenv("FEATURE_PROGRESS_ETAG", "25%")
	t.Setenv("FEATURE_PROGRAM_PROGRESS", "nonsense")

	ff := LoadFeatureFlags()
	byName := map[string]Feature{}
	for _, f := range ff.GetAllFeatures() {
		byName[f.Name] = f
	}

	assert.False(t, byName[FeatureProgressCache].Enabled)
	assert.Equal(t, 25, byName[FeatureProgressETag].RolloutPercent)
	assert.True(t, byName[FeatureProgramProgress].Enabled, "unparseable values are ignored")
	assert.Len(t, byName, 4)
}

func TestFeatureFlags_RolloutIsStablePerSubject(t *testing.T) {
	ff := LoadFeatureFlags()
	require.NoError(t, ff.SetRolloutPercent(FeatureProgressCache, 50))

	on := 0
	for i := 0; i < 1000; i++ {
		subject := fmt.Sprintf("res-%d", i)
		first := ff.IsEnabled(FeatureProgressCache, subject)
		assert.Equal(t, first, ff.IsEnabled(FeatureProgressCache, subject))
		if first {
			on++
		}
	}
	assert.InDelta(t, 500, on, 150)
	assert.True(t, ff.IsEnabled(FeatureProgressCache, ""), "partially rolled out counts as on")
}

func TestFeatureFlags_Overrides(t *testing.T) {
	ff := LoadFeatureFlags()
	require.NoError(t, ff.DisableFeature(FeatureProgressETag))
	ff.SetSubjectOverride("res-chen", FeatureProgressETag, true)

	assert.True(t, ff.IsEnabled(FeatureProgressETag, "res-chen"))
	assert.False(t, ff.IsEnabled(FeatureProgressETag, "res-pham"))

	ff.ClearSubjectOverrides("res-chen")
	assert.False(t, ff.IsEnabled(FeatureProgressETag, "res-chen"))

	assert.ErrorIs(t, ff.SetRolloutPercent("nope", 10), ErrFeatureNotFound)
	assert.ErrorIs(t, ff.SetRolloutPercent(FeatureProgressETag, 101), ErrInvalidRolloutPercent)
	assert.False(t, ff.IsEnabled("nope", ""))
}
