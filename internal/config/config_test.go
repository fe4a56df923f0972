package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amerrors "github.com/Aman-CERP/bulletinsearch/internal/errors"
	"github.com/Aman-CERP/bulletinsearch/internal/filter"
	"github.com/Aman-CERP/bulletinsearch/internal/search"
)

// isolate points the user config at an empty directory so a developer's
// own config never leaks into a test.
func isolate(t *testing.T) string {
	t.Helper()
	configDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", configDir)
	return configDir
}

func writeUserConfig(t *testing.T, configDir, content string) {
	t.Helper()
	dir := filepath.Join(configDir, AppName)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644))
}

// =============================================================================
// Default Configuration
// =============================================================================

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	// Given: no configuration file exists
	cfg := NewConfig()

	// Then: all defaults are applied
	require.NotNil(t, cfg)
	assert.Equal(t, 1, cfg.Version)
	assert.NotEmpty(t, cfg.DataDir)

	// Search defaults
	assert.Equal(t, 10, cfg.Search.DefaultTopK)
	assert.Equal(t, 100, cfg.Search.MaxTopK)
	assert.Equal(t, 20, cfg.Search.CandidatePool)
	assert.Equal(t, 60, cfg.Search.RRFConstant) // Industry standard k=60
	assert.Equal(t, 5*time.Second, cfg.Search.BackendTimeout)
	assert.Equal(t, 1000, cfg.Search.MaxQueryLength)

	// Rerank defaults: K=20 candidates, M=5 results
	assert.Equal(t, "local", cfg.Rerank.Strategy)
	assert.Equal(t, 20, cfg.Rerank.Candidates)
	assert.Equal(t, 5, cfg.Rerank.TopM)

	// Embeddings default to the offline static provider
	assert.Equal(t, "static", cfg.Embeddings.Provider)
	assert.Equal(t, "http://localhost:11434", cfg.Embeddings.OllamaHost)

	// Backends
	assert.Equal(t, "hnsw", cfg.Vector.Backend)
	assert.Equal(t, "cos", cfg.Vector.Metric)
	assert.Equal(t, "combined", cfg.Vector.Qdrant.DateLayout)
	assert.True(t, cfg.Vector.Qdrant.AnyOf)
	assert.Equal(t, "sqlite", cfg.Keyword.Backend)

	// Ambient
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 10, cfg.Logging.MaxSizeMB)
	assert.Equal(t, 5, cfg.Logging.MaxFiles)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Addr)
}

func TestNewConfig_DefaultsValidate(t *testing.T) {
	require.NoError(t, NewConfig().Validate())
}

func TestNewConfig_DataDirUnderHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	assert.Equal(t, filepath.Join(home, ".bulletinsearch", "data"), NewConfig().DataDir)
}

// =============================================================================
// Configuration File Loading
// =============================================================================

func TestLoad_NoConfigFile_ReturnsDefaults(t *testing.T) {
	// Given: no user or project config
	isolate(t)

	// When: loading configuration
	cfg, err := Load(t.TempDir())

	// Then: defaults are returned without error
	require.NoError(t, err)
	assert.Equal(t, 60, cfg.Search.RRFConstant)
}

func TestLoad_YamlFile_OverridesDefaults(t *testing.T) {
	// Given: a project .bulletinsearch.yaml
	isolate(t)
	tmpDir := t.TempDir()
	configContent := `
version: 1
search:
  rrf_constant: 100
  default_top_k: 25
  backend_timeout: 2s
rerank:
  strategy: noop
vector:
  backend: qdrant
  qdrant:
    url: http://qdrant:6333
    date_layout: parts
    unsupported: [topic]
`
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, ".bulletinsearch.yaml"), []byte(configContent), 0o644))

	// When: loading configuration
	cfg, err := Load(tmpDir)

	// Then: overrides are applied and untouched keys keep their defaults
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Search.RRFConstant)
	assert.Equal(t, 25, cfg.Search.DefaultTopK)
	assert.Equal(t, 2*time.Second, cfg.Search.BackendTimeout)
	assert.Equal(t, 100, cfg.Search.MaxTopK)
	assert.Equal(t, "noop", cfg.Rerank.Strategy)
	assert.Equal(t, "qdrant", cfg.Vector.Backend)
	assert.Equal(t, "http://qdrant:6333", cfg.Vector.Qdrant.URL)
	assert.Equal(t, "bulletin_chunks", cfg.Vector.Qdrant.Collection)
	assert.Equal(t, []string{"topic"}, cfg.Vector.Qdrant.Unsupported)
}

func TestLoad_YmlExtension_IsRecognized(t *testing.T) {
	isolate(t)
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, ".bulletinsearch.yml"),
		[]byte("search:\n  max_top_k: 50\n"), 0o644))

	cfg, err := Load(tmpDir)

	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Search.MaxTopK)
}

func TestLoad_YamlTakesPrecedenceOverYml(t *testing.T) {
	isolate(t)
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, ".bulletinsearch.yaml"),
		[]byte("search:\n  max_top_k: 40\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, ".bulletinsearch.yml"),
		[]byte("search:\n  max_top_k: 80\n"), 0o644))

	cfg, err := Load(tmpDir)

	require.NoError(t, err)
	assert.Equal(t, 40, cfg.Search.MaxTopK)
}

func TestLoad_ExplicitFalseOverridesTrueDefault(t *testing.T) {
	// Given: a project config that disables telemetry
	isolate(t)
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, ".bulletinsearch.yaml"),
		[]byte("telemetry:\n  enabled: false\nlogging:\n  stderr: false\n"), 0o644))

	// When: loading
	cfg, err := Load(tmpDir)

	// Then: the explicit false wins over the true default
	require.NoError(t, err)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.False(t, cfg.Logging.Stderr)
}

func TestLoad_EmptyFile_ReturnsDefaults(t *testing.T) {
	isolate(t)
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, ".bulletinsearch.yaml"), nil, 0o644))

	cfg, err := Load(tmpDir)

	require.NoError(t, err)
	assert.Equal(t, NewConfig().Search, cfg.Search)
}

func TestLoad_InvalidYaml_ReturnsError(t *testing.T) {
	isolate(t)
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, ".bulletinsearch.yaml"),
		[]byte("search:\n  rrf_constant: [broken\n"), 0o644))

	cfg, err := Load(tmpDir)

	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestLoad_UnknownKey_ReturnsError(t *testing.T) {
	// Given: a typo in a key name
	isolate(t)
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, ".bulletinsearch.yaml"),
		[]byte("search:\n  rrf_konstant: 10\n"), 0o644))

	// When: loading
	_, err := Load(tmpDir)

	// Then: the typo is reported rather than ignored
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rrf_konstant")
}

func TestLoadFile_ReadsExplicitPath(t *testing.T) {
	configDir := isolate(t)
	writeUserConfig(t, configDir, "search:\n  max_top_k: 30\n")

	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("search:\n  default_top_k: 7\n"), 0o644))

	cfg, err := LoadFile(path)

	// The explicit file replaces the user config lookup.
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Search.DefaultTopK)
	assert.Equal(t, 100, cfg.Search.MaxTopK)
}

func TestLoadFile_MissingFile_ReturnsError(t *testing.T) {
	isolate(t)
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

// =============================================================================
// Layering: user, project, environment
// =============================================================================

func TestLoad_UserConfigOverridesDefaults(t *testing.T) {
	// Given: user config with a custom Ollama host
	configDir := isolate(t)
	writeUserConfig(t, configDir, `
version: 1
embeddings:
  ollama_host: http://custom-host:11434
`)

	// When: loading configuration
	cfg, err := Load(t.TempDir())

	// Then: user config values are applied
	require.NoError(t, err)
	assert.Equal(t, "http://custom-host:11434", cfg.Embeddings.OllamaHost)
}

func TestLoad_ProjectConfigOverridesUserConfig(t *testing.T) {
	// Given: both user and project configs exist
	configDir := isolate(t)
	projectDir := t.TempDir()
	writeUserConfig(t, configDir, `
embeddings:
  provider: ollama
  model: user-model
`)
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, ".bulletinsearch.yaml"),
		[]byte("embeddings:\n  model: project-model\n"), 0o644))

	// When: loading configuration
	cfg, err := Load(projectDir)

	// Then: project config takes precedence
	require.NoError(t, err)
	assert.Equal(t, "project-model", cfg.Embeddings.Model)
	// And: the user config's provider is still used
	assert.Equal(t, "ollama", cfg.Embeddings.Provider)
}

func TestLoad_EnvVarOverridesUserAndProjectConfig(t *testing.T) {
	// Given: all three config sources exist
	configDir := isolate(t)
	projectDir := t.TempDir()
	t.Setenv("BULLETINSEARCH_EMBEDDINGS_MODEL", "env-model")
	writeUserConfig(t, configDir, "embeddings:\n  model: user-model\n")
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, ".bulletinsearch.yaml"),
		[]byte("embeddings:\n  model: project-model\n"), 0o644))

	// When: loading configuration
	cfg, err := Load(projectDir)

	// Then: env var has highest precedence
	require.NoError(t, err)
	assert.Equal(t, "env-model", cfg.Embeddings.Model)
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("BULLETINSEARCH_DATA_DIR", "/var/lib/bulletins")
	t.Setenv("BULLETINSEARCH_RRF_CONSTANT", "90")
	t.Setenv("BULLETINSEARCH_BACKEND_TIMEOUT", "750ms")
	t.Setenv("BULLETINSEARCH_KEYWORD_BACKEND", "postgres")
	t.Setenv("BULLETINSEARCH_POSTGRES_DSN", "postgres://localhost/bulletins")
	t.Setenv("BULLETINSEARCH_TELEMETRY_ENABLED", "false")
	t.Setenv("BULLETINSEARCH_LOG_LEVEL", "debug")

	cfg, err := Load(t.TempDir())

	require.NoError(t, err)
	assert.Equal(t, "/var/lib/bulletins", cfg.DataDir)
	assert.Equal(t, 90, cfg.Search.RRFConstant)
	assert.Equal(t, 750*time.Millisecond, cfg.Search.BackendTimeout)
	assert.Equal(t, "postgres", cfg.Keyword.Backend)
	assert.Equal(t, "postgres://localhost/bulletins", cfg.Keyword.PostgresDSN)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_MalformedEnvOverride_ReturnsError(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"integer", "BULLETINSEARCH_RRF_CONSTANT", "sixty"},
		{"duration", "BULLETINSEARCH_BACKEND_TIMEOUT", "5 seconds"},
		{"boolean", "BULLETINSEARCH_TELEMETRY_ENABLED", "maybe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			t.Setenv(tt.key, tt.value)

			_, err := Load(t.TempDir())

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestLoad_InvalidUserConfig_ReturnsError(t *testing.T) {
	// Given: invalid user config
	configDir := isolate(t)
	writeUserConfig(t, configDir, "embeddings:\n  model: [invalid yaml\n")

	// When: loading configuration
	cfg, err := Load(t.TempDir())

	// Then: error is returned
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "user config")
}

func TestGetUserConfigPath_HonorsXDG(t *testing.T) {
	configDir := isolate(t)
	assert.Equal(t, filepath.Join(configDir, "bulletinsearch", "config.yaml"), GetUserConfigPath())
	assert.Equal(t, filepath.Join(configDir, "bulletinsearch"), GetUserConfigDir())
	assert.False(t, UserConfigExists())
}

// =============================================================================
// Validation
// =============================================================================

func TestValidate_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"zero rrf constant", func(c *Config) { c.Search.RRFConstant = 0 }, "search.rrf_constant"},
		{"default above max", func(c *Config) { c.Search.DefaultTopK = 200 }, "search.default_top_k"},
		{"negative timeout", func(c *Config) { c.Search.BackendTimeout = -time.Second }, "search.backend_timeout"},
		{"unknown strategy", func(c *Config) { c.Rerank.Strategy = "magic" }, "rerank.strategy"},
		{"top_m above candidates", func(c *Config) { c.Rerank.TopM = 30 }, "rerank.top_m"},
		{"external without endpoint", func(c *Config) {
			c.Rerank.Strategy = "external"
			c.Rerank.Endpoint = ""
		}, "rerank.endpoint"},
		{"unknown score scale", func(c *Config) { c.Rerank.ScoreScale = "percent" }, "rerank.score_scale"},
		{"unknown provider", func(c *Config) { c.Embeddings.Provider = "openai" }, "embeddings.provider"},
		{"unknown vector backend", func(c *Config) { c.Vector.Backend = "faiss" }, "vector.backend"},
		{"unknown metric", func(c *Config) { c.Vector.Metric = "dot" }, "vector.metric"},
		{"qdrant without url", func(c *Config) {
			c.Vector.Backend = "qdrant"
			c.Vector.Qdrant.URL = ""
		}, "vector.qdrant.url"},
		{"unknown date layout", func(c *Config) {
			c.Vector.Backend = "qdrant"
			c.Vector.Qdrant.DateLayout = "epoch"
		}, "vector.qdrant.date_layout"},
		{"unknown keyword backend", func(c *Config) { c.Keyword.Backend = "bleve" }, "keyword.backend"},
		{"postgres without dsn", func(c *Config) { c.Keyword.Backend = "postgres" }, "keyword.postgres_dsn"},
		{"empty addr", func(c *Config) { c.Server.Addr = "" }, "server.addr"},
		{"unknown log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"empty data dir", func(c *Config) { c.DataDir = "" }, "data_dir"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)

			err := cfg.Validate()

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)

			amErr, ok := amerrors.As(err)
			require.True(t, ok)
			assert.Equal(t, amerrors.ErrCodeConfigInvalid, amErr.Code)
		})
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	cfg := NewConfig()
	cfg.Search.RRFConstant = 0
	cfg.Keyword.Backend = "bleve"

	err := cfg.Validate()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "search.rrf_constant")
	assert.Contains(t, err.Error(), "keyword.backend")
}

func TestLoad_ValidationRunsAfterLayering(t *testing.T) {
	isolate(t)
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, ".bulletinsearch.yaml"),
		[]byte("keyword:\n  backend: postgres\n"), 0o644))

	_, err := Load(tmpDir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")

	// The DSN supplied by env completes the project config.
	t.Setenv("BULLETINSEARCH_POSTGRES_DSN", "postgres://localhost/bulletins")
	cfg, err := Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Keyword.Backend)
}

// =============================================================================
// Conversions
// =============================================================================

func TestSearchServiceConfig(t *testing.T) {
	cfg := NewConfig()
	cfg.Search.CandidatePool = 40
	cfg.Rerank.Candidates = 30
	cfg.Rerank.TopM = 8

	sc := cfg.SearchServiceConfig()

	assert.Equal(t, 40, sc.CandidatePool)
	assert.Equal(t, 30, sc.RerankCandidates)
	assert.Equal(t, 8, sc.RerankTopM)
	assert.Equal(t, search.DefaultRRFConstant, sc.RRFConstant)
}

func TestRerankerConfig_KeepsBreakerDefaults(t *testing.T) {
	cfg := NewConfig()
	cfg.Rerank.Strategy = "external"
	cfg.Rerank.MaxFailures = 0

	rc := cfg.RerankerConfig()

	assert.Equal(t, "external", rc.Strategy)
	assert.Equal(t, search.DefaultRerankerConfig().Breaker.MaxFailures, rc.Breaker.MaxFailures)
}

func TestEmbedderConfig(t *testing.T) {
	cfg := NewConfig()
	cfg.Embeddings.Provider = "ollama"
	cfg.Embeddings.OllamaHost = "http://gpu:11434"

	ec := cfg.EmbedderConfig()

	assert.Equal(t, "ollama", ec.Provider)
	assert.Equal(t, "http://gpu:11434", ec.Host)
	assert.Equal(t, cfg.Embeddings.CacheSize, ec.CacheSize)
}

func TestVectorOptions_MapsQdrantCapabilities(t *testing.T) {
	cfg := NewConfig()
	cfg.Vector.Backend = "qdrant"
	cfg.Vector.Qdrant.DateLayout = "none"
	cfg.Vector.Qdrant.AnyOf = false
	cfg.Vector.Qdrant.Unsupported = []string{"topic", "language"}

	opts, err := cfg.VectorOptions(384)

	require.NoError(t, err)
	assert.Equal(t, "qdrant", opts.Backend)
	assert.Equal(t, cfg.DataDir, opts.DataDir)
	assert.Equal(t, 384, opts.HNSW.Dimensions)
	assert.Equal(t, 384, opts.Qdrant.Dimensions)
	assert.Equal(t, filter.DateNone, opts.Qdrant.Capabilities.DateLayout)
	assert.False(t, opts.Qdrant.Capabilities.AnyOf)
	assert.Equal(t, map[string]bool{"topic": true, "language": true}, opts.Qdrant.Capabilities.Unsupported)
}

func TestVectorOptions_InvalidDateLayout(t *testing.T) {
	cfg := NewConfig()
	cfg.Vector.Qdrant.DateLayout = "epoch"

	_, err := cfg.VectorOptions(8)

	require.Error(t, err)
}

func TestKeywordOptions(t *testing.T) {
	cfg := NewConfig()
	cfg.Keyword.Backend = "postgres"
	cfg.Keyword.PostgresDSN = "postgres://localhost/bulletins"

	opts := cfg.KeywordOptions()

	assert.Equal(t, "postgres", opts.Backend)
	assert.Equal(t, "postgres://localhost/bulletins", opts.DSN)
	assert.Equal(t, cfg.DataDir, opts.DataDir)
}

func TestLogConfig_DebugOverridesLevel(t *testing.T) {
	cfg := NewConfig()
	cfg.Logging.Level = "warn"

	assert.Equal(t, "warn", cfg.LogConfig(false).Level)
	assert.Equal(t, "debug", cfg.LogConfig(true).Level)
	assert.Equal(t, cfg.Logging.File, cfg.LogConfig(true).FilePath)
}
