package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/bulletinsearch/internal/embed"
	amerrors "github.com/Aman-CERP/bulletinsearch/internal/errors"
	"github.com/Aman-CERP/bulletinsearch/internal/filter"
	"github.com/Aman-CERP/bulletinsearch/internal/logging"
	"github.com/Aman-CERP/bulletinsearch/internal/search"
	"github.com/Aman-CERP/bulletinsearch/internal/store"
)

const (
	// AppName names the user config directory and the env prefix.
	AppName = "bulletinsearch"

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "BULLETINSEARCH_"
)

// ProjectConfigNames are the project config files, in lookup order.
var ProjectConfigNames = []string{".bulletinsearch.yaml", ".bulletinsearch.yml"}

// Config represents the complete bulletinsearch configuration.
type Config struct {
	Version int `yaml:"version" json:"version"`

	// DataDir holds the HNSW graph, the SQLite keyword index and telemetry.
	DataDir string `yaml:"data_dir" json:"data_dir"`

	Search     SearchConfig     `yaml:"search" json:"search"`
	Rerank     RerankConfig     `yaml:"rerank" json:"rerank"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Vector     VectorConfig     `yaml:"vector" json:"vector"`
	Keyword    KeywordConfig    `yaml:"keyword" json:"keyword"`
	Server     ServerConfig     `yaml:"server" json:"server"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
	Telemetry  TelemetryConfig  `yaml:"telemetry" json:"telemetry"`
}

// SearchConfig contains retrieval settings.
type SearchConfig struct {
	DefaultTopK    int           `yaml:"default_top_k" json:"default_top_k"`
	MaxTopK        int           `yaml:"max_top_k" json:"max_top_k"`
	CandidatePool  int           `yaml:"candidate_pool" json:"candidate_pool"`
	RRFConstant    int           `yaml:"rrf_constant" json:"rrf_constant"`
	BackendTimeout time.Duration `yaml:"backend_timeout" json:"backend_timeout"`
	MaxQueryLength int           `yaml:"max_query_length" json:"max_query_length"`
}

// RerankConfig contains reranker settings.
type RerankConfig struct {
	// Strategy is noop, local or external.
	Strategy string `yaml:"strategy" json:"strategy"`

	// Candidates is K, the number of fused candidates reranked.
	Candidates int `yaml:"candidates" json:"candidates"`

	// TopM is M, the reranked output size when a request sets no top_k.
	TopM int `yaml:"top_m" json:"top_m"`

	// External scorer settings.
	Endpoint      string        `yaml:"endpoint" json:"endpoint"`
	Model         string        `yaml:"model" json:"model"`
	Timeout       time.Duration `yaml:"timeout" json:"timeout"`
	ScoreScale    string        `yaml:"score_scale" json:"score_scale"`
	RatePerSecond float64       `yaml:"rate_per_second" json:"rate_per_second"`
	Burst         int           `yaml:"burst" json:"burst"`
	MaxFailures   uint32        `yaml:"max_failures" json:"max_failures"`
	ResetTimeout  time.Duration `yaml:"reset_timeout" json:"reset_timeout"`
}

// EmbeddingsConfig contains query and index embedding settings.
type EmbeddingsConfig struct {
	// Provider is static or ollama.
	Provider   string        `yaml:"provider" json:"provider"`
	Model      string        `yaml:"model" json:"model"`
	OllamaHost string        `yaml:"ollama_host" json:"ollama_host"`
	Dimensions int           `yaml:"dimensions" json:"dimensions"`
	BatchSize  int           `yaml:"batch_size" json:"batch_size"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
	MaxRetries int           `yaml:"max_retries" json:"max_retries"`

	// CacheSize is the query embedding LRU size. Negative disables it.
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// VectorConfig selects and tunes the vector backend.
type VectorConfig struct {
	// Backend is hnsw or qdrant.
	Backend string `yaml:"backend" json:"backend"`

	// HNSW settings.
	Metric     string `yaml:"metric" json:"metric"`
	M          int    `yaml:"m" json:"m"`
	EfSearch   int    `yaml:"ef_search" json:"ef_search"`
	Oversample int    `yaml:"oversample" json:"oversample"`

	Qdrant QdrantConfig `yaml:"qdrant" json:"qdrant"`
}

// QdrantConfig describes the remote collection and its payload layout.
type QdrantConfig struct {
	URL        string        `yaml:"url" json:"url"`
	Collection string        `yaml:"collection" json:"collection"`
	APIKey     string        `yaml:"api_key" json:"-"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`

	// DateLayout is parts, combined or none.
	DateLayout string `yaml:"date_layout" json:"date_layout"`

	// AnyOf reports whether the collection supports any-of matches on entities.
	AnyOf bool `yaml:"any_of" json:"any_of"`

	// Unsupported lists payload fields the collection does not index.
	Unsupported []string `yaml:"unsupported" json:"unsupported"`

	MaxFailures  uint32        `yaml:"max_failures" json:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout" json:"reset_timeout"`
}

// KeywordConfig selects the keyword backend.
type KeywordConfig struct {
	// Backend is sqlite or postgres.
	Backend     string `yaml:"backend" json:"backend"`
	PostgresDSN string `yaml:"postgres_dsn" json:"-"`
}

// ServerConfig contains HTTP API settings.
type ServerConfig struct {
	Addr string `yaml:"addr" json:"addr"`

	// RateLimit is requests per second across all clients (0 = unlimited).
	RateLimit float64 `yaml:"rate_limit" json:"rate_limit"`
	RateBurst int     `yaml:"rate_burst" json:"rate_burst"`

	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// LoggingConfig contains log output settings.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	File      string `yaml:"file" json:"file"`
	Stderr    bool   `yaml:"stderr" json:"stderr"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
}

// TelemetryConfig controls query statistics persistence.
type TelemetryConfig struct {
	Enabled       bool          `yaml:"enabled" json:"enabled"`
	FlushInterval time.Duration `yaml:"flush_interval" json:"flush_interval"`
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	sc := search.DefaultConfig()
	rc := search.DefaultRerankerConfig()
	ec := embed.DefaultConfig()
	hc := store.DefaultVectorStoreConfig(0)
	qc := store.DefaultQdrantConfig()
	lc := logging.DefaultConfig()

	return &Config{
		Version: 1,
		DataDir: DefaultDataDir(),
		Search: SearchConfig{
			DefaultTopK:    sc.DefaultTopK,
			MaxTopK:        sc.MaxTopK,
			CandidatePool:  sc.CandidatePool,
			RRFConstant:    sc.RRFConstant,
			BackendTimeout: sc.BackendTimeout,
			MaxQueryLength: sc.MaxQueryLength,
		},
		Rerank: RerankConfig{
			Strategy:      rc.Strategy,
			Candidates:    sc.RerankCandidates,
			TopM:          sc.RerankTopM,
			Endpoint:      rc.Endpoint,
			Model:         rc.Model,
			Timeout:       rc.Timeout,
			ScoreScale:    rc.ScoreScale,
			RatePerSecond: rc.RatePerSecond,
			Burst:         rc.Burst,
			MaxFailures:   rc.Breaker.MaxFailures,
			ResetTimeout:  rc.Breaker.ResetTimeout,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   ec.Provider,
			Model:      ec.Model,
			OllamaHost: ec.Host,
			BatchSize:  ec.BatchSize,
			Timeout:    ec.Timeout,
			MaxRetries: ec.MaxRetries,
			CacheSize:  ec.CacheSize,
		},
		Vector: VectorConfig{
			Backend:    string(store.VectorBackendHNSW),
			Metric:     hc.Metric,
			M:          hc.M,
			EfSearch:   hc.EfSearch,
			Oversample: hc.Oversample,
			Qdrant: QdrantConfig{
				URL:          qc.URL,
				Collection:   qc.Collection,
				Timeout:      qc.Timeout,
				DateLayout:   string(qc.Capabilities.DateLayout),
				AnyOf:        qc.Capabilities.AnyOf,
				MaxFailures:  qc.Breaker.MaxFailures,
				ResetTimeout: qc.Breaker.ResetTimeout,
			},
		},
		Keyword: KeywordConfig{
			Backend: string(store.KeywordBackendSQLite),
		},
		Server: ServerConfig{
			Addr:            "127.0.0.1:8080",
			RateLimit:       50,
			RateBurst:       100,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:     lc.Level,
			File:      lc.FilePath,
			Stderr:    lc.WriteToStderr,
			MaxSizeMB: lc.MaxSizeMB,
			MaxFiles:  lc.MaxFiles,
		},
		Telemetry: TelemetryConfig{
			Enabled:       true,
			FlushInterval: time.Minute,
		},
	}
}

// DefaultDataDir returns ~/.bulletinsearch/data.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "."+AppName, "data")
	}
	return filepath.Join(home, "."+AppName, "data")
}

// GetUserConfigPath returns the path to the user configuration file.
// It follows the XDG Base Directory layout:
//   - $XDG_CONFIG_HOME/bulletinsearch/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/bulletinsearch/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, AppName, "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", AppName, "config.yaml")
	}
	return filepath.Join(home, ".config", AppName, "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// Load loads configuration for the project in dir.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User config (~/.config/bulletinsearch/config.yaml)
//  3. Project config (.bulletinsearch.yaml in dir)
//  4. Environment variables (BULLETINSEARCH_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userPath := GetUserConfigPath(); fileExists(userPath) {
		if err := cfg.loadYAML(userPath); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	if path := ProjectConfigPath(dir); path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadFile loads defaults, then the given file, then env overrides.
// It backs the --config flag, which replaces the user and project lookup.
func LoadFile(path string) (*Config, error) {
	cfg := NewConfig()
	if err := cfg.loadYAML(path); err != nil {
		return nil, err
	}
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ProjectConfigPath returns the project config file in dir, or "" if none.
// .yaml takes precedence over .yml.
func ProjectConfigPath(dir string) string {
	for _, name := range ProjectConfigNames {
		path := filepath.Join(dir, name)
		if fileExists(path) {
			return path
		}
	}
	return ""
}

// loadYAML decodes a file on top of the current values, so keys the file
// omits keep their previous layer's value. Unknown keys are rejected.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies BULLETINSEARCH_* variables. Malformed numbers
// and durations are errors rather than silently ignored.
func (c *Config) applyEnvOverrides() error {
	strs := map[string]*string{
		"DATA_DIR":            &c.DataDir,
		"EMBEDDINGS_PROVIDER": &c.Embeddings.Provider,
		"EMBEDDINGS_MODEL":    &c.Embeddings.Model,
		"OLLAMA_HOST":         &c.Embeddings.OllamaHost,
		"VECTOR_BACKEND":      &c.Vector.Backend,
		"QDRANT_URL":          &c.Vector.Qdrant.URL,
		"QDRANT_COLLECTION":   &c.Vector.Qdrant.Collection,
		"QDRANT_API_KEY":      &c.Vector.Qdrant.APIKey,
		"KEYWORD_BACKEND":     &c.Keyword.Backend,
		"POSTGRES_DSN":        &c.Keyword.PostgresDSN,
		"RERANK_STRATEGY":     &c.Rerank.Strategy,
		"RERANK_ENDPOINT":     &c.Rerank.Endpoint,
		"LOG_LEVEL":           &c.Logging.Level,
		"SERVER_ADDR":         &c.Server.Addr,
	}
	for name, dst := range strs {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"RRF_CONSTANT":  &c.Search.RRFConstant,
		"DEFAULT_TOP_K": &c.Search.DefaultTopK,
	}
	for name, dst := range ints {
		v := os.Getenv(EnvPrefix + name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return amerrors.ConfigError(fmt.Sprintf("%s%s must be an integer, got %q", EnvPrefix, name, v), err)
		}
		*dst = n
	}

	durations := map[string]*time.Duration{
		"BACKEND_TIMEOUT": &c.Search.BackendTimeout,
		"RERANK_TIMEOUT":  &c.Rerank.Timeout,
	}
	for name, dst := range durations {
		v := os.Getenv(EnvPrefix + name)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return amerrors.ConfigError(fmt.Sprintf("%s%s must be a duration, got %q", EnvPrefix, name, v), err)
		}
		*dst = d
	}

	if v := os.Getenv(EnvPrefix + "TELEMETRY_ENABLED"); v != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return amerrors.ConfigError(fmt.Sprintf("%sTELEMETRY_ENABLED must be a boolean, got %q", EnvPrefix, v), err)
		}
		c.Telemetry.Enabled = b
	}
	return nil
}

// FindProjectRoot walks up from startDir looking for a .git directory or a
// project config file. It returns startDir if neither is found.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}
	if !dirExists(absDir) {
		return "", fmt.Errorf("directory does not exist: %s", absDir)
	}

	currentDir := absDir
	for {
		if dirExists(filepath.Join(currentDir, ".git")) || ProjectConfigPath(currentDir) != "" {
			return currentDir, nil
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			return absDir, nil
		}
		currentDir = parentDir
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// Validate checks the merged configuration.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.DataDir == "" {
		add("data_dir must not be empty")
	}

	s := c.Search
	if s.DefaultTopK <= 0 {
		add("search.default_top_k must be positive, got %d", s.DefaultTopK)
	}
	if s.MaxTopK <= 0 {
		add("search.max_top_k must be positive, got %d", s.MaxTopK)
	}
	if s.DefaultTopK > s.MaxTopK {
		add("search.default_top_k (%d) must not exceed search.max_top_k (%d)", s.DefaultTopK, s.MaxTopK)
	}
	if s.CandidatePool <= 0 {
		add("search.candidate_pool must be positive, got %d", s.CandidatePool)
	}
	if s.RRFConstant <= 0 {
		add("search.rrf_constant must be positive, got %d", s.RRFConstant)
	}
	if s.BackendTimeout <= 0 {
		add("search.backend_timeout must be positive, got %s", s.BackendTimeout)
	}
	if s.MaxQueryLength <= 0 {
		add("search.max_query_length must be positive, got %d", s.MaxQueryLength)
	}

	r := c.Rerank
	if _, err := search.ParseStrategy(r.Strategy); err != nil {
		add("rerank.strategy: %v", err)
	}
	if r.Candidates <= 0 || r.TopM <= 0 {
		add("rerank.candidates and rerank.top_m must be positive, got %d and %d", r.Candidates, r.TopM)
	} else if r.TopM > r.Candidates {
		add("rerank.top_m (%d) must not exceed rerank.candidates (%d)", r.TopM, r.Candidates)
	}
	switch search.ScoreScale(strings.ToLower(r.ScoreScale)) {
	case "", search.ScaleProbability, search.ScaleLogit:
	default:
		add("rerank.score_scale must be 'probability' or 'logit', got %s", r.ScoreScale)
	}
	if strategy, _ := search.ParseStrategy(r.Strategy); strategy == search.StrategyExternal && r.Endpoint == "" {
		add("rerank.endpoint is required for the external strategy")
	}

	if !embed.IsValidProvider(c.Embeddings.Provider) {
		add("embeddings.provider must be one of %s, got %s",
			strings.Join(embed.ValidProviders(), ", "), c.Embeddings.Provider)
	}
	if c.Embeddings.Dimensions < 0 {
		add("embeddings.dimensions must be non-negative, got %d", c.Embeddings.Dimensions)
	}

	switch store.VectorBackend(strings.ToLower(c.Vector.Backend)) {
	case store.VectorBackendHNSW:
		if c.Vector.Metric != "cos" && c.Vector.Metric != "l2" {
			add("vector.metric must be 'cos' or 'l2', got %s", c.Vector.Metric)
		}
	case store.VectorBackendQdrant:
		if c.Vector.Qdrant.URL == "" || c.Vector.Qdrant.Collection == "" {
			add("vector.qdrant.url and vector.qdrant.collection are required for the qdrant backend")
		}
		if _, err := filter.ParseDateLayout(c.Vector.Qdrant.DateLayout); err != nil {
			add("vector.qdrant.date_layout: %v", err)
		}
	default:
		add("vector.backend must be 'hnsw' or 'qdrant', got %s", c.Vector.Backend)
	}

	switch store.KeywordBackend(strings.ToLower(c.Keyword.Backend)) {
	case store.KeywordBackendSQLite:
	case store.KeywordBackendPostgres:
		if c.Keyword.PostgresDSN == "" {
			add("keyword.postgres_dsn is required for the postgres backend")
		}
	default:
		add("keyword.backend must be 'sqlite' or 'postgres', got %s", c.Keyword.Backend)
	}

	if c.Server.Addr == "" {
		add("server.addr must not be empty")
	}
	if c.Server.RateLimit < 0 {
		add("server.rate_limit must be non-negative, got %g", c.Server.RateLimit)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		add("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}

	if len(problems) > 0 {
		return amerrors.ConfigError(strings.Join(problems, "; "), nil).
			WithSuggestion("Fix " + GetUserConfigPath() + " or the project .bulletinsearch.yaml")
	}
	return nil
}

// WriteYAML writes the configuration to a YAML file, creating its directory.
func (c *Config) WriteYAML(path string) error {
	return c.writeYAML(path, "")
}

// writeYAML writes the config preceded by a comment header.
func (c *Config) writeYAML(path, header string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	data = append([]byte(header), data...)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SearchServiceConfig returns the retrieval service settings.
func (c *Config) SearchServiceConfig() search.Config {
	return search.Config{
		DefaultTopK:      c.Search.DefaultTopK,
		MaxTopK:          c.Search.MaxTopK,
		CandidatePool:    c.Search.CandidatePool,
		RRFConstant:      c.Search.RRFConstant,
		BackendTimeout:   c.Search.BackendTimeout,
		MaxQueryLength:   c.Search.MaxQueryLength,
		RerankCandidates: c.Rerank.Candidates,
		RerankTopM:       c.Rerank.TopM,
	}
}

// RerankerConfig returns the reranker settings.
func (c *Config) RerankerConfig() search.RerankerConfig {
	rc := search.DefaultRerankerConfig()
	rc.Strategy = c.Rerank.Strategy
	rc.Endpoint = c.Rerank.Endpoint
	rc.Model = c.Rerank.Model
	rc.Timeout = c.Rerank.Timeout
	rc.ScoreScale = c.Rerank.ScoreScale
	rc.RatePerSecond = c.Rerank.RatePerSecond
	rc.Burst = c.Rerank.Burst
	if c.Rerank.MaxFailures > 0 {
		rc.Breaker.MaxFailures = c.Rerank.MaxFailures
	}
	if c.Rerank.ResetTimeout > 0 {
		rc.Breaker.ResetTimeout = c.Rerank.ResetTimeout
	}
	return rc
}

// EmbedderConfig returns the embedder settings.
func (c *Config) EmbedderConfig() embed.Config {
	return embed.Config{
		Provider:   c.Embeddings.Provider,
		Model:      c.Embeddings.Model,
		Host:       c.Embeddings.OllamaHost,
		Dimensions: c.Embeddings.Dimensions,
		BatchSize:  c.Embeddings.BatchSize,
		Timeout:    c.Embeddings.Timeout,
		MaxRetries: c.Embeddings.MaxRetries,
		CacheSize:  c.Embeddings.CacheSize,
	}
}

// VectorOptions returns the vector backend options for embeddings of the
// given dimension.
func (c *Config) VectorOptions(dims int) (store.VectorOptions, error) {
	hnsw := store.DefaultVectorStoreConfig(dims)
	hnsw.Metric = c.Vector.Metric
	if c.Vector.M > 0 {
		hnsw.M = c.Vector.M
	}
	if c.Vector.EfSearch > 0 {
		hnsw.EfSearch = c.Vector.EfSearch
	}
	if c.Vector.Oversample > 0 {
		hnsw.Oversample = c.Vector.Oversample
	}

	q := c.Vector.Qdrant
	layout, err := filter.ParseDateLayout(q.DateLayout)
	if err != nil {
		return store.VectorOptions{}, amerrors.ConfigError("invalid vector.qdrant.date_layout", err)
	}
	qdrant := store.DefaultQdrantConfig()
	qdrant.URL = q.URL
	qdrant.Collection = q.Collection
	qdrant.APIKey = q.APIKey
	qdrant.Dimensions = dims
	if q.Timeout > 0 {
		qdrant.Timeout = q.Timeout
	}
	qdrant.Capabilities.AnyOf = q.AnyOf
	qdrant.Capabilities.DateLayout = layout
	if len(q.Unsupported) > 0 {
		qdrant.Capabilities.Unsupported = make(map[string]bool, len(q.Unsupported))
		for _, field := range q.Unsupported {
			qdrant.Capabilities.Unsupported[field] = true
		}
	}
	if q.MaxFailures > 0 {
		qdrant.Breaker.MaxFailures = q.MaxFailures
	}
	if q.ResetTimeout > 0 {
		qdrant.Breaker.ResetTimeout = q.ResetTimeout
	}

	return store.VectorOptions{
		Backend: c.Vector.Backend,
		DataDir: c.DataDir,
		HNSW:    hnsw,
		Qdrant:  qdrant,
	}, nil
}

// KeywordOptions returns the keyword backend options.
func (c *Config) KeywordOptions() store.KeywordOptions {
	return store.KeywordOptions{
		Backend: c.Keyword.Backend,
		DataDir: c.DataDir,
		DSN:     c.Keyword.PostgresDSN,
	}
}

// LogConfig returns the logging settings. debug forces the debug level.
func (c *Config) LogConfig(debug bool) logging.Config {
	lc := logging.Config{
		Level:         c.Logging.Level,
		FilePath:      c.Logging.File,
		MaxSizeMB:     c.Logging.MaxSizeMB,
		MaxFiles:      c.Logging.MaxFiles,
		WriteToStderr: c.Logging.Stderr,
	}
	if debug {
		lc.Level = "debug"
	}
	return lc
}
