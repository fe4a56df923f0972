package embed

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ProviderType names an embedding backend.
type ProviderType string

const (
	// ProviderStatic hashes tokens and trigrams. Offline and deterministic.
	ProviderStatic ProviderType = "static"
	ProviderOllama ProviderType = "ollama"
)

func (p ProviderType) String() string {
	return string(p)
}

// Config selects and configures an embedder.
type Config struct {
	Provider   string
	Model      string
	Host       string
	Dimensions int
	BatchSize  int
	Timeout    time.Duration
	MaxRetries int

	// CacheSize is the LRU capacity. Zero uses the default; negative disables caching.
	CacheSize int
}

// DefaultConfig is the offline static embedder with caching.
func DefaultConfig() Config {
	return Config{
		Provider:   string(ProviderStatic),
		Host:       DefaultOllamaHost,
		Model:      DefaultOllamaModel,
		BatchSize:  DefaultBatchSize,
		Timeout:    DefaultTimeout,
		MaxRetries: DefaultMaxRetries,
		CacheSize:  DefaultEmbeddingCacheSize,
	}
}

// providers lists the constructors in the order they are reported to users.
var providers = []struct {
	name  ProviderType
	build func(context.Context, Config) (Embedder, error)
}{
	{ProviderStatic, func(context.Context, Config) (Embedder, error) {
		return NewStaticEmbedder(), nil
	}},
	{ProviderOllama, func(ctx context.Context, cfg Config) (Embedder, error) {
		e, err := NewOllamaEmbedder(ctx, cfg.ollama())
		if err != nil {
			return nil, fmt.Errorf("ollama unavailable: %w", err)
		}
		return e, nil
	}},
}

// ollama overlays the set fields of cfg on DefaultOllamaConfig.
func (cfg Config) ollama() OllamaConfig {
	oc := DefaultOllamaConfig()
	if cfg.Host != "" {
		oc.Host = cfg.Host
	}
	if cfg.Model != "" {
		oc.Model = cfg.Model
	}
	if cfg.BatchSize > 0 {
		oc.BatchSize = cfg.BatchSize
	}
	if cfg.Timeout > 0 {
		oc.Timeout = cfg.Timeout
	}
	if cfg.MaxRetries > 0 {
		oc.MaxRetries = cfg.MaxRetries
	}
	oc.Dimensions = cfg.Dimensions
	return oc
}

// NewEmbedder builds the configured embedder, wrapped in a CachedEmbedder
// unless CacheSize is negative. An unreachable Ollama is an error; there
// is no silent fallback to the static embedder, whose vectors would not
// match an Ollama-built index.
func NewEmbedder(ctx context.Context, cfg Config) (Embedder, error) {
	p := ParseProvider(cfg.Provider)
	for _, entry := range providers {
		if entry.name != p {
			continue
		}
		e, err := entry.build(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if cfg.CacheSize >= 0 {
			e = NewCachedEmbedder(e, cfg.CacheSize)
		}
		return e, nil
	}
	return nil, fmt.Errorf("unknown embedding provider: %q (valid options: %s)",
		cfg.Provider, strings.Join(ValidProviders(), ", "))
}

// ParseProvider normalizes a provider name. Empty means static; unknown
// names are returned as given.
func ParseProvider(s string) ProviderType {
	name := ProviderType(strings.ToLower(strings.TrimSpace(s)))
	if name == "" {
		return ProviderStatic
	}
	if IsValidProvider(string(name)) {
		return name
	}
	return ProviderType(s)
}

func ValidProviders() []string {
	names := make([]string, len(providers))
	for i, p := range providers {
		names[i] = string(p.name)
	}
	return names
}

func IsValidProvider(s string) bool {
	name := ProviderType(strings.ToLower(strings.TrimSpace(s)))
	for _, p := range providers {
		if p.name == name {
			return true
		}
	}
	return name == ""
}

// EmbedderInfo describes an embedder for doctor, index logs and startup.
type EmbedderInfo struct {
	Provider   ProviderType
	Model      string
	Dimensions int
	Available  bool
	Cached     bool
}

// GetInfo describes e, looking through a CachedEmbedder for the provider.
func GetInfo(ctx context.Context, e Embedder) EmbedderInfo {
	info := EmbedderInfo{
		Model:      e.ModelName(),
		Dimensions: e.Dimensions(),
		Available:  e.Available(ctx),
		Provider:   ProviderStatic,
	}
	if cached, ok := e.(*CachedEmbedder); ok {
		info.Cached = true
		e = cached.Inner()
	}
	if _, ok := e.(*OllamaEmbedder); ok {
		info.Provider = ProviderOllama
	}
	return info
}
