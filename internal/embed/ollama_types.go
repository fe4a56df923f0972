package embed

import (
	"time"

	"github.com/Aman-CERP/bulletinsearch/internal/lifecycle"
)

const (
	DefaultOllamaHost  = lifecycle.DefaultHost
	DefaultOllamaModel = lifecycle.DefaultModel

	// OllamaConnectTimeout bounds the model check in NewOllamaEmbedder.
	OllamaConnectTimeout = 10 * time.Second
	OllamaPoolSize       = 4
)

// FallbackOllamaModels are tried, in order, when the configured model is
// not installed. Both are multilingual.
var FallbackOllamaModels = []string{"bge-m3", "mxbai-embed-large"}

type OllamaConfig struct {
	Host           string
	Model          string
	FallbackModels []string
	// Dimensions overrides detection when non-zero.
	Dimensions int
	BatchSize  int
	// Timeout applies to each HTTP request, not to a whole batch.
	Timeout    time.Duration
	MaxRetries int
	// SkipHealthCheck skips the model check; tests use it.
	SkipHealthCheck bool
}

func DefaultOllamaConfig() OllamaConfig {
	return OllamaConfig{
		Host:           DefaultOllamaHost,
		Model:          DefaultOllamaModel,
		FallbackModels: FallbackOllamaModels,
		BatchSize:      DefaultBatchSize,
		Timeout:        DefaultTimeout,
		MaxRetries:     DefaultMaxRetries,
	}
}

// Wire types of POST /api/embed. Model listing goes through
// lifecycle.ModelManager.
type (
	ollamaEmbedRequest struct {
		Model string `json:"model"`
		// Input is a string for one text, []string for a batch.
		Input any `json:"input"`
	}

	ollamaEmbedResponse struct {
		Model      string      `json:"model"`
		Embeddings [][]float64 `json:"embeddings"`
	}
)
