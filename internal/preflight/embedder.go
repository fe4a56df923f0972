package preflight

import (
	"context"
	"fmt"

	"github.com/Aman-CERP/bulletinsearch/internal/embed"
)

// CheckEmbedder checks the embedder answers.
func (c *Checker) CheckEmbedder(ctx context.Context, e embed.Embedder) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	info := embed.GetInfo(ctx, e)
	result := CheckResult{
		Name:     "embedder",
		Required: true,
		Details:  fmt.Sprintf("provider=%s model=%s dimensions=%d cached=%t", info.Provider, info.Model, info.Dimensions, info.Cached),
	}

	if !info.Available {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("%s embedder is not reachable", info.Provider)
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s (%d dims)", info.Model, info.Dimensions)
	return result
}

// CheckBackend runs one backend probe under the probe timeout.
func (c *Checker) CheckBackend(ctx context.Context, name string, fn ProbeFunc) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	result := CheckResult{
		Name:     "backend_" + name,
		Required: true,
	}

	if err := fn(ctx); err != nil {
		result.Status = StatusFail
		result.Message = err.Error()
		return result
	}

	result.Status = StatusPass
	result.Message = "OK"
	return result
}
