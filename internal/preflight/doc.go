// Package preflight runs readiness checks before indexing or serving.
//
// Local checks cover the data directory (writable, at least 100MB free) and
// the open file limit. Remote checks ask the embedder and every configured
// retrieval backend to answer within a timeout; they run concurrently.
//
//	report := preflight.New(
//	    preflight.WithEmbedder(e),
//	    preflight.WithBackendProbe("hnsw", probe),
//	).Run(ctx, dataDir)
//	if err := report.Err(); err != nil {
//	    // a required check failed
//	}
//
// A marker file in the data directory records the version that last
// passed, so serve only re-runs the checks after an upgrade.
package preflight
