// Package preflight checks that pagemind can run before it does real work.
//
// The checks cover:
//   - Free disk space and write access in the data directory
//   - The open file descriptor limit
//   - Azure OpenAI settings completeness
//   - Readability of configured tab and bookmark sources
//   - Reachability of the Redis embedding cache, when selected
//
// Usage:
//
//	rep := preflight.New().Run(ctx, preflight.TargetFrom(cfg, settings))
//	if rep.Failed() {
//	    // a required check failed
//	}
package preflight
