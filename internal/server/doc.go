// Package server hosts the Fiber HTTP service. It wires the request-ID,
// access-log, recover and delay middlewares, then translates each request
// either through the resolver against the in-memory snapshot (cached mode) or
// straight to the filesystem (passthrough mode). Optional diagnostics routes
// live under /-/ and expose cache statistics plus an authenticated refresh.
// Handlers keep no per-request state beyond the snapshot they captured, so a
// refresh running alongside never changes a response that is already being
// written.
package server
