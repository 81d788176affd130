// Package cache holds the in-memory snapshot of a served directory tree.
// Load walks the root once, reads every regular file into memory and keeps
// the gzip form (best ratio) only when it is smaller than the raw bytes. The
// resulting Snapshot is immutable; Refresh builds the next generation off to
// the side and publishes it with a single atomic pointer swap, so lookups
// never wait on a rebuild and never see a half-built mapping. A failed
// refresh leaves the previous generation in place.
package cache
