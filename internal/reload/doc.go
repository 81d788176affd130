// Package reload decides when the in-memory tree is rebuilt. Refresh requests
// arrive from SIGHUP, the optional file watcher, and the diagnostics endpoint;
// the Runner serialises them so that at most one rebuild runs and at most one
// more is queued behind it, no matter how many triggers fire in between.
package reload
