// Package api implements the local HTTP status API of the bridge.
//
// This package provides:
//   - Health and entity listings for operators
//   - Rendered discovery documents for troubleshooting
//   - A refresh trigger equivalent to the refresh button
//   - The discovery journal, when SQLite is enabled
//   - Prometheus metrics on /metrics
//
// # Graceful Degradation
//
// The journal and metrics endpoints are optional. When their dependency is
// not configured they answer 404 instead of failing the server.
package api
