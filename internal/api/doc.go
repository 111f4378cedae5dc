// Package api implements the HTTP REST API and WebSocket server for RemoteLink Core.
//
// This package provides:
//   - Discovery, pairing, connection and control endpoints under /api/v1
//   - A WebSocket hub broadcasting device lifecycle changes
//   - The lifecycle history at /api/v1/audit (sqlite backend only)
//   - An optional entitlement gate (bearer JWT) on pairing and control routes
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//   - Prometheus exposition at /metrics
//
// # Errors
//
// Components return classified device errors; the API maps each kind to an
// HTTP status and renders {status, code, message, device_id, field}:
//
//	validation 400, invalid credential 403, not found 404,
//	conflict and not paired 409, upstream 502, offline 503, timeout 504
//
// Missing or invalid bearer tokens are 401; a valid token without an
// entitlement is 403.
package api
