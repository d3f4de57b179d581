// Package api implements the portal's HTTP API and session-event WebSocket.
//
// This package provides:
//   - Login, refresh and logout over short-lived access tokens and
//     long-lived refresh tokens
//   - The authentication gate and role permissions for the read endpoints
//     (profile, results, analytics, audit, metrics)
//   - A WebSocket hub that tells a user's other connections when one of
//     their sessions starts or ends
//   - Middleware (request ID, logging, recovery, security headers, CORS,
//     body limit, per-address rate limit)
//   - Static hosting of the built front end with an index.html fallback
//
// # Security
//
// Unknown usernames and wrong passwords get the same 401 payload, and the
// unknown-user path still verifies a dummy hash. WebSocket connections use
// single-use tickets so tokens never appear in URLs. Logout is stateless
// unless a revocation store is configured.
//
// # Graceful Degradation
//
// MQTT, InfluxDB and the audit repository are optional. Auth events are
// still logged when none of them is configured.
//
// The server follows the same lifecycle as the infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
