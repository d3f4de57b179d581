// Package client is a typed HTTP client for the portal API.
//
// It maps error responses back to the auth and results sentinels, so callers
// can use errors.Is the same way the server does. *Client implements
// sessionguard.Authenticator and sessionguard.Refresher.
package client
