// Package influxdb writes the portal's auth time series to InfluxDB v2.
//
// Two measurements are produced: auth_events (one point per login, logout
// and refresh) and login_latency (wall time of each login request). Writes
// are batched and non-blocking; async failures are reported through
// OnWriteError.
//
// The integration is optional. Connect returns ErrDisabled when
// influxdb.enabled is false, and every write method is a no-op on a nil or
// closed client, so callers never need to guard their calls.
package influxdb
