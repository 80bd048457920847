// Package influxdb stores auth telemetry (security events and permission
// decisions) in InfluxDB for dashboards such as "lockouts per company per
// hour" or "denials by module".
//
// The integration is optional. When influxdb.enabled is false, Connect
// returns ErrDisabled and the service runs without telemetry.
//
// Writes go through the batching non-blocking API so a slow or unreachable
// server never adds latency to an authenticated request.
package influxdb
