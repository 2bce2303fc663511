// Package audit implements the audit trail of lifecycle operations.
//
// Every operation a session performs against the service is appended as one
// JSON line with client, instance, parameters, outcome and latency. Files are
// rotated by size.
package audit
