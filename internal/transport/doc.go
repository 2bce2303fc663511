// Package transport defines the port between a session and the out-of-process
// modem management service.
//
// A Transport carries lifecycle calls outbound and delivers raw status codes
// inbound through the StatusHandler registered at Open. Implementations live
// in sub-packages: fake for tests, stub for an in-process simulated service.
//
// Service References:
//   - mdm_cli.h: mdm_cli_connect, mdm_cli_disconnect, mdm_cli_acquire,
//     mdm_cli_release, mdm_cli_restart, mdm_cli_shutdown, mdm_cli_notify_dbg
package transport
