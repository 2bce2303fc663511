// Package modem defines the shared vocabulary of the modem client library.
//
// It holds instance identifiers, raw status codes reported by the modem
// management service, the semantic statuses derived from them, debug/log
// request parameters, the listener contracts exposed to applications and the
// normalized error taxonomy.
//
// Service References:
//   - mdm_cli.h: event identifiers, default instance, client name length
//   - mdm_cli_dbg.h: debug info types and log size sentinels
package modem
