// Package config implements the configuration store for mdmcli.
//
// Values are layered: the built-in baseline, then an optional YAML file, then
// MDMCLI_* environment variables. The merged result is validated before use.
//
// Service References:
//   - mdm_cli.h: default instance and client name limits
package config
