// Package cli implements the mdmcli command tree.
//
// Commands run against the in-process stub service. Configuration comes from
// config.Load and is overridden by flags and MDMCLI_* variables bound through
// viper.
package cli
