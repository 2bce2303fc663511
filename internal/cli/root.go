package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/modem-control/mdmcli/internal/config"
)

// Version is the CLI version, overridden at build time.
var Version = "0.1.0"

// app carries state shared by the commands of one root.
type app struct {
	v   *viper.Viper
	out io.Writer
}

// lockedWriter serializes writes from listener goroutines and commands.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:   "mdmcli",
		Short: "Modem management client",
		Long: `mdmcli drives a modem session against the modem management service:
connect, acquire, reset, report debug information and watch status events.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			a.out = &lockedWriter{w: cmd.OutOrStdout()}
		},
	}

	flags := root.PersistentFlags()
	flags.StringP("config", "c", "", "config file (default is $MDMCLI_CONFIG)")
	flags.String("client-name", "", "client name announced to the service")
	flags.Int("instance", 0, "modem instance id")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.Duration("boot-delay", 0, "simulated modem boot time")
	flags.String("audit-dir", "", "write an audit trail to this directory")

	bindings := map[string]string{
		"config":          "config",
		"client.name":     "client-name",
		"client.instance": "instance",
		"log.level":       "log-level",
		"stub.boot_delay": "boot-delay",
		"audit.dir":       "audit-dir",
	}
	for key, flag := range bindings {
		_ = a.v.BindPFlag(key, flags.Lookup(flag))
	}

	a.v.SetEnvPrefix("MDMCLI")
	// e.g. MDMCLI_CLIENT_NAME for client.name
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	a.v.AutomaticEnv()

	root.AddCommand(
		newSessionCmd(a),
		newResetCmd(a),
		newNotifyCmd(a),
		newShutdownCmd(a),
		newUpdateCmd(a),
		newWatchCmd(a),
		newVersionCmd(a),
	)
	return root
}

// loadConfig layers flag and environment values over config.Load.
func (a *app) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(a.v.GetString("config"))
	if err != nil {
		return nil, err
	}

	if a.v.IsSet("client.name") {
		cfg.Client.Name = a.v.GetString("client.name")
	}
	if a.v.IsSet("client.instance") {
		cfg.Client.Instance = a.v.GetInt("client.instance")
	}
	if a.v.IsSet("log.level") {
		cfg.Log.Level = a.v.GetString("log.level")
	}
	if a.v.IsSet("stub.boot_delay") {
		cfg.Stub.BootDelay = a.v.GetDuration("stub.boot_delay")
	}
	if dir := a.v.GetString("audit.dir"); dir != "" {
		cfg.Audit.Enabled = true
		cfg.Audit.Dir = dir
	}

	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (a *app) printf(format string, args ...interface{}) {
	fmt.Fprintf(a.out, format, args...)
}
