package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/modem-control/mdmcli/internal/modem"
	"github.com/modem-control/mdmcli/internal/session"
)

// withAcquiredModem runs op on an acquired, up modem and prints its outcome.
func (a *app) withAcquiredModem(ctx context.Context, name string, op func(ctx context.Context, s *session.Session) error) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	rt, err := newRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close(context.Background())

	s, err := rt.session()
	if err != nil {
		return err
	}
	release, err := rt.acquired(ctx, s, a.printingListener())
	if err != nil {
		a.printf("%s\n", renderOutcome("acquireModem", err))
		return err
	}
	defer release()

	err = op(ctx, s)
	a.printf("%s\n", renderOutcome(name, err))
	return err
}

func newResetCmd(a *app) *cobra.Command {
	var (
		causes []string
		apLog  int
		bpLog  int
		bpTime int
	)

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Restart the modem after an error",
		RunE: func(cmd *cobra.Command, args []string) error {
			logs := modem.LogRequest{
				APLogSize: modem.LogSize(apLog),
				BPLogSize: modem.LogSize(bpLog),
				BPLogTime: modem.LogSize(bpTime),
			}
			return a.withAcquiredModem(cmd.Context(), "resetModem", func(ctx context.Context, s *session.Session) error {
				return s.ResetModem(ctx, causes, logs)
			})
		},
	}

	def := modem.ResetLogRequest()
	cmd.Flags().StringSliceVar(&causes, "cause", nil, "restart cause (repeatable)")
	cmd.Flags().IntVar(&apLog, "ap-log", int(def.APLogSize), "AP log size in MB (-1 service default, 0 none)")
	cmd.Flags().IntVar(&bpLog, "bp-log", int(def.BPLogSize), "BP log size in MB (-1 service default, 0 none)")
	cmd.Flags().IntVar(&bpTime, "bp-time", int(def.BPLogTime), "BP log duration in seconds (-1 service default, 0 none)")
	return cmd
}

func newNotifyCmd(a *app) *cobra.Command {
	var (
		causes []string
		typ    int
		apLog  int
		bpLog  int
		bpTime int
	)

	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Report debug information to the service",
		RunE: func(cmd *cobra.Command, args []string) error {
			logs := modem.LogRequest{
				APLogSize: modem.LogSize(apLog),
				BPLogSize: modem.LogSize(bpLog),
				BPLogTime: modem.LogSize(bpTime),
			}
			return a.withAcquiredModem(cmd.Context(), "notifyDebugInfo", func(ctx context.Context, s *session.Session) error {
				return s.NotifyDebugInfo(ctx, causes, modem.DebugInfoType(typ), logs)
			})
		},
	}

	cmd.Flags().IntVar(&typ, "type", int(modem.DebugInfo), "debug info type")
	cmd.Flags().StringSliceVar(&causes, "cause", nil, "debug cause (repeatable)")
	cmd.Flags().IntVar(&apLog, "ap-log", 0, "AP log size in MB (-1 service default, 0 none)")
	cmd.Flags().IntVar(&bpLog, "bp-log", 0, "BP log size in MB (-1 service default, 0 none)")
	cmd.Flags().IntVar(&bpTime, "bp-time", 0, "BP log duration in seconds (-1 service default, 0 none)")
	return cmd
}

func newShutdownCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "shutdown",
		Short: "Power the modem off regardless of other clients",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withAcquiredModem(cmd.Context(), "shutdownModem", func(ctx context.Context, s *session.Session) error {
				return s.ShutdownModem(ctx)
			})
		},
	}
}

func newUpdateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Restart the modem to apply a firmware update",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withAcquiredModem(cmd.Context(), "updateModem", func(ctx context.Context, s *session.Session) error {
				return s.UpdateModem(ctx)
			})
		},
	}
}
