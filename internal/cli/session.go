package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/modem-control/mdmcli/internal/modem"
)

func newSessionCmd(a *app) *cobra.Command {
	var hold time.Duration

	cmd := &cobra.Command{
		Use:   "session",
		Short: "Run a full modem session",
		Long: `Connect, acquire the modem, wait until it is up, hold it, then release
and disconnect. Status events are printed as they arrive.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSession(cmd.Context(), hold)
		},
	}
	cmd.Flags().DurationVar(&hold, "hold", 0, "how long to keep the modem acquired")
	return cmd
}

func (a *app) runSession(ctx context.Context, hold time.Duration) error {
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

	err = s.Connect(ctx, cfg.Client.Name)
	a.printf("%s\n", renderOutcome("connect", err))
	if err != nil {
		return err
	}
	defer func() {
		_ = s.Disconnect(context.Background())
		a.printf("%s\n", renderOutcome("disconnect", nil))
	}()
	s.Subscribe(a.printingListener())

	q, err := rt.queue()
	if err != nil {
		return err
	}

	acquired := make(chan error, 1)
	if _, err := q.AcquireModemAsync(modem.ResultFuncs{
		Complete: func() { acquired <- nil },
		Error:    func(cause error) { acquired <- cause },
	}); err != nil {
		return err
	}
	err = <-acquired
	a.printf("%s\n", renderOutcome("acquireModem", err))
	if err != nil {
		return err
	}

	up, err := s.WaitForModemStatus(ctx, modem.StatusUp, cfg.Timing.WaitTimeout)
	if err != nil {
		return err
	}
	if !up {
		_ = s.ReleaseModem(context.Background())
		return fmt.Errorf("%w: modem not up after %s", modem.ErrTimeout, cfg.Timing.WaitTimeout)
	}

	if hold > 0 {
		a.printf("%s\n", mutedStyle.Render(fmt.Sprintf("holding modem for %s", hold)))
		select {
		case <-time.After(hold):
		case <-ctx.Done():
		}
	}

	err = s.ReleaseModem(context.Background())
	a.printf("%s\n", renderOutcome("releaseModem", err))
	if err != nil {
		return err
	}
	if _, err := s.WaitForModemStatus(context.Background(), modem.StatusDown, cfg.Timing.WaitTimeout); err != nil {
		return err
	}
	return nil
}
