package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

func newWatchCmd(a *app) *cobra.Command {
	var (
		period time.Duration
		cycle  bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream telemetry events while holding the modem",
		Long: `Acquire the modem and print every telemetry event (status, operation,
fault, connection, heartbeat) until --for elapses or the command is
interrupted. With --cycle the modem is reset once to show a restart.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runWatch(cmd.Context(), period, cycle)
		},
	}
	cmd.Flags().DurationVar(&period, "for", 5*time.Second, "how long to watch")
	cmd.Flags().BoolVar(&cycle, "cycle", false, "reset the modem once while watching")
	return cmd
}

func (a *app) runWatch(ctx context.Context, period time.Duration, cycle bool) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	rt, err := newRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close(context.Background())

	watchCtx, cancel := context.WithTimeout(ctx, period)
	defer cancel()

	sub, err := rt.hub.Subscribe(watchCtx, 0, 0)
	if err != nil {
		return err
	}
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for ev := range sub.Events {
			a.printf("%s\n", renderEvent(ev))
		}
	}()

	s, err := rt.session()
	if err != nil {
		return err
	}
	release, err := rt.acquired(watchCtx, s, nil)
	if err != nil {
		cancel()
		<-printed
		return err
	}

	if cycle {
		if q, err := rt.queue(); err == nil {
			_, _ = q.ResetModemAsync(nil, "watch")
		}
	}

	<-watchCtx.Done()
	release()
	<-printed
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}
