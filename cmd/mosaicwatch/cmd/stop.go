package cmd

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/mosaicwatch/internal/control"
)

// errNotRunning is returned by stop when no session is running.
var errNotRunning = errors.New("no session is running")

func newStopCmd() *cobra.Command {
	var (
		wait    bool
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the running session",
		Long: `Ask the running watch session to stop.

A batch that is being merged completes first. With --wait the command returns
once the session has stopped. If the control socket does not answer, the
session process is sent SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return runStop(ctx, cmd, wait)
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "Wait until the session has stopped")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "How long to wait for the session")

	return cmd
}

func runStop(ctx context.Context, cmd *cobra.Command, wait bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctlCfg := control.FromConfig(cfg.Control)
	client := control.NewClient(ctlCfg)

	if !client.IsRunning() {
		pid := control.NewPIDFile(ctlCfg.PIDPath)
		if !pid.IsRunning() {
			return errNotRunning
		}
		if err := pid.Signal(syscall.SIGTERM); err != nil {
			return err
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Control socket not responding; sent SIGTERM to the session process.")
		return nil
	}

	res, err := client.Stop(ctx, wait)
	if err != nil {
		var ce *control.Error
		if errors.As(err, &ce) && ce.Code == control.ErrCodeNoSession {
			return errNotRunning
		}
		return fmt.Errorf("failed to stop session: %w", err)
	}

	if res.StopReason != "" {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Session %s (%s).\n", res.State, res.StopReason)
	} else {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Stop requested; session is %s.\n", res.State)
	}
	return nil
}
