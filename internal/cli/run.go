package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var runEvery string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetch new posts and send notifications",
	RunE:  runAction,
}

// runOnceAction is replaced in tests.
var runOnceAction = runOnce

func init() {
	runCmd.Flags().StringVar(&runEvery, "every", "", "repeat at this interval until interrupted (e.g. 15m)")
	rootCmd.AddCommand(runCmd)
}

func runAction(cmd *cobra.Command, args []string) error {
	every, err := parseRunEvery(runEvery)
	if err != nil {
		return err
	}
	if every == 0 {
		return runOnceAction(cmd, args)
	}
	return runWatch(commandContext(cmd), every, func() error {
		return runOnceAction(cmd, args)
	})
}

func parseRunEvery(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parse --every: %w", err)
	}
	if d <= 0 {
		return 0, errors.New("--every must be positive")
	}
	return d, nil
}

// runWatch calls runOnce immediately and then on every tick until ctx is
// done. A failed run is reported and the next tick still fires.
func runWatch(ctx context.Context, every time.Duration, runOnce func() error) error {
	if err := runOnce(); err != nil {
		fmt.Fprintf(os.Stderr, "run failed: %v\n", err)
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := runOnce(); err != nil {
				fmt.Fprintf(os.Stderr, "run failed: %v\n", err)
			}
		}
	}
}

func runOnce(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd)
	start := time.Now()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}

	// Built before fetching: once watermarks move, an undeliverable batch is lost.
	notifier, err := newNotifier(cfg, log)
	if err != nil {
		return fmt.Errorf("create notifier: %w", err)
	}

	a, err := openApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	msgs, summaries, err := a.fetch(ctx)
	if err != nil {
		a.finish(start, false)
		return err
	}

	rep := notifier.Send(ctx, msgs, cfg.Notify.Device)
	a.finish(start, !rep.AllFailed())
	a.log.Info().
		Int("accounts", len(summaries)).
		Int("posts", len(msgs)).
		Int("sent", rep.Sent).
		Int("failed", rep.Failed).
		Dur("took", time.Since(start)).
		Msg("run complete")

	fmt.Printf("Checked %d accounts: %d new posts, %d sent", len(summaries), len(msgs), rep.Sent)
	if rep.Failed > 0 {
		fmt.Printf(", %d failed", rep.Failed)
	}
	fmt.Println()

	if rep.AllFailed() {
		return fmt.Errorf("all %d notifications failed", rep.Failed)
	}
	return nil
}
