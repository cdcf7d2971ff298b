package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/postnotify/internal/render"
)

var (
	fetchFormat string
	noColor     bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch new posts and print them instead of notifying",
	Long:  "fetch runs the same fetch as run and prints the rendered messages. Watermarks still advance.",
	RunE:  fetchAction,
}

func init() {
	fetchCmd.Flags().StringVar(&fetchFormat, "format", "terminal", "output format: terminal, json")
	fetchCmd.Flags().BoolVar(&noColor, "no-color", false, "disable ANSI colors")
	rootCmd.AddCommand(fetchCmd)
}

func fetchAction(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd)
	start := time.Now()

	switch fetchFormat {
	case "terminal", "", "json":
	default:
		return fmt.Errorf("unknown format %q (want terminal or json)", fetchFormat)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}

	a, err := openApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	msgs, summaries, err := a.fetch(ctx)
	a.finish(start, err == nil)
	if err != nil {
		return err
	}

	if fetchFormat == "json" {
		return render.NewJSON().Write(os.Stdout, len(summaries), msgs)
	}
	return render.NewTerminal(!noColor).Write(os.Stdout, len(summaries), msgs)
}
