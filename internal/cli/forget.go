package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/postnotify/internal/store"
	"github.com/ppiankov/postnotify/internal/timeline"
)

var forgetCmd = &cobra.Command{
	Use:   "forget HANDLE...",
	Short: "Drop watermarks so the next run treats the accounts as new",
	Args:  cobra.MinimumNArgs(1),
	RunE:  forgetAction,
}

func init() {
	rootCmd.AddCommand(forgetCmd)
}

func forgetAction(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	kv, err := store.Open(ctx, cfg.StoreOptions())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = kv.Close() }()

	for _, arg := range args {
		handle := timeline.NormalizeHandle(arg)
		if handle == "" {
			return fmt.Errorf("invalid handle %q", arg)
		}

		id, ok, err := kv.Get(ctx, store.NamespaceHandles, handle)
		if err != nil {
			return fmt.Errorf("read handle cache: %w", err)
		}
		if !ok {
			fmt.Printf("  unknown: @%s (never resolved)\n", handle)
			continue
		}
		if err := kv.Delete(ctx, store.NamespaceWatermarks, id); err != nil {
			return fmt.Errorf("delete watermark for @%s: %w", handle, err)
		}
		fmt.Printf("  forgot: @%s (id %s)\n", handle, id)
	}
	return nil
}
