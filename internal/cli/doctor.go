package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/postnotify/internal/config"
	"github.com/ppiankov/postnotify/internal/store"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check config, credentials and storage",
	RunE:  doctorAction,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func doctorAction(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd)
	ok := true

	// Config dir
	if info, err := os.Stat(configDir); err != nil || !info.IsDir() {
		printCheck(false, "config directory %s", configDir)
		ok = false
	} else {
		printCheck(true, "config directory %s", configDir)
	}

	// Config file
	cfg, err := loadConfig()
	if err != nil {
		printCheck(false, "config.yaml: %v", err)
		return fmt.Errorf("some checks failed")
	}
	printCheck(true, "config.yaml (%d accounts, notify via %s, %s storage)",
		len(cfg.Accounts), cfg.Notify.Provider, cfg.Storage.Driver)

	// Credentials
	if missing := cfg.MissingCredentials(); len(missing) > 0 {
		for _, name := range missing {
			printCheck(false, "credential %s not set", name)
		}
		ok = false
	} else {
		printCheck(true, "credentials")
	}

	// Storage
	if !checkStore(ctx, cfg) {
		ok = false
	}

	if !ok {
		return fmt.Errorf("some checks failed")
	}
	fmt.Println("\nAll checks passed.")
	return nil
}

func checkStore(ctx context.Context, cfg *config.Config) bool {
	kv, err := store.Open(ctx, cfg.StoreOptions())
	if err != nil {
		printCheck(false, "storage: %v", err)
		return false
	}
	defer func() { _ = kv.Close() }()

	target := cfg.Storage.Path
	if cfg.Storage.Driver == store.DriverRedis {
		target = cfg.Storage.Redis.Addr
	}

	handles, err := kv.List(ctx, store.NamespaceHandles)
	if err != nil {
		printCheck(false, "storage %s: %v", target, err)
		return false
	}
	watermarks, err := kv.List(ctx, store.NamespaceWatermarks)
	if err != nil {
		printCheck(false, "storage %s: %v", target, err)
		return false
	}
	printCheck(true, "storage %s (%d handles cached, %d watermarks)", target, len(handles), len(watermarks))
	return true
}

func printCheck(pass bool, format string, args ...any) {
	mark := "FAIL"
	if pass {
		mark = " OK "
	}
	fmt.Printf("[%s] %s\n", mark, fmt.Sprintf(format, args...))
}
