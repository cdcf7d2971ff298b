package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/postnotify/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config directory with an example config",
	RunE:  initAction,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func initAction(_ *cobra.Command, _ []string) error {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	configPath := filepath.Join(configDir, config.DefaultConfigFile)
	wrote, err := writeIfNotExists(configPath, []byte(exampleConfig))
	if err != nil {
		return err
	}

	if wrote {
		fmt.Printf("Initialized %s. Set %s_BEARER_TOKEN and the notifier credentials, then run 'postnotify doctor'.\n",
			configDir, config.EnvPrefix)
	} else {
		fmt.Printf("Config directory %s already initialized.\n", configDir)
	}
	return nil
}

// writeIfNotExists writes data to path if the file does not exist.
// Returns true if the file was created.
func writeIfNotExists(path string, data []byte) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("  exists: %s\n", path)
		return false, nil
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Printf("  created: %s\n", path)
	return true, nil
}

const exampleConfig = `# postnotify configuration
#
# Credentials come from the environment:
#   POSTNOTIFY_BEARER_TOKEN        feed API bearer token
#   POSTNOTIFY_PUSHOVER_APP_TOKEN  pushover application token
#   POSTNOTIFY_PUSHOVER_USER_KEY   pushover user key
#   POSTNOTIFY_TELEGRAM_BOT_TOKEN  telegram bot token
#   POSTNOTIFY_REDIS_PASSWORD      redis password (optional)

accounts:
  - your_handle_here

feed:
  page_size: 100
  max_pages: 5
  # Newest posts to notify about on an account's first run. 0 only records
  # where to start next time.
  first_run_posts: 0
  timeout: 30s

notify:
  provider: pushover # pushover, telegram or stdout
  device: ""
  telegram:
    chat_id: 0

storage:
  driver: sqlite # sqlite or redis
  path: .postnotify/state.db
  redis:
    addr: localhost:6379
    db: 0
    prefix: postnotify

log:
  level: info
  format: console # console or json

metrics:
  textfile: ""

privacy:
  redact:
    enabled: false
    patterns: []
`
