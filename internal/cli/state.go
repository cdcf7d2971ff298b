package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ppiankov/postnotify/internal/store"
	"github.com/ppiankov/postnotify/internal/timeline"
)

var stateFormat string

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Show cached account ids and watermarks",
	RunE:  stateAction,
}

func init() {
	stateCmd.Flags().StringVar(&stateFormat, "format", "terminal", "output format: terminal, json")
	rootCmd.AddCommand(stateCmd)
}

type accountState struct {
	Handle     string `json:"handle"`
	ID         string `json:"id,omitempty"`
	Name       string `json:"name,omitempty"`
	Watermark  string `json:"watermark,omitempty"`
	Configured bool   `json:"configured"`
}

func stateAction(cmd *cobra.Command, _ []string) error {
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

	handles, err := kv.List(ctx, store.NamespaceHandles)
	if err != nil {
		return fmt.Errorf("list handles: %w", err)
	}
	watermarks, err := kv.List(ctx, store.NamespaceWatermarks)
	if err != nil {
		return fmt.Errorf("list watermarks: %w", err)
	}
	authors, err := kv.List(ctx, store.NamespaceAuthors)
	if err != nil {
		return fmt.Errorf("list authors: %w", err)
	}

	configured := make(map[string]bool, len(cfg.Accounts))
	for _, a := range cfg.Accounts {
		configured[timeline.NormalizeHandle(a)] = true
	}

	states := make([]accountState, 0, len(handles))
	seen := make(map[string]bool, len(handles))
	for handle, id := range handles {
		seen[handle] = true
		st := accountState{Handle: handle, ID: id, Watermark: watermarks[id], Configured: configured[handle]}
		var author timeline.Author
		if raw, ok := authors[id]; ok && json.Unmarshal([]byte(raw), &author) == nil {
			st.Name = author.Name
		}
		states = append(states, st)
	}
	for handle := range configured {
		if !seen[handle] {
			states = append(states, accountState{Handle: handle, Configured: true})
		}
	}
	sort.Slice(states, func(i, j int) bool { return states[i].Handle < states[j].Handle })

	switch stateFormat {
	case "json":
		return printStateJSON(os.Stdout, states)
	case "terminal", "":
		printState(os.Stdout, states)
		return nil
	default:
		return fmt.Errorf("unknown format %q (want terminal or json)", stateFormat)
	}
}

func printState(w io.Writer, states []accountState) {
	if len(states) == 0 {
		fmt.Fprintln(w, "No accounts known yet. Run 'postnotify run' first.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "HANDLE\tID\tNAME\tWATERMARK\t")
	for _, s := range states {
		id, watermark := s.ID, s.Watermark
		if id == "" {
			id = "(unresolved)"
		}
		if watermark == "" {
			watermark = "(first run pending)"
		}
		handle := "@" + s.Handle
		if !s.Configured {
			handle += " (not configured)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n", handle, id, s.Name, watermark)
	}
	_ = tw.Flush()
}

func printStateJSON(w io.Writer, states []accountState) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Accounts []accountState `json:"accounts"`
	}{Accounts: states})
}
