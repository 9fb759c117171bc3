package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/teemow/venuedesk/internal/config"
	"github.com/teemow/venuedesk/internal/model"
)

// syncSummary describes the cache after a sync.
type syncSummary struct {
	Total      int            `json:"total"`
	Replied    int            `json:"replied"`
	Associated int            `json:"associated"`
	ByCategory map[string]int `json:"byCategory"`
}

func summarize(msgs []model.Message) syncSummary {
	s := syncSummary{Total: len(msgs), ByCategory: make(map[string]int)}
	for _, m := range msgs {
		if m.Replied {
			s.Replied++
		}
		if m.AssociatedEventID != nil {
			s.Associated++
		}
		s.ByCategory[m.Category]++
	}
	return s
}

func (s syncSummary) write(w io.Writer, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}

	fmt.Fprintf(w, "%d messages (%d replied, %d linked to events)\n", s.Total, s.Replied, s.Associated)
	names := make([]string, 0, len(s.ByCategory))
	for name := range s.ByCategory {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-12s %d\n", name, s.ByCategory[name])
	}
	return nil
}

// loadApp builds an uninstrumented app for one-shot commands.
func loadApp(ctx context.Context) (*app, error) {
	logger, err := newLogger()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return newApp(ctx, cfg, logger, nil, nil)
}

func newSyncCmd() *cobra.Command {
	var (
		force  bool
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync the inbox into the local cache once",
		Long: `Fetch the inbox, classify new messages, check for replies and link
booking requests to calendar events. A sync within the same minute as the
previous one is served from the cache unless --force is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			summary, err := a.sync(cmd.Context(), force)
			if err != nil {
				return fmt.Errorf("sync failed: %w", err)
			}
			return summary.write(cmd.OutOrStdout(), asJSON)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Ignore the freshness window and fetch from Gmail")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the summary as JSON")

	return cmd
}
