package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/opsgate/opsgate/internal/config"
	"github.com/opsgate/opsgate/internal/history"
)

var (
	historyUser  string
	historyLimit int
	historyStats bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent classified intents for a user",
	Example: `  opsgate history -c settings.yaml --user alice -n 10
  opsgate history -c settings.yaml --user alice --stats`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading settings: %w", err)
		}
		if cfg.HistoryDB == "" {
			return fmt.Errorf("no history_db configured in settings")
		}

		store, err := history.OpenSQLite(cfg.HistoryDB)
		if err != nil {
			return fmt.Errorf("opening history store: %w", err)
		}
		defer func() { _ = store.Close() }()

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		if historyStats {
			stats, err := store.CategoryStats(cmd.Context(), historyUser)
			if err != nil {
				return err
			}
			return enc.Encode(stats)
		}

		recent, err := store.RecentByUser(cmd.Context(), historyUser, historyLimit)
		if err != nil {
			return err
		}
		return enc.Encode(recent)
	},
}

func init() {
	historyCmd.Flags().StringVar(&historyUser, "user", "operator", "user id")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "max records")
	historyCmd.Flags().BoolVar(&historyStats, "stats", false, "show per-category success rates")
	rootCmd.AddCommand(historyCmd)
}
