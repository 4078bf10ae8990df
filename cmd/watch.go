package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marcus/shoplist/internal/localstore"
	"github.com/marcus/shoplist/internal/models"
	"github.com/marcus/shoplist/internal/output"
	"github.com/marcus/shoplist/internal/replication"
	"github.com/marcus/shoplist/internal/syncconfig"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Short:   "Sync continuously and print changes as they arrive",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer store.Close()

		client, err := newSyncClient()
		if err != nil {
			output.Error("%v", err)
			return err
		}

		interval := syncconfig.GetSyncInterval()
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
		engine := replication.NewEngine(store, client, interval, logger)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// Print documents as remote changes land.
		changes, cancel := store.Subscribe(func(ch localstore.Change) bool {
			return ch.Remote
		})
		defer cancel()

		go func() {
			for ch := range changes {
				printChange(ch)
			}
		}()

		output.Info("Watching (sync every %s, Ctrl-C to stop)...", interval)
		engine.Run(ctx)
		output.Info("Stopped.")
		return nil
	},
}

func printChange(ch localstore.Change) {
	switch doc := ch.Doc.(type) {
	case models.Item:
		fmt.Println(output.FormatItem(doc))
	case models.Household:
		fmt.Println(output.FormatHousehold(doc))
	case models.User:
		fmt.Println(output.FormatUser(doc))
	}
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
