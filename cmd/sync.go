package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/marcus/shoplist/internal/models"
	"github.com/marcus/shoplist/internal/output"
	"github.com/marcus/shoplist/internal/replication"
	"github.com/marcus/shoplist/internal/syncclient"
	"github.com/marcus/shoplist/internal/syncconfig"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	Short:   "Sync local data with the remote server",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		pushOnly, _ := cmd.Flags().GetBool("push")
		pullOnly, _ := cmd.Flags().GetBool("pull")
		statusOnly, _ := cmd.Flags().GetBool("status")

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

		engine := replication.NewEngine(store, client, syncconfig.GetSyncInterval(), nil)

		if statusOnly {
			return runSyncStatus(engine, client)
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
		defer cancel()

		for _, collection := range models.Collections {
			r := engine.Replicator(collection)

			if !pullOnly {
				if err := r.Push(ctx); err != nil {
					output.Error("push %s: %v", collection, err)
					return err
				}
			}
			if !pushOnly {
				if err := r.Pull(ctx); err != nil {
					output.Error("pull %s: %v", collection, err)
					return err
				}
			}
		}

		output.Success("Sync complete")
		return nil
	},
}

func runSyncStatus(engine *replication.Engine, client *syncclient.Client) error {
	statuses, err := engine.Status()
	if err != nil {
		output.Error("sync status: %v", err)
		return err
	}

	output.Title("Local:")
	for _, st := range statuses {
		checkpoint := "(none)"
		if st.Checkpoint != nil {
			checkpoint = st.Checkpoint.Format(time.RFC3339)
		}
		fmt.Printf("  %-12s checkpoint=%s  %s  last sync %s\n",
			st.Collection, checkpoint, output.FormatPending(st.Pending), output.FormatSyncTime(st.LastSyncAt))
		if st.LastError != "" {
			output.Warning("  %s: last error: %s", st.Collection, st.LastError)
		}
	}

	if _, err := client.HealthCheck(); err != nil {
		output.Warning("server unreachable: %v", err)
		return nil
	}

	fmt.Println()
	output.Title("Server:")
	for _, collection := range models.Collections {
		st, err := client.Status(collection)
		if err != nil {
			output.Error("server status %s: %v", collection, err)
			return err
		}
		fmt.Printf("  %-12s %d documents, last update %s\n",
			collection, st.DocumentCount, output.FormatSyncTime(st.LastUpdatedAt))
	}
	return nil
}

func init() {
	syncCmd.Flags().Bool("push", false, "push local changes only")
	syncCmd.Flags().Bool("pull", false, "pull remote changes only")
	syncCmd.Flags().Bool("status", false, "show sync status without syncing")

	rootCmd.AddCommand(syncCmd)
}
