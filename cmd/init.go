package cmd

import (
	"github.com/spf13/cobra"

	"github.com/marcus/shoplist/internal/localstore"
	"github.com/marcus/shoplist/internal/output"
)

var initCmd = &cobra.Command{
	Use:     "init",
	Short:   "Initialize a local store in the current directory",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := localstore.Initialize(getBaseDir())
		if err != nil {
			output.Error("initialize store: %v", err)
			return err
		}
		defer store.Close()

		output.Success("Initialized local store in .shoplist/")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
