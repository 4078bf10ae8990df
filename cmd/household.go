package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marcus/shoplist/internal/models"
	"github.com/marcus/shoplist/internal/output"
)

var householdCmd = &cobra.Command{
	Use:     "household",
	Short:   "Manage households",
	GroupID: "core",
	Aliases: []string{"hh"},
}

var householdAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create a household",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ownerID, _ := cmd.Flags().GetString("owner")

		store, err := openStore()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer store.Close()

		h := models.Household{Name: strings.Join(args, " ")}
		if ownerID != "" {
			h.OwnerID = &ownerID
		}

		h, err = store.PutHousehold(h)
		if err != nil {
			output.Error("add household: %v", err)
			return err
		}

		output.Success("Created household %s (%s)", h.Name, h.ID)
		return nil
	},
}

var householdListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List households",
	Aliases: []string{"ls"},
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		store, err := openStore()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer store.Close()

		households, err := store.ListHouseholds()
		if err != nil {
			output.Error("list households: %v", err)
			return err
		}

		if asJSON {
			return output.JSON(households)
		}
		if len(households) == 0 {
			output.Info("No households yet.")
			return nil
		}
		for _, h := range households {
			fmt.Println(output.FormatHousehold(h))
		}
		return nil
	},
}

func init() {
	householdAddCmd.Flags().String("owner", "", "owning user id")
	householdListCmd.Flags().Bool("json", false, "output as JSON")

	householdCmd.AddCommand(householdAddCmd, householdListCmd)
	rootCmd.AddCommand(householdCmd)
}
