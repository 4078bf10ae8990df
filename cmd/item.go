package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marcus/shoplist/internal/models"
	"github.com/marcus/shoplist/internal/output"
)

var itemCmd = &cobra.Command{
	Use:     "item",
	Short:   "Manage shopping list items",
	GroupID: "core",
	Aliases: []string{"items"},
}

var itemAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add an item to the list",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer store.Close()

		it, err := store.PutItem(models.Item{Name: strings.Join(args, " ")})
		if err != nil {
			output.Error("add item: %v", err)
			return err
		}

		output.Success("Added %s (%s)", it.Name, it.ID)
		return nil
	},
}

var itemListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List items",
	Aliases: []string{"ls"},
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		showChecked, _ := cmd.Flags().GetBool("all")

		store, err := openStore()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer store.Close()

		items, err := store.ListItems()
		if err != nil {
			output.Error("list items: %v", err)
			return err
		}

		if !showChecked {
			open := items[:0]
			for _, it := range items {
				if !it.Checked {
					open = append(open, it)
				}
			}
			items = open
		}

		if asJSON {
			return output.JSON(items)
		}
		if len(items) == 0 {
			output.Info("Nothing on the list.")
			return nil
		}
		for _, it := range items {
			fmt.Println(output.FormatItem(it))
		}
		return nil
	},
}

var itemCheckCmd = &cobra.Command{
	Use:   "check <id>",
	Short: "Mark an item as bought",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setItemChecked(args[0], true)
	},
}

var itemUncheckCmd = &cobra.Command{
	Use:   "uncheck <id>",
	Short: "Put an item back on the list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setItemChecked(args[0], false)
	},
}

func setItemChecked(id string, checked bool) error {
	store, err := openStore()
	if err != nil {
		output.Error("%v", err)
		return err
	}
	defer store.Close()

	it, err := store.GetItem(id)
	if err != nil {
		output.Error("get item: %v", err)
		return err
	}
	if it == nil {
		output.Error("item not found: %s", id)
		return fmt.Errorf("item not found: %s", id)
	}

	it.Checked = checked
	if _, err := store.PutItem(*it); err != nil {
		output.Error("update item: %v", err)
		return err
	}

	if checked {
		output.Success("Checked off %s", it.Name)
	} else {
		output.Success("Unchecked %s", it.Name)
	}
	return nil
}

func init() {
	itemListCmd.Flags().Bool("json", false, "output as JSON")
	itemListCmd.Flags().BoolP("all", "a", false, "include checked items")

	itemCmd.AddCommand(itemAddCmd, itemListCmd, itemCheckCmd, itemUncheckCmd)
	rootCmd.AddCommand(itemCmd)
}
