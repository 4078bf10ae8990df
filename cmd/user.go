package cmd

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/marcus/shoplist/internal/models"
	"github.com/marcus/shoplist/internal/output"
)

var userCmd = &cobra.Command{
	Use:     "user",
	Short:   "Manage users and their household memberships",
	GroupID: "core",
	Aliases: []string{"users"},
}

var userAddCmd = &cobra.Command{
	Use:   "add <email>",
	Short: "Create a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")

		store, err := openStore()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer store.Close()

		u := models.User{Email: args[0], HouseholdIDs: []string{}}
		if name != "" {
			u.Name = &name
		}

		u, err = store.PutUser(u)
		if err != nil {
			output.Error("add user: %v", err)
			return err
		}

		output.Success("Created user %s (%s)", u.Email, u.ID)
		return nil
	},
}

var userListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List users",
	Aliases: []string{"ls"},
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		store, err := openStore()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer store.Close()

		users, err := store.ListUsers()
		if err != nil {
			output.Error("list users: %v", err)
			return err
		}

		if asJSON {
			return output.JSON(users)
		}
		if len(users) == 0 {
			output.Info("No users yet.")
			return nil
		}
		for _, u := range users {
			fmt.Println(output.FormatUser(u))
		}
		return nil
	},
}

var userJoinCmd = &cobra.Command{
	Use:   "join <user-id> <household-id>",
	Short: "Add a user to a household",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return updateMembership(args[0], args[1], true)
	},
}

var userLeaveCmd = &cobra.Command{
	Use:   "leave <user-id> <household-id>",
	Short: "Remove a user from a household",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return updateMembership(args[0], args[1], false)
	},
}

// updateMembership rewrites the user's complete membership set. The
// next push sends the whole set; the server replaces its stored
// memberships with it.
func updateMembership(userID, householdID string, join bool) error {
	store, err := openStore()
	if err != nil {
		output.Error("%v", err)
		return err
	}
	defer store.Close()

	u, err := store.GetUser(userID)
	if err != nil {
		output.Error("get user: %v", err)
		return err
	}
	if u == nil {
		output.Error("user not found: %s", userID)
		return fmt.Errorf("user not found: %s", userID)
	}

	has := slices.Contains(u.HouseholdIDs, householdID)
	if join {
		if has {
			output.Info("%s is already in household %s", u.Email, householdID)
			return nil
		}
		if h, err := store.GetHousehold(householdID); err != nil {
			output.Error("get household: %v", err)
			return err
		} else if h == nil {
			output.Warning("household %s not found locally; joining anyway", householdID)
		}
		u.HouseholdIDs = append(u.HouseholdIDs, householdID)
	} else {
		if !has {
			output.Info("%s is not in household %s", u.Email, householdID)
			return nil
		}
		u.HouseholdIDs = slices.DeleteFunc(u.HouseholdIDs, func(id string) bool {
			return id == householdID
		})
	}

	if _, err := store.PutUser(*u); err != nil {
		output.Error("update user: %v", err)
		return err
	}

	if join {
		output.Success("%s joined household %s", u.Email, householdID)
	} else {
		output.Success("%s left household %s", u.Email, householdID)
	}
	return nil
}

func init() {
	userAddCmd.Flags().String("name", "", "display name")
	userListCmd.Flags().Bool("json", false, "output as JSON")

	userCmd.AddCommand(userAddCmd, userListCmd, userJoinCmd, userLeaveCmd)
	rootCmd.AddCommand(userCmd)
}
