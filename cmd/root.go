package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/marcus/shoplist/internal/localstore"
	"github.com/marcus/shoplist/internal/syncclient"
	"github.com/marcus/shoplist/internal/syncconfig"
)

var (
	version string
	baseDir string
)

// SetVersion sets the version string
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

var rootCmd = &cobra.Command{
	Use:   "shoplist",
	Short: "Local-first shared shopping list CLI",
	Long: `shoplist - A local-first shopping list that syncs with a shared server.

All commands work offline against a local store; changes are pushed and
pulled per collection with 'shoplist sync' or continuously with
'shoplist watch'.`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initBaseDir)

	// Flags are matched case-insensitively.
	rootCmd.SetGlobalNormalizationFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ToLower(name))
	})

	rootCmd.AddGroup(
		&cobra.Group{ID: "core", Title: "Core Commands:"},
		&cobra.Group{ID: "system", Title: "System Commands:"},
	)
	rootCmd.SetHelpCommandGroupID("system")
	rootCmd.SetCompletionCommandGroupID("system")
}

func initBaseDir() {
	var err error
	baseDir, err = os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot determine working directory: %v\n", err)
		os.Exit(1)
	}
}

// getBaseDir returns the base directory for the local store
func getBaseDir() string {
	return baseDir
}

// openStore opens the local store for commands that require an
// initialized workspace.
func openStore() (*localstore.Store, error) {
	return localstore.Open(getBaseDir())
}

// newSyncClient builds a client against the configured server.
func newSyncClient() (*syncclient.Client, error) {
	deviceID, err := syncconfig.GetDeviceID()
	if err != nil {
		return nil, fmt.Errorf("get device id: %w", err)
	}
	return syncclient.New(syncconfig.GetServerURL(), deviceID), nil
}
