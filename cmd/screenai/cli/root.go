package cli

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vijayvir/ScreenAiClient-sub000/internal/client"
	"github.com/vijayvir/ScreenAiClient-sub000/internal/config"
)

var (
	app     *client.App
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "screenai",
	Short: "Share and watch live screen streams through a relay server",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		}
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		app = client.New(cfg)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if app != nil {
			app.Close()
		}
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}
