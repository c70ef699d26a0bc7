package switchboard

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/switchboard-dev/switchboard/pkg/config"
)

const version = "0.1.0"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "switchboard",
	Short: "Switchboard - a conversational agent backend",
	Long:  "Switchboard is a self-hosted agent backend exposing the A2A task protocol over JSON-RPC, with durable session and event storage.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if path == "" {
			path = config.DefaultConfigPath()
		}
		_, err := config.Load(path)
		return err
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.switchboard/switchboard.toml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(auditCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of Switchboard",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("switchboard v%s\n", version)
	},
}
