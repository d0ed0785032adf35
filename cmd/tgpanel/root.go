package main

import (
	"os"

	"github.com/spf13/cobra"
)

// defaultConfigPath is used when neither --config nor TGPANEL_CONFIG is set.
const defaultConfigPath = "configs/config.yaml"

// configEnv names the environment variable consulted when --config is absent.
const configEnv = "TGPANEL_CONFIG"

type rootOptions struct {
	configPath string
}

// resolveConfigPath applies the flag, then TGPANEL_CONFIG, then the default.
func (o *rootOptions) resolveConfigPath() string {
	if o.configPath != "" {
		return o.configPath
	}
	if path := os.Getenv(configEnv); path != "" {
		return path
	}
	return defaultConfigPath
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "tgpanel",
		Short: "Telegram Mini App device control panel",
		Long: `tgpanel serves the Mini App and its HTTP API, and relays device
commands over MQTT, waiting for the device's answer where there is one.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "",
		"path to the YAML config (default $"+configEnv+" or "+defaultConfigPath+")")

	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newMigrateCmd(opts))
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("tgpanel %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}
