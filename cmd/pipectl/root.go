package main

import (
	"github.com/danmuck/pipectl/internal/config"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	jsonLogs   bool
}

func newRootCmd(version string) *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "pipectl",
		Short:         "pipectl: host-local named-pipe engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.Version = version
	cmd.SetVersionTemplate("pipectl {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file path (defaults built in)")
	cmd.PersistentFlags().BoolVar(&opts.jsonLogs, "json", false, "emit JSON log lines")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newDemoCmd(opts))
	cmd.AddCommand(newConfigCmd(opts))
	cmd.AddCommand(newVersionCmd(version))
	return cmd
}

// load returns the configured file over defaults, or the defaults alone.
func (o *rootOptions) load() (config.Config, error) {
	if o.configPath == "" {
		return config.DefaultConfig(), nil
	}
	return config.Load(o.configPath)
}
