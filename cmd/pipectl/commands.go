package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/danmuck/pipectl/internal/config"
	"github.com/danmuck/pipectl/internal/daemon"
	"github.com/danmuck/pipectl/internal/echo"
	"github.com/danmuck/pipectl/internal/observability"
	"github.com/spf13/cobra"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var sessions int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the echo endpoints and admin surface until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			log := observability.InitLogger("pipectl", cfg.LogLevel, opts.jsonLogs)
			svcCfg := daemon.DefaultServiceConfig()
			svcCfg.Config = cfg
			svcCfg.Sessions = sessions
			return daemon.NewServiceWithConfig(svcCfg, log).Run()
		},
	}
	cmd.Flags().IntVar(&sessions, "sessions", 0, "stop each echo server after this many sessions (0 = unbounded)")
	return cmd
}

func newDemoCmd(opts *rootOptions) *cobra.Command {
	var rounds int
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Start the echo endpoints and drive each with the client exerciser",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			log := observability.InitLogger("pipectl", cfg.LogLevel, opts.jsonLogs)
			results, demoErr := daemon.RunDemo(cmd.Context(), cfg, rounds, log)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PIPE\tECHO\tROUNDS\tDURATION\tRESULT")
			for _, r := range results {
				result := "ok"
				if r.Err != nil {
					result = r.Err.Error()
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", r.Pipe, r.Echo, r.Rounds, r.Duration.Round(time.Microsecond), result)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			return demoErr
		},
	}
	cmd.Flags().IntVar(&rounds, "rounds", echo.DefaultSessions, "sessions per echo endpoint")
	return cmd
}

func newConfigCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init <path>",
		Short: "Write the default config template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteTemplate(args[0], force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote config template to %s\n", args[0])
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cmd.AddCommand(initCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the resolved config (defaults plus --config file)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			body, err := config.Marshal(cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(body)
			return err
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the --config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.configPath == "" {
				return fmt.Errorf("--config is required")
			}
			if _, err := opts.load(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	})
	return cmd
}

func newVersionCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "pipectl %s\n", version)
			return nil
		},
	}
}
