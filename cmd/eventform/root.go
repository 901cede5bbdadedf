package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"

	"github.com/matthewbaird/eventform/internal/config"
	"github.com/matthewbaird/eventform/internal/loader"
	"github.com/matthewbaird/eventform/internal/server"
)

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "eventform",
		Short:         "Reactive registration form engine",
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (.cue, .yaml, .json)")

	load := func(cmd *cobra.Command) (*app, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		return newApp(cfg, cmd.ErrOrStderr())
	}

	root.AddCommand(
		newServeCmd(load),
		newFetchCmd(load),
		newOptionsCmd(load),
		newConfigCmd(&configPath),
	)
	return root
}

type appLoader func(cmd *cobra.Command) (*app, error)

func newServeCmd(load appLoader) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the form API and WebSocket stream",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := load(cmd)
			if err != nil {
				return err
			}
			if port != 0 {
				a.cfg.Server.Port = port
			}
			return server.Run(cmd.Context(), server.Config{
				Port:     a.cfg.Server.Port,
				Sessions: a.sessions,
				Journal:  a.journal,
				Catalog:  a.catalog,
				Loader:   a.loader,
				Metrics:  a.metrics,
				Logger:   a.logger,
			})
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides config)")
	return cmd
}

func newFetchCmd(load appLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch <resource>",
		Short: "Load a dataset through the source cascade and print it",
		Long: `Fetch walks the configured URL, then the fallbacks, and prints the
first valid JSON document. Resources: locations, programs, periods,
prefixes, institutions.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := loader.ParseResource(args[0])
			if err != nil {
				return err
			}
			a, err := load(cmd)
			if err != nil {
				return err
			}
			data, err := a.loader.Load(cmd.Context(), r)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(append(data, '\n'))
			return err
		},
	}
}

func newOptionsCmd(load appLoader) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "options <resource> [parent...]",
		Short: "Print the options a select would offer",
		Example: `  eventform options locations COL 05
  eventform options programs PREG Ingeniería
  eventform options periods PREG`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := loader.ParseResource(args[0])
			if err != nil {
				return err
			}
			a, err := load(cmd)
			if err != nil {
				return err
			}
			opts, err := a.catalog.Options(cmd.Context(), r, args[1:]...)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(opts)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			for _, o := range opts {
				fmt.Fprintf(tw, "%s\t%s\n", o.Value, o.Label)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func newConfigCmd(configPath *string) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			return printConfig(cmd.OutOrStdout(), cfg, format)
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", "yaml", "output format: yaml or json")
	return cmd
}

func printConfig(w io.Writer, cfg config.Config, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	case "yaml":
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
