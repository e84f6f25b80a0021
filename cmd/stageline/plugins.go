package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/stageline/internal/pkg/config"
	"github.com/tjfontaine/stageline/internal/plugin"
	"github.com/tjfontaine/stageline/internal/runtime"
)

func pluginsCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "Inspect plugin manifests",
	}
	cmd.AddCommand(pluginsListCmd(configPath))
	return cmd
}

func pluginsListCmd(configPath *string) *cobra.Command {
	var (
		asJSON     bool
		byPriority bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Discover plugins and print the registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			engine, err := runtime.New(
				runtime.WithConfig(cfg),
				runtime.WithLogger(newLogger("error")),
			)
			if err != nil {
				return fmt.Errorf("create engine: %w", err)
			}
			if _, err := engine.Load(cmd.Context()); err != nil {
				return fmt.Errorf("load plugins: %w", err)
			}

			plugins := engine.Registry().All()
			if byPriority {
				plugins = engine.Registry().ByPriority()
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(plugins)
			}
			return printPlugins(cmd, plugins)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	cmd.Flags().BoolVar(&byPriority, "priority", false, "sort by dispatch priority")
	return cmd
}

func printPlugins(cmd *cobra.Command, plugins []plugin.Metadata) error {
	if len(plugins) == 0 {
		fmt.Fprintln(os.Stderr, "no plugins registered")
		return nil
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tVERSION\tPRIORITY\tPATTERN\tMETHODS\tENABLED")
	for _, p := range plugins {
		version := p.Version
		if version == "" {
			version = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%t\n",
			p.Name, version, p.Priority, p.RoutePattern, strings.Join(p.Methods, ","), p.Enabled)
	}
	return w.Flush()
}
