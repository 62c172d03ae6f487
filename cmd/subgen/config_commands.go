package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	configCmd.AddCommand(newConfigShowCommand(ctx))
	configCmd.AddCommand(newConfigPathCommand(ctx))

	return configCmd
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	var format string
	var storedOnly bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective settings with defaults applied",
		RunE: func(cmd *cobra.Command, args []string) error {
			value := ctx.settings
			if storedOnly {
				value = ctx.stored
			}

			var (
				data []byte
				err  error
			)
			switch strings.ToLower(strings.TrimSpace(format)) {
			case "", "json":
				data, err = json.MarshalIndent(value, "", "  ")
				data = append(data, '\n')
			case "toml":
				data, err = toml.Marshal(value)
			case "yaml", "yml":
				data, err = yaml.Marshal(value)
			default:
				return fmt.Errorf("unsupported format %q (want json, toml or yaml)", format)
			}
			if err != nil {
				return fmt.Errorf("encode settings: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "json", "Output format: json, toml or yaml")
	cmd.Flags().BoolVar(&storedOnly, "stored", false, "Print only what the settings file contains")
	return cmd
}

func newConfigPathCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the settings file location",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), ctx.store.Path())
			return nil
		},
	}
}
