package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"subtitle-assistant/internal/models"
)

func newModelCommand(ctx *commandContext) *cobra.Command {
	modelCmd := &cobra.Command{
		Use:   "model",
		Short: "Inspect and download recognition models",
	}

	modelCmd.AddCommand(newModelResolveCommand(ctx))
	modelCmd.AddCommand(newModelListCommand(ctx))
	modelCmd.AddCommand(newModelDownloadCommand(ctx))

	return modelCmd
}

func newModelResolveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve [size]",
		Short: "Print the local snapshot path for a size, or the size itself when none exists",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			size := ctx.settings.ModelSize
			if len(args) == 1 {
				size = strings.TrimSpace(args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), models.Resolve(ctx.settings.ModelsDir, ctx.settings.ModelOrg, size))
			return nil
		},
	}
}

func newModelListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List model sizes and whether they are available locally",
		RunE: func(cmd *cobra.Command, args []string) error {
			options := models.List(ctx.settings.ModelsDir, ctx.settings.ModelOrg)
			rows := make([][]string, 0, len(options))
			for _, option := range options {
				size := option.Size
				if size == ctx.settings.ModelSize {
					size += " *"
				}
				rows = append(rows, []string{
					size,
					option.Repo,
					option.SizeLabel,
					yesNo(option.Downloaded),
					option.LocalPath,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Size", "Repository", "Download", "Local", "Path"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
			))
			fmt.Fprintf(cmd.OutOrStdout(), "Models directory: %s\n", ctx.settings.ModelsDir)
			return nil
		},
	}
}

func newModelDownloadCommand(ctx *commandContext) *cobra.Command {
	var keepSelection bool

	cmd := &cobra.Command{
		Use:   "download <size>",
		Short: "Download a model snapshot into the models directory and select it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			size := strings.TrimSpace(args[0])
			if !models.IsKnownSize(size) {
				return fmt.Errorf("unknown model size: %s", size)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Downloading %s into %s...\n", models.RepoForSize(ctx.settings.ModelOrg, size).ID(), ctx.settings.ModelsDir)
			path, err := models.NewHub().Download(cmd.Context(), ctx.settings.ModelsDir, ctx.settings.ModelOrg, size)
			if err != nil {
				return fmt.Errorf("download model %s: %w", size, err)
			}
			fmt.Fprintf(out, "Model ready: %s\n", path)

			if keepSelection {
				return nil
			}
			stored := ctx.stored
			stored.ModelSize = size
			stored.ModelPath = ""
			return ctx.saveStored(stored)
		},
	}

	cmd.Flags().BoolVar(&keepSelection, "keep-selection", false, "Do not make the downloaded size the configured model")
	return cmd
}
