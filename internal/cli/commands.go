package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/freeeve/chessgraph/annotator/internal/store"
)

func (o *RootOptions) printer(cmd *cobra.Command) printer {
	return printer{format: o.Format, w: cmd.OutOrStdout()}
}

func newImportCommand(opts *RootOptions) *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "import <file.pgn[.zst]>...",
		Short: "Import PGN games as unanalyzed games",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if owner == "" {
				owner = opts.User
			}
			a, err := opts.open(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			w, err := a.Ingest(owner)
			if err != nil {
				return err
			}
			var all []string
			for _, path := range args {
				ids, err := w.ImportFile(cmd.Context(), path)
				all = append(all, ids...)
				if err != nil {
					return fmt.Errorf("import %s: %w", path, err)
				}
			}
			return opts.printer(cmd).ids("imported", all)
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner of imported games (default --user, then ingest.owner)")
	return cmd
}

func newAnnotateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "annotate <game-id>",
		Short: "Annotate one game, or print its annotations if already done",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.requireUser(); err != nil {
				return err
			}
			a, err := opts.open(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			set, err := a.Service.AnnotateGame(cmd.Context(), args[0], opts.User)
			if err != nil {
				return err
			}
			return opts.printer(cmd).annotationSet(set)
		},
	}
}

func newBatchCommand(opts *RootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Annotate a batch of unanalyzed games",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.requireUser(); err != nil {
				return err
			}
			a, err := opts.open(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Service.ProcessUnannotated(cmd.Context(), limit, opts.User)
			if err != nil {
				return err
			}
			return opts.printer(cmd).batch(res)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum games to process")
	return cmd
}

func newAnnotationsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "annotations <game-id>",
		Short: "Print the stored annotations of a game",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.requireUser(); err != nil {
				return err
			}
			a, err := opts.open(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			set, err := a.Service.GetAnnotations(cmd.Context(), args[0], opts.User)
			if err != nil {
				return err
			}
			return opts.printer(cmd).annotationSet(set)
		},
	}
}

func newExportCommand(opts *RootOptions) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export all annotations as CSV",
		Long: `Export the annotations of every analyzed game, one row per move.
A path ending in .zst is zstd-compressed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			var rows int
			if out == "" || out == "-" {
				rows, err = store.ExportCSV(ctx, a.Store, cmd.OutOrStdout())
			} else {
				rows, err = store.ExportFile(ctx, a.Store, out)
			}
			if err != nil {
				return err
			}
			a.Log.Info().Int("rows", rows).Str("out", out).Msg("export complete")
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "-", "output file (.csv or .csv.zst), - for stdout")
	return cmd
}
