package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/dukerupert/cohabit/internal/document"
	"github.com/dukerupert/cohabit/internal/server"
	"github.com/dukerupert/cohabit/internal/store"
)

func renderCmd(a *app) *cobra.Command {
	var out string
	var preview bool
	cmd := &cobra.Command{
		Use:   "render [contract-id]",
		Short: "Render a contract to PDF with the active template",
		Long: `Runs the same pipeline as the web service for any contract,
regardless of owner or payment status. Useful for checking a new
template against real data before activating it for customers.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid contract id %q", args[0])
			}
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			contracts := store.NewContractStore(db)
			c, err := contracts.GetByID(id)
			if err != nil {
				return err
			}
			if c == nil {
				return fmt.Errorf("contract %d not found", id)
			}
			owner, err := store.NewUserStore(db).GetByID(c.UserID)
			if err != nil {
				return err
			}
			if owner == nil {
				return fmt.Errorf("owner of contract %d not found", id)
			}

			gen := document.NewGenerator(
				contracts, store.NewTemplateStore(db), store.NewLawyerStore(db),
				server.NewConverter(a.cfg.Gotenberg, a.logger.With("component", "converter")),
				document.NewMemoryProgress(a.cfg.Document.ProgressTTL),
				a.logger.With("component", "document"),
				server.GeneratorOptions(a.cfg.Document)...,
			)
			mode := document.ModeFull
			if preview {
				mode = document.ModePreview
			}
			res, err := gen.Generate(context.Background(), document.Request{
				ContractID: c.ID,
				User:       owner,
				TeamID:     c.TeamID,
				Mode:       mode,
			})
			if err != nil {
				return err
			}
			if out == "" {
				out = res.Filename
			}
			if err := os.WriteFile(out, res.PDF, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", out, len(res.PDF))
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output path (defaults to the generated file name)")
	cmd.Flags().BoolVar(&preview, "preview", false, "Render the watermarked preview instead of the full agreement")
	return cmd
}
