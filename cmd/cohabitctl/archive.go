package main

import (
	"context"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dukerupert/cohabit/internal/server"
	"github.com/dukerupert/cohabit/internal/store"
)

func archiveCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Read encrypted agreement archives",
	}
	cmd.AddCommand(archiveListCmd(a), archiveGetCmd(a))
	return cmd
}

func archiveListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list [contract-id]",
		Short: "Show archive keys recorded for a contract's deliveries",
		Args:  cobra.ExactArgs(1),
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

			deliveries, err := store.NewDeliveryStore(db).ListForContract(id, 100)
			if err != nil {
				return err
			}
			for _, d := range deliveries {
				if d.ArchiveKey == "" {
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", d.CreatedAt.Format("2006-01-02 15:04"), d.Status, d.ArchiveKey)
			}
			return nil
		},
	}
}

func archiveGetCmd(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "get [key]",
		Short: "Download and decrypt an archived agreement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			archiver := server.NewArchiver(a.cfg.Archive, a.logger.With("component", "archive"))
			pdf, err := archiver.Get(context.Background(), args[0])
			if err != nil {
				return err
			}
			if out == "" {
				out = strings.TrimSuffix(path.Base(args[0]), ".enc")
			}
			if err := os.WriteFile(out, pdf, 0o600); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", out, len(pdf))
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output path (defaults to the key's file name)")
	return cmd
}
