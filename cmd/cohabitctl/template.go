package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dukerupert/cohabit/internal/docx"
	"github.com/dukerupert/cohabit/internal/store"
)

func templateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Manage agreement templates",
	}
	cmd.AddCommand(templateListCmd(a), templateUploadCmd(a), templateActivateCmd(a))
	return cmd
}

func templateListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			templates, err := store.NewTemplateStore(db).List()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tFILE\tSIZE\tACTIVE\tUPLOADED")
			for _, t := range templates {
				active := ""
				if t.IsActive {
					active = "*"
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
					t.ID, t.Name, t.Filename, humanize.Bytes(uint64(t.Size)), active, humanize.Time(t.CreatedAt))
			}
			return w.Flush()
		},
	}
}

func templateUploadCmd(a *app) *cobra.Command {
	var name string
	var activate bool
	cmd := &cobra.Command{
		Use:   "upload [file.docx]",
		Short: "Store a .docx template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if !strings.EqualFold(filepath.Ext(path), ".docx") {
				return fmt.Errorf("%s is not a .docx file", path)
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			if _, err := docx.PlainText(data); err != nil {
				return err
			}
			if name == "" {
				name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			}

			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			ts := store.NewTemplateStore(db)
			t, err := ts.Create(name, filepath.Base(path), data)
			if err != nil {
				return err
			}
			if activate {
				if err := ts.Activate(t.ID); err != nil {
					return err
				}
			}
			a.logger.Info("template stored", "id", t.ID, "name", t.Name, "bytes", t.Size, "active", activate)
			fmt.Fprintln(cmd.OutOrStdout(), t.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "Template name (defaults to the file name)")
	cmd.Flags().BoolVar(&activate, "activate", false, "Make this the active template")
	return cmd
}

func templateActivateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "activate [id]",
		Short: "Make a stored template the active one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid template id %q", args[0])
			}
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			if err := store.NewTemplateStore(db).Activate(id); err != nil {
				return err
			}
			a.logger.Info("template activated", "id", id)
			return nil
		},
	}
}
