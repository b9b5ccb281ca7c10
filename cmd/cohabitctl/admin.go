package main

import (
	"fmt"
	"net/mail"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dukerupert/cohabit/internal/store"
)

func adminCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Grant or revoke access to the admin API",
	}
	cmd.AddCommand(adminSetCmd(a, "grant", true), adminSetCmd(a, "revoke", false))
	return cmd
}

func adminSetCmd(a *app, use string, admin bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [email]",
		Short: strings.ToUpper(use[:1]) + use[1:] + " admin access for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := mail.ParseAddress(args[0])
			if err != nil {
				return fmt.Errorf("invalid email %q", args[0])
			}
			email := strings.ToLower(addr.Address)

			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			users := store.NewUserStore(db)
			u, err := users.GetByEmail(email)
			if err != nil {
				return err
			}
			if u == nil {
				return fmt.Errorf("no user with email %s; they must sign in once first", email)
			}
			if err := users.SetAdmin(u.ID, admin); err != nil {
				return err
			}
			a.logger.Info("admin access updated", "user_id", u.ID, "email", email, "admin", admin)
			return nil
		},
	}
}
