package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/memzapp/memz/internal/app"
	"github.com/memzapp/memz/internal/plugins/auth"
)

func (c *cli) newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage sign-in accounts",
	}
	cmd.AddCommand(c.newUserAddCmd(), c.newUserRemoveCmd(), c.newUserListCmd())
	return cmd
}

// withAuth opens the stores and runs fn with an auth service over them.
func (c *cli) withAuth(fn func(svc auth.AuthService) error) error {
	stores, err := app.OpenStores(c.cfg, true, false)
	if err != nil {
		return err
	}
	defer stores.Close()

	allow, err := auth.NewAllowList(c.cfg.Auth.AllowedEmails, c.cfg.Auth.AllowlistFile)
	if err != nil {
		return err
	}
	return fn(auth.NewAuthService(stores.Users, auth.NewMemorySessionStore(), allow, c.cfg.Auth.SessionTTL))
}

func (c *cli) newUserAddCmd() *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "add EMAIL",
		Short: "Create a user or reset their password",
		Long: `Create a user or reset an existing user's password. The password is
read from --password or, when that is not given, from the first line of
stdin. The email must also be on the allow-list to sign in.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				p, err := readPassword(cmd.InOrStdin())
				if err != nil {
					return err
				}
				password = p
			}

			return c.withAuth(func(svc auth.AuthService) error {
				user, err := svc.AddUser(cmd.Context(), args[0], password)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", okColor.Sprint("saved"), user.Email)
				if !svc.Allowed(user.Email) {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s %s is not on the allow-list and cannot sign in yet\n", warnColor.Sprint("warning:"), user.Email)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "password to set (read from stdin if omitted)")
	return cmd
}

func (c *cli) newUserRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "remove EMAIL",
		Aliases: []string{"rm"},
		Short:   "Delete a user",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withAuth(func(svc auth.AuthService) error {
				if err := svc.RemoveUser(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", okColor.Sprint("removed"), auth.NormalizeEmail(args[0]))
				return nil
			})
		},
	}
}

func (c *cli) newUserListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List users and whether each may sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withAuth(func(svc auth.AuthService) error {
				users, err := svc.ListUsers(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, u := range users {
					status := okColor.Sprint("allowed")
					if !svc.Allowed(u.Email) {
						status = warnColor.Sprint("not on allow-list")
					}
					lastLogin := "never"
					if u.LastLoginAt != nil {
						lastLogin = u.LastLoginAt.Format("2006-01-02 15:04")
					}
					fmt.Fprintf(out, "%s\t%s\t%s\n", u.Email, status, dimColor.Sprint("last sign-in: "+lastLogin))
				}
				return nil
			})
		},
	}
}

// readPassword reads one line from r.
func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("no password given: pass --password or pipe it on stdin")
	}
	return line, nil
}
