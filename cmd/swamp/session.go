package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/data-douser/swamp-go/internal/errdefs"
	"github.com/data-douser/swamp-go/internal/session"
)

func (a *app) loginCmd() *cobra.Command {
	var (
		host          string
		username      string
		password      string
		passwordStdin bool
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and save the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := a.cfg.SessionOptions()
			opts.Logger = a.logger
			opts.Transport.Logger = a.logger
			if host != "" {
				opts.Host = host
			}
			if username != "" {
				opts.Username = username
			}
			switch {
			case passwordStdin:
				line, err := bufio.NewReader(a.stdin).ReadString('\n')
				if err != nil && line == "" {
					return &errdefs.ClientOptionError{Msg: "reading password from stdin: " + err.Error()}
				}
				opts.Password = strings.TrimRight(line, "\r\n")
			case password != "":
				opts.Password = password
			}
			if opts.Username == "" || opts.Password == "" {
				return &errdefs.ClientOptionError{Msg: "username and password are required"}
			}

			s, err := session.Login(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if err := a.store.Save(cmd.Context(), s); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Logged in as %s (%s)\n", opts.Username, s.UserID())
			return nil
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "SWAMP host URL (overrides the config)")
	cmd.Flags().StringVarP(&username, "username", "u", "", "SWAMP username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "SWAMP password")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the password from stdin")
	cmd.MarkFlagsMutuallyExclusive("password", "password-stdin")
	return cmd
}

func (a *app) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := a.handlers(cmd.Context())
			var expired *errdefs.SessionExpiredError
			var missing *errdefs.SessionRestoreError
			switch {
			case errors.As(err, &expired), errors.As(err, &missing):
				a.logger.Debug("no usable saved session", "error", err)
			case err != nil:
				return err
			default:
				if err := f.Session().Logout(cmd.Context()); err != nil {
					return err
				}
			}
			if err := a.store.Clear(cmd.Context()); err != nil {
				return &errdefs.SessionSaveError{Err: err}
			}
			fmt.Fprintln(a.stdout, "Logged out")
			return nil
		},
	}
}

func (a *app) userCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "user",
		Short: "Show the logged-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := a.handlers(cmd.Context())
			if err != nil {
				return err
			}
			u, err := f.Users().Current(cmd.Context())
			if err != nil {
				return err
			}
			t := newTable(a.stdout, "USER UUID", "USERNAME", "NAME", "EMAIL")
			t.row(u.ID(), u.Username(), u.DisplayName(), u.Email())
			return t.flush()
		},
	}
}
