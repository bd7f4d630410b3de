package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/shopease/shop-ease-backend/internal/service"
)

type opener func() (*service.SessionManager, func(), error)

func newRootCmd(open opener) *cobra.Command {
	root := &cobra.Command{
		Use:          "sessionctl",
		Short:        "Inspect and revoke refresh token sessions",
		SilenceUsage: true,
	}
	root.AddCommand(newListCmd(open), newRevokeAllCmd(open), newRevokeCmd(open))
	return root
}

func parseUserID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid user id %q", arg)
	}
	return id, nil
}

func newListCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "list <userID>",
		Short: "List the active sessions of a user, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			m, done, err := open()
			if err != nil {
				return err
			}
			defer done()

			sessions, err := m.Sessions(cmd.Context(), userID)
			if err != nil {
				return err
			}
			if len(sessions) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "user %d has no sessions\n", userID)
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "DIGEST\tISSUED AT")
			for _, s := range sessions {
				fmt.Fprintf(w, "%s\t%s\n", s.Digest, s.IssuedAt.UTC().Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
}

func newRevokeAllCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke-all <userID>",
		Short: "Revoke every session of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			m, done, err := open()
			if err != nil {
				return err
			}
			defer done()

			rep := m.RevokeAllForUser(cmd.Context(), userID)
			fmt.Fprintf(cmd.OutOrStdout(), "found=%d revoked=%d failed=%d\n", rep.Found, rep.Revoked, rep.Failed)
			if rep.Err != nil {
				return fmt.Errorf("revocation incomplete: %w", rep.Err)
			}
			return nil
		},
	}
}

func newRevokeCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <refreshToken>",
		Short: "Revoke a single refresh token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, done, err := open()
			if err != nil {
				return err
			}
			defer done()

			if err := m.Logout(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "revoked")
			return nil
		},
	}
}
