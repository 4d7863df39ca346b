package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage drive authorization",
	}

	cmd.AddCommand(newAuthLoginCmd())

	return cmd
}

func newAuthLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login <drive>",
		Short: "Authorize an OAuth2 drive in the browser",
		Long: `Run the browser authorization flow again for an existing drive, e.g.
after its refresh token was revoked. The drive's client id and secret are
reused.`,
		Args: cobra.ExactArgs(1),
		RunE: runAuthLogin,
	}
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	cc, sess, err := commandSession(cmd)
	if err != nil {
		return err
	}

	d, err := sess.Registry.Get(args[0])
	if err != nil {
		return err
	}

	if err := authorizeDrive(cmd.Context(), cc, sess, d.Name, d.Provider); err != nil {
		return err
	}

	cc.Statusf("Authorized drive %s.\n", d.Name)

	return nil
}
