package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionListCmd, sessionRevokeCmd)
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage device sessions",
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List this account's device sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}

		sessions, err := c.Sessions(cmd.Context())
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			fmt.Println("No sessions found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tDEVICE\tLAST ACTIVITY\tACTIVE\tCURRENT")
		for _, s := range sessions {
			current := ""
			if s.IsCurrent {
				current = "*"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n",
				s.SessionID,
				s.DeviceName,
				s.LastActivity.Format("2006-01-02 15:04:05"),
				s.IsActive,
				current,
			)
		}
		return w.Flush()
	},
}

var sessionRevokeCmd = &cobra.Command{
	Use:   "revoke <session-id>",
	Short: "Revoke a session, logging that device out",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		if err := c.RevokeSession(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Session %s revoked.\n", args[0])
		return nil
	},
}
