package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func init() {
	rootCmd.AddCommand(loginCmd, logoutCmd)

	loginCmd.Flags().String("email", "", "account email (prompted if omitted)")
	loginCmd.Flags().String("device", "", "device name shown in the session list")
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate and store credentials",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		device, _ := cmd.Flags().GetString("device")

		if email == "" {
			fmt.Print("Email: ")
			reader := bufio.NewReader(os.Stdin)
			line, err := reader.ReadString('\n')
			if err != nil {
				return fmt.Errorf("read email: %w", err)
			}
			email = strings.TrimSpace(line)
		}
		if device == "" {
			host, err := os.Hostname()
			if err != nil {
				host = "demictl"
			}
			device = "demictl@" + host
		}

		fmt.Print("Password: ")
		password, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}

		c, err := newClient()
		if err != nil {
			return err
		}
		if err := c.Login(cmd.Context(), email, string(password), device); err != nil {
			return err
		}

		fmt.Printf("Logged in as %s (device %q).\n", email, device)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Discard stored credentials",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		c.Logout()
		fmt.Println("Logged out.")
		return nil
	},
}
