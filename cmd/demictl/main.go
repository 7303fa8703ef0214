// demictl is an operator console for a Demi backend: login, session
// management and a terminal chat over the same protocol the app speaks.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/demi-app/demi/backend/pkg/client"
)

var (
	serverURL string
	dataDir   string
)

var rootCmd = &cobra.Command{
	Use:           "demictl",
	Short:         "Talk to a Demi backend from the terminal",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	home, _ := os.UserHomeDir()
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "backend base URL")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", filepath.Join(home, ".demictl"), "credential storage directory")
}

// newClient builds a client over the file-backed credential store.
func newClient() (*client.Client, error) {
	store, err := openFileStore(dataDir)
	if err != nil {
		return nil, fmt.Errorf("open credential store: %w", err)
	}
	return client.New(client.Config{BaseURL: serverURL, Store: store}), nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
