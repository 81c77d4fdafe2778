// Package cmd implements the ailabber CLI's cobra command tree. It is a
// thin client: every subcommand except whoami calls the Local Proxy over
// loopback HTTP and prints the response, never touching the Task Store or
// Slurm CLI directly; whoami only prints the local ownership tag.
package cmd

import (
	"fmt"
	"os"
	"os/user"
	"time"

	"github.com/spf13/cobra"
)

var (
	proxyAddr string
	username  string
)

var rootCmd = &cobra.Command{
	Use:   "ailabber",
	Short: "ailabber - submit and track Slurm tasks through the ailabber broker",
	Long: `ailabber is the command-line client for the ailabber two-tier task
broker. It talks to a locally-running Local Proxy daemon over loopback HTTP;
the daemon in turn drives Slurm directly for local tasks and forwards
remote-target tasks to a Remote Server over an SSH tunnel.`,
	Version: "0.1.0",
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&proxyAddr, "addr", "http://127.0.0.1:8080",
		"Local Proxy base URL")
	rootCmd.PersistentFlags().StringVarP(&username, "username", "u", defaultUsername(),
		"ownership tag attached to every request")

	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(localRunCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(whoamiCmd)
}

// defaultUsername falls back to the OS user if --username is not given;
// the broker trusts this as an ownership tag, not an authentication
// credential.
func defaultUsername() string {
	u, err := user.Current()
	if err != nil {
		return ""
	}
	return u.Username
}

func newClient() *Client {
	return NewClient(proxyAddr, 30*time.Second)
}

func exitWithError(msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	os.Exit(1)
}
