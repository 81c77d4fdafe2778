package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Print the ownership tag ailabber will attach to requests",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(username)
	},
}
