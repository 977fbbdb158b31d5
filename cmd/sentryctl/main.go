package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var nodeURL string

var rootCmd = &cobra.Command{
	Use:   "sentryctl",
	Short: "IoTSentry node CLI",
	Long:  "A command-line tool for inspecting and managing IoTSentry ledger nodes.",
}

func main() {
	rootCmd.PersistentFlags().StringVar(&nodeURL, "node", "http://localhost:8080", "Node API base URL")
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
