package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Query node status and health",
	Example: `  sentryctl status
  sentryctl status --output json`,
	Run: func(cmd *cobra.Command, args []string) {
		output, _ := cmd.Flags().GetString("output")
		var status struct {
			Status string `json:"status"`
			Uptime int64  `json:"uptime"`
			System struct {
				Chain struct {
					TotalBlocks         int  `json:"totalBlocks"`
					TotalTransactions   int  `json:"totalTransactions"`
					IsValid             bool `json:"isValid"`
					PendingTransactions int  `json:"pendingTransactions"`
				} `json:"chain"`
				Devices int `json:"devices"`
				DIDs    int `json:"dids"`
			} `json:"system"`
		}
		if err := getJSON("/status", &status); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		if output == "json" {
			data, _ := json.MarshalIndent(status, "", "  ")
			fmt.Println(string(data))
			return
		}
		fmt.Printf("Status: %s\nUptime: %ds\nBlocks: %d\nTransactions: %d (pending %d)\nChain valid: %v\nDevices: %d\nDIDs: %d\n",
			status.Status, status.Uptime,
			status.System.Chain.TotalBlocks, status.System.Chain.TotalTransactions,
			status.System.Chain.PendingTransactions, status.System.Chain.IsValid,
			status.System.Devices, status.System.DIDs)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringP("output", "o", "plain", "Output format: plain|json")
}
