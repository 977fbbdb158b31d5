package main

import (
	"fmt"
	"net/url"
	"os"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List committed ledger transactions",
	Example: `  sentryctl history --device lock-1
  sentryctl history --did did:iotsentry:user:alice --kind access`,
	Run: func(cmd *cobra.Command, args []string) {
		device, _ := cmd.Flags().GetString("device")
		did, _ := cmd.Flags().GetString("did")
		kind, _ := cmd.Flags().GetString("kind")
		limit, _ := cmd.Flags().GetInt("limit")

		q := url.Values{}
		if device != "" {
			q.Set("device", device)
		}
		if did != "" {
			q.Set("did", did)
		}
		if kind != "" {
			q.Set("kind", kind)
		}
		q.Set("limit", fmt.Sprint(limit))

		var resp struct {
			Count        int `json:"count"`
			Transactions []struct {
				TxID      string                 `json:"txId"`
				Kind      string                 `json:"kind"`
				DID       string                 `json:"did"`
				Timestamp string                 `json:"timestamp"`
				Payload   map[string]interface{} `json:"payload"`
			} `json:"transactions"`
		}
		if err := getJSON("/api/history?"+q.Encode(), &resp); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		for _, t := range resp.Transactions {
			fmt.Printf("%s  %-17s %s  %v\n", t.TxID[:8], t.Kind, t.DID, t.Payload)
		}
		fmt.Printf("%d transaction(s)\n", resp.Count)
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().String("device", "", "Filter by device id")
	historyCmd.Flags().String("did", "", "Filter by DID")
	historyCmd.Flags().String("kind", "", "Filter by transaction kind")
	historyCmd.Flags().Int("limit", 100, "Maximum transactions to return")
}
