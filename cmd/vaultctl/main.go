// vaultctl drives a vaultd server from the command line: accounts, escrow
// agreements, milestone verification and payouts, balances and protocol
// stats. The server URL and session token persist between invocations in
// the user config dir.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "vaultctl",
		Short:         "vaultctl - client for the milestone escrow vault",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("server", "", "vaultd base URL (overrides the saved context)")

	rootCmd.AddCommand(registerCmd())
	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(createCmd())
	rootCmd.AddCommand(depositCmd())
	rootCmd.AddCommand(verifyCmd())
	rootCmd.AddCommand(releaseCmd())
	rootCmd.AddCommand(refundCmd())
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(balanceCmd())
	rootCmd.AddCommand(faucetCmd())
	rootCmd.AddCommand(setFeeRecipientCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show protocol-wide vault stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := resolveContext(cmd)
			if err != nil {
				return err
			}
			var stats statsView
			if err := newClient(cliCtx).do(context.Background(), "GET", "/api/stats", nil, &stats); err != nil {
				return err
			}
			printStats(stats)
			return nil
		},
	}
}

func setFeeRecipientCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-fee-recipient [address]",
		Short: "Rotate the protocol fee recipient (operator only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := resolveContext(cmd)
			if err != nil {
				return err
			}
			var resp feeRecipientView
			err = newClient(cliCtx).do(context.Background(), "PUT", "/api/admin/fee-recipient", map[string]string{
				"address": args[0],
			}, &resp)
			if err != nil {
				return err
			}
			fmt.Printf("Protocol fees now accrue to %s\n", resp.FeeRecipient)
			return nil
		},
	}
}
