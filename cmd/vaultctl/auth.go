package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func registerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and its vault address",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := resolveContext(cmd)
			if err != nil {
				return err
			}
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")
			name, _ := cmd.Flags().GetString("name")
			role, _ := cmd.Flags().GetString("role")

			var user userView
			err = newClient(cliCtx).do(context.Background(), "POST", "/api/auth/register", map[string]string{
				"email":     email,
				"password":  password,
				"full_name": name,
				"role":      role,
			}, &user)
			if err != nil {
				return err
			}

			fmt.Printf("Registered %s (%s)\n", user.Email, user.Role)
			fmt.Printf("Vault address: %s\n", user.VaultAddress)
			fmt.Println("Run `vaultctl login` to start a session.")
			return nil
		},
	}
	cmd.Flags().String("email", "", "account email")
	cmd.Flags().String("password", "", "account password")
	cmd.Flags().String("name", "", "display name")
	cmd.Flags().String("role", "", "account role (member or operator)")
	cmd.MarkFlagRequired("email")
	cmd.MarkFlagRequired("password")
	cmd.MarkFlagRequired("name")
	return cmd
}

func loginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate and save the session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := resolveContext(cmd)
			if err != nil {
				return err
			}
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")

			var result loginView
			err = newClient(cliCtx).do(context.Background(), "POST", "/api/auth/login", map[string]string{
				"email":    email,
				"password": password,
			}, &result)
			if err != nil {
				return err
			}

			cliCtx.Token = result.Token
			if err := saveContext(cliCtx); err != nil {
				return err
			}
			fmt.Printf("Logged in as %s (%s)\n", result.User.Email, result.User.Role)
			fmt.Printf("Vault address: %s\n", result.User.VaultAddress)
			return nil
		},
	}
	cmd.Flags().String("email", "", "account email")
	cmd.Flags().String("password", "", "account password")
	cmd.MarkFlagRequired("email")
	cmd.MarkFlagRequired("password")
	return cmd
}

func balanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Show the signed-in account's ledger balance",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := resolveContext(cmd)
			if err != nil {
				return err
			}
			var balance balanceView
			if err := newClient(cliCtx).do(context.Background(), "GET", "/api/balance", nil, &balance); err != nil {
				return err
			}
			fmt.Printf("%s\n%s\n", balance.Address, renderAmount(balance.Balance))
			return nil
		},
	}
}

func faucetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "faucet",
		Short: "Credit the signed-in account from the dev faucet",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := resolveContext(cmd)
			if err != nil {
				return err
			}
			var balance balanceView
			if err := newClient(cliCtx).do(context.Background(), "POST", "/api/faucet", nil, &balance); err != nil {
				return err
			}
			fmt.Printf("Balance is now %s\n", renderAmount(balance.Balance))
			return nil
		},
	}
}
