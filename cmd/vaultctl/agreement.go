package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func createCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an escrow agreement",
		Long: `Create an escrow agreement with a milestone split.

Each --milestone takes "amount:description"; the amounts must add up
to --total. The signed-in account becomes the payer.

Example:
  vaultctl create --beneficiary $BUILDER --oracle $INSPECTOR \
    --total 1000000 \
    --milestone "600000:Design approved" \
    --milestone "400000:Construction done" \
    --title "Warehouse build-out"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := resolveContext(cmd)
			if err != nil {
				return err
			}
			beneficiary, _ := cmd.Flags().GetString("beneficiary")
			oracle, _ := cmd.Flags().GetString("oracle")
			total, _ := cmd.Flags().GetString("total")
			specs, _ := cmd.Flags().GetStringArray("milestone")
			title, _ := cmd.Flags().GetString("title")
			metadata, _ := cmd.Flags().GetString("metadata")

			milestones, err := parseMilestoneSpecs(specs)
			if err != nil {
				return err
			}

			var created struct {
				ID string `json:"id"`
			}
			err = newClient(cliCtx).do(context.Background(), "POST", "/api/agreements", map[string]any{
				"beneficiary":  beneficiary,
				"oracle":       oracle,
				"total_amount": total,
				"milestones":   milestones,
				"title":        title,
				"metadata":     metadata,
			}, &created)
			if err != nil {
				return err
			}
			fmt.Printf("Created agreement %s with %d milestones\n", created.ID, len(milestones))
			fmt.Printf("Fund it with: vaultctl deposit %s --amount %s\n", created.ID, total)
			return nil
		},
	}
	cmd.Flags().String("beneficiary", "", "beneficiary vault address")
	cmd.Flags().String("oracle", "", "oracle vault address")
	cmd.Flags().String("total", "", "total escrowed amount")
	cmd.Flags().StringArray("milestone", nil, `milestone as "amount:description" (repeatable)`)
	cmd.Flags().String("title", "", "agreement title")
	cmd.Flags().String("metadata", "", "free-form metadata")
	cmd.MarkFlagRequired("beneficiary")
	cmd.MarkFlagRequired("oracle")
	cmd.MarkFlagRequired("total")
	cmd.MarkFlagRequired("milestone")
	return cmd
}

type milestoneInput struct {
	Amount      string `json:"amount"`
	Description string `json:"description"`
}

func parseMilestoneSpecs(specs []string) ([]milestoneInput, error) {
	milestones := make([]milestoneInput, 0, len(specs))
	for _, spec := range specs {
		amount, description, _ := strings.Cut(spec, ":")
		if amount == "" {
			return nil, fmt.Errorf("milestone %q: expected amount:description", spec)
		}
		milestones = append(milestones, milestoneInput{
			Amount:      amount,
			Description: description,
		})
	}
	return milestones, nil
}

func depositCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deposit [agreement-id]",
		Short: "Fund an agreement from the signed-in account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := resolveContext(cmd)
			if err != nil {
				return err
			}
			amount, _ := cmd.Flags().GetString("amount")

			var agr agreementView
			err = newClient(cliCtx).do(context.Background(), "POST", "/api/agreements/"+args[0]+"/deposit", map[string]string{
				"amount": amount,
			}, &agr)
			if err != nil {
				return err
			}
			fmt.Printf("Agreement %s is %s; %s locked until tick %d\n",
				agr.ID, renderAgreementState(agr.State), renderAmount(agr.LockedAmount), agr.TimeoutAt)
			return nil
		},
	}
	cmd.Flags().String("amount", "", "deposit amount (must equal the agreement total)")
	cmd.MarkFlagRequired("amount")
	return cmd
}

func verifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify [agreement-id] [ordinal]",
		Short: "Attest a milestone as the agreement's oracle",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := resolveContext(cmd)
			if err != nil {
				return err
			}
			evidence, _ := cmd.Flags().GetString("evidence")

			var milestone milestoneView
			path := "/api/agreements/" + args[0] + "/milestones/" + args[1] + "/verify"
			err = newClient(cliCtx).do(context.Background(), "POST", path, map[string]string{
				"evidence": evidence,
			}, &milestone)
			if err != nil {
				return err
			}
			fmt.Printf("Milestone %d is %s\n", milestone.Ordinal, renderMilestoneState(milestone.State))
			if milestone.Evidence != "" {
				fmt.Printf("Evidence digest: %s\n", milestone.Evidence)
			}
			return nil
		},
	}
	cmd.Flags().String("evidence", "", "evidence payload or a precomputed digest")
	return cmd
}

func releaseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "release [agreement-id] [ordinal]",
		Short: "Pay out a verified milestone",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := resolveContext(cmd)
			if err != nil {
				return err
			}
			var result releaseView
			path := "/api/agreements/" + args[0] + "/milestones/" + args[1] + "/release"
			if err := newClient(cliCtx).do(context.Background(), "POST", path, struct{}{}, &result); err != nil {
				return err
			}
			fmt.Printf("Released %s to the beneficiary (%s protocol fee)\n",
				renderAmount(result.BeneficiaryAmount), renderAmount(result.Fee))
			if result.Completed {
				fmt.Println(renderAgreementState("COMPLETED"), "every milestone is paid out")
			}
			return nil
		},
	}
}

func refundCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refund [agreement-id]",
		Short: "Reclaim locked funds after the refund timeout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := resolveContext(cmd)
			if err != nil {
				return err
			}
			var result refundView
			path := "/api/agreements/" + args[0] + "/refund"
			if err := newClient(cliCtx).do(context.Background(), "POST", path, struct{}{}, &result); err != nil {
				return err
			}
			fmt.Printf("Refunded %s to the payer\n", renderAmount(result.Refunded))
			return nil
		},
	}
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [agreement-id]",
		Short: "Show an agreement and its milestones",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := resolveContext(cmd)
			if err != nil {
				return err
			}
			var agr agreementView
			if err := newClient(cliCtx).do(context.Background(), "GET", "/api/agreements/"+args[0], nil, &agr); err != nil {
				return err
			}
			printAgreement(agr)
			return nil
		},
	}
}
