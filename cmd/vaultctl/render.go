package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
)

func renderAgreementState(state string) string {
	switch state {
	case "CREATED":
		return color.New(color.FgWhite).Sprint(state)
	case "FUNDED":
		return color.New(color.FgCyan).Sprint(state)
	case "ACTIVE":
		return color.New(color.FgHiBlue).Sprint(state)
	case "COMPLETED":
		return color.New(color.FgHiGreen).Sprint(state)
	case "REFUNDED":
		return color.New(color.FgYellow).Sprint(state)
	case "DISPUTED":
		return color.New(color.FgRed).Sprint(state)
	default:
		return state
	}
}

func renderMilestoneState(state string) string {
	switch state {
	case "PENDING":
		return color.New(color.FgHiBlack).Sprint(state)
	case "VERIFIED":
		return color.New(color.FgHiYellow).Sprint(state)
	case "RELEASED":
		return color.New(color.FgHiGreen).Sprint(state)
	case "CANCELLED":
		return color.New(color.FgRed).Sprint(state)
	default:
		return state
	}
}

func renderAmount(amount string) string {
	return color.New(color.FgHiWhite, color.Bold).Sprint(amount)
}

func shortAddr(addr string) string {
	if len(addr) <= 16 {
		return addr
	}
	return addr[:8] + ".." + addr[len(addr)-6:]
}

func printAgreement(agr agreementView) {
	fmt.Printf("Agreement %s  [%s]\n", agr.ID, renderAgreementState(agr.State))
	if agr.Title != "" {
		fmt.Printf("  %s\n", agr.Title)
	}
	fmt.Printf("  Payer:       %s\n", agr.Payer)
	fmt.Printf("  Beneficiary: %s\n", agr.Beneficiary)
	fmt.Printf("  Oracle:      %s\n", agr.Oracle)
	fmt.Printf("  Total %s   locked %s   released %s\n",
		renderAmount(agr.TotalAmount), agr.LockedAmount, agr.ReleasedAmount)
	if agr.TimeoutAt > 0 {
		fmt.Printf("  Funded at tick %d, refund opens at tick %d\n", agr.FundedAt, agr.TimeoutAt)
	}
	if agr.Metadata != "" {
		fmt.Printf("  Metadata: %s\n", agr.Metadata)
	}
	fmt.Println()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ORD\tAMOUNT\tSTATE\tDESCRIPTION\tEVIDENCE")
	for _, m := range agr.Milestones {
		evidence := ""
		if m.Evidence != "" {
			evidence = shortAddr(m.Evidence)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			m.Ordinal, m.Amount, renderMilestoneState(m.State), m.Description, evidence)
	}
	w.Flush()
}

func printStats(stats statsView) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintf(w, "Agreements\t%d\n", stats.AgreementCount)
	fmt.Fprintf(w, "Value locked\t%s\n", renderAmount(stats.TotalValueLocked))
	fmt.Fprintf(w, "Value released\t%s\n", stats.TotalValueReleased)
	fmt.Fprintf(w, "Protocol fees\t%s\n", stats.ProtocolFeesAccrued)
	w.Flush()
}
