package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// apiClient is a thin wrapper over the vaultd HTTP API. Amounts travel as
// decimal strings end to end, so nothing here touches number types.
type apiClient struct {
	baseURL string
	token   string
	httpc   *http.Client
}

func newClient(ctx cliContext) *apiClient {
	return &apiClient{
		baseURL: strings.TrimSuffix(ctx.Server, "/"),
		token:   ctx.Token,
		httpc:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("reach %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var remote struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&remote); err == nil && remote.Error != "" {
			return fmt.Errorf("%s: %s", resp.Status, remote.Error)
		}
		return fmt.Errorf("server returned %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type userView struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	FullName     string `json:"full_name"`
	Role         string `json:"role"`
	VaultAddress string `json:"vault_address"`
}

type loginView struct {
	Token string   `json:"token"`
	User  userView `json:"user"`
}

type milestoneView struct {
	Ordinal     int    `json:"ordinal"`
	Amount      string `json:"amount"`
	State       string `json:"state"`
	VerifiedAt  uint64 `json:"verified_at"`
	ReleasedAt  uint64 `json:"released_at"`
	Description string `json:"description"`
	Evidence    string `json:"evidence"`
}

type agreementView struct {
	ID             string          `json:"id"`
	Payer          string          `json:"payer"`
	Beneficiary    string          `json:"beneficiary"`
	Oracle         string          `json:"oracle"`
	TotalAmount    string          `json:"total_amount"`
	LockedAmount   string          `json:"locked_amount"`
	ReleasedAmount string          `json:"released_amount"`
	State          string          `json:"state"`
	CreatedAt      uint64          `json:"created_at"`
	FundedAt       uint64          `json:"funded_at"`
	TimeoutAt      uint64          `json:"timeout_at"`
	Title          string          `json:"title"`
	Metadata       string          `json:"metadata"`
	Milestones     []milestoneView `json:"milestones"`
}

type releaseView struct {
	Fee               string `json:"fee"`
	BeneficiaryAmount string `json:"beneficiary_amount"`
	Completed         bool   `json:"completed"`
}

type refundView struct {
	Refunded string `json:"refunded"`
}

type statsView struct {
	TotalValueLocked    string `json:"total_value_locked"`
	TotalValueReleased  string `json:"total_value_released"`
	ProtocolFeesAccrued string `json:"protocol_fees_accrued"`
	AgreementCount      int    `json:"agreement_count"`
}

type balanceView struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

type feeRecipientView struct {
	FeeRecipient string `json:"fee_recipient"`
}
