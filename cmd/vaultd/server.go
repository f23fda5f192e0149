package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"vaultflow/auth"
	"vaultflow/escrow"
	"vaultflow/settle"
)

type ctxKey int

const (
	ctxKeyUserID ctxKey = iota
	ctxKeyRole
	ctxKeyAddress
)

// Server wires the HTTP surface to the escrow engine, the settlement ledger
// and the account service. Handlers hold no state of their own; every
// mutation goes through the engine or the ledger.
type Server struct {
	authService *auth.Service
	engine      *escrow.Engine
	ledger      settle.Ledger
	vault       escrow.Address
	owner       escrow.Address
	log         *zap.Logger

	faucetEnabled bool
	faucetAmount  uint64
}

func (s *Server) logger() *zap.Logger {
	if s.log == nil {
		return zap.NewNop()
	}
	return s.log
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/api/auth/register", s.handleRegister)
	mux.HandleFunc("/api/auth/login", s.handleLogin)
	mux.HandleFunc("/api/agreements", s.withAuth(s.handleAgreements))
	mux.HandleFunc("/api/agreements/", s.withAuth(s.handleAgreementDetail))
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/api/balance", s.withAuth(s.handleBalance))
	mux.HandleFunc("/api/faucet", s.withAuth(s.handleFaucet))
	mux.HandleFunc("/api/admin/fee-recipient", s.withAuth(s.handleFeeRecipient))
	return s.withRequestLog(mux)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := uuid.NewString()
		w.Header().Set("X-Request-ID", requestID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		log := s.logger()
		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.String("request_id", requestID),
		}
		switch {
		case rec.status >= 500:
			log.Error("http request", fields...)
		case rec.status >= 400:
			log.Warn("http request", fields...)
		default:
			log.Info("http request", fields...)
		}
	})
}

func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		identity, err := s.authService.VerifyToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		ctx := r.Context()
		ctx = context.WithValue(ctx, ctxKeyUserID, identity.UserID)
		ctx = context.WithValue(ctx, ctxKeyRole, identity.Role)
		ctx = context.WithValue(ctx, ctxKeyAddress, identity.Address)
		next(w, r.WithContext(ctx))
	}
}

// callerAddress resolves the authenticated caller's vault address from the
// request context.
func callerAddress(r *http.Request) (escrow.Address, bool) {
	raw, _ := r.Context().Value(ctxKeyAddress).(string)
	addr, err := escrow.AddressFromString(raw)
	if err != nil {
		return escrow.Address{}, false
	}
	return addr, true
}

func callerRole(r *http.Request) auth.Role {
	role, _ := r.Context().Value(ctxKeyRole).(auth.Role)
	return role
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type userResponse struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	FullName     string `json:"full_name"`
	Role         string `json:"role"`
	VaultAddress string `json:"vault_address"`
	CreatedAt    string `json:"created_at"`
}

func toUserResponse(u auth.User) userResponse {
	return userResponse{
		ID:           u.ID,
		Email:        u.Email,
		FullName:     u.FullName,
		Role:         string(u.Role),
		VaultAddress: u.VaultAddress,
		CreatedAt:    u.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req auth.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	user, err := s.authService.Register(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrDuplicateEmail):
			writeError(w, http.StatusConflict, "email already registered")
		case errors.Is(err, auth.ErrWeakPassword):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.writeInternalOrBadRequest(w, err)
		}
		return
	}
	writeJSON(w, http.StatusCreated, toUserResponse(*user))
}

// Register validation failures arrive as plain fmt errors; anything carrying
// the auth prefix is a caller mistake, the rest is ours.
func (s *Server) writeInternalOrBadRequest(w http.ResponseWriter, err error) {
	if strings.HasPrefix(err.Error(), "auth: ") {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger().Error("request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

type loginResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req auth.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := s.authService.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		s.logger().Error("login failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		Token: result.Token,
		User:  toUserResponse(result.User),
	})
}

type milestoneSpec struct {
	Amount      string `json:"amount"`
	Description string `json:"description"`
}

type createAgreementRequest struct {
	Beneficiary string          `json:"beneficiary"`
	Oracle      string          `json:"oracle"`
	TotalAmount string          `json:"total_amount"`
	Milestones  []milestoneSpec `json:"milestones"`
	Title       string          `json:"title"`
	Metadata    string          `json:"metadata"`
}

type createAgreementResponse struct {
	ID string `json:"id"`
}

func (s *Server) handleAgreements(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	caller, ok := callerAddress(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid identity")
		return
	}

	var req createAgreementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	beneficiary, err := escrow.AddressFromString(req.Beneficiary)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid beneficiary address")
		return
	}
	oracle, err := escrow.AddressFromString(req.Oracle)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid oracle address")
		return
	}
	total, err := escrow.ParseAmount(req.TotalAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid total_amount")
		return
	}
	amounts := make([]uint64, 0, len(req.Milestones))
	descriptions := make([]string, 0, len(req.Milestones))
	for _, m := range req.Milestones {
		amount, err := escrow.ParseAmount(m.Amount)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid milestone amount")
			return
		}
		amounts = append(amounts, amount)
		descriptions = append(descriptions, m.Description)
	}

	id, err := s.engine.CreateAgreement(r.Context(), escrow.Call{Caller: caller}, escrow.CreateParams{
		Beneficiary:      beneficiary,
		Oracle:           oracle,
		TotalAmount:      total,
		MilestoneAmounts: amounts,
		Descriptions:     descriptions,
		Title:            req.Title,
		Metadata:         req.Metadata,
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createAgreementResponse{ID: formatAgreementID(id)})
}

// handleAgreementDetail dispatches everything under /api/agreements/{id}:
// the agreement view, deposit, refund, and the per-milestone subresources.
func (s *Server) handleAgreementDetail(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/agreements/")
	parts := strings.Split(rest, "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusBadRequest, "agreement id required")
		return
	}
	id, err := parseAgreementID(parts[0])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid agreement id")
		return
	}

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.handleGetAgreement(w, r, id)
	case len(parts) == 2 && parts[1] == "deposit":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.handleDeposit(w, r, id)
	case len(parts) == 2 && parts[1] == "refund":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.handleRefund(w, r, id)
	case len(parts) >= 3 && parts[1] == "milestones":
		ordinal, err := strconv.Atoi(parts[2])
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid milestone ordinal")
			return
		}
		s.handleMilestone(w, r, id, ordinal, parts[3:])
	default:
		writeError(w, http.StatusNotFound, "no such resource")
	}
}

func (s *Server) handleMilestone(w http.ResponseWriter, r *http.Request, id escrow.AgreementID, ordinal int, rest []string) {
	switch {
	case len(rest) == 0:
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.handleGetMilestone(w, r, id, ordinal)
	case len(rest) == 1 && rest[0] == "verify":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.handleVerifyMilestone(w, r, id, ordinal)
	case len(rest) == 1 && rest[0] == "release":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.handleReleaseMilestone(w, r, id, ordinal)
	default:
		writeError(w, http.StatusNotFound, "no such resource")
	}
}

type milestoneResponse struct {
	Ordinal     int    `json:"ordinal"`
	Amount      string `json:"amount"`
	State       string `json:"state"`
	VerifiedAt  uint64 `json:"verified_at,omitempty"`
	ReleasedAt  uint64 `json:"released_at,omitempty"`
	Description string `json:"description,omitempty"`
	Evidence    string `json:"evidence,omitempty"`
}

type agreementResponse struct {
	ID             string              `json:"id"`
	Payer          string              `json:"payer"`
	Beneficiary    string              `json:"beneficiary"`
	Oracle         string              `json:"oracle"`
	TotalAmount    string              `json:"total_amount"`
	LockedAmount   string              `json:"locked_amount"`
	ReleasedAmount string              `json:"released_amount"`
	State          string              `json:"state"`
	CreatedAt      uint64              `json:"created_at"`
	FundedAt       uint64              `json:"funded_at,omitempty"`
	TimeoutAt      uint64              `json:"timeout_at,omitempty"`
	Title          string              `json:"title,omitempty"`
	Metadata       string              `json:"metadata,omitempty"`
	Milestones     []milestoneResponse `json:"milestones"`
}

func toMilestoneResponse(m escrow.MilestoneView) milestoneResponse {
	resp := milestoneResponse{
		Ordinal:     m.Ordinal,
		Amount:      strconv.FormatUint(m.Amount, 10),
		State:       m.State.String(),
		VerifiedAt:  m.VerifiedAt,
		ReleasedAt:  m.ReleasedAt,
		Description: m.Description,
	}
	if !m.Evidence.IsZero() {
		resp.Evidence = m.Evidence.String()
	}
	return resp
}

func toAgreementResponse(a escrow.AgreementView) agreementResponse {
	milestones := make([]milestoneResponse, 0, len(a.Milestones))
	for _, m := range a.Milestones {
		milestones = append(milestones, toMilestoneResponse(m))
	}
	return agreementResponse{
		ID:             formatAgreementID(a.ID),
		Payer:          a.Payer.String(),
		Beneficiary:    a.Beneficiary.String(),
		Oracle:         a.Oracle.String(),
		TotalAmount:    strconv.FormatUint(a.TotalAmount, 10),
		LockedAmount:   strconv.FormatUint(a.LockedAmount, 10),
		ReleasedAmount: strconv.FormatUint(a.ReleasedAmount, 10),
		State:          a.State.String(),
		CreatedAt:      a.CreatedAt,
		FundedAt:       a.FundedAt,
		TimeoutAt:      a.TimeoutAt,
		Title:          a.Title,
		Metadata:       a.Metadata,
		Milestones:     milestones,
	}
}

func (s *Server) handleGetAgreement(w http.ResponseWriter, r *http.Request, id escrow.AgreementID) {
	view, ok := s.engine.Agreement(id)
	if !ok {
		writeError(w, http.StatusNotFound, "agreement not found")
		return
	}
	writeJSON(w, http.StatusOK, toAgreementResponse(view))
}

func (s *Server) handleGetMilestone(w http.ResponseWriter, r *http.Request, id escrow.AgreementID, ordinal int) {
	view, ok := s.engine.Milestone(id, ordinal)
	if !ok {
		writeError(w, http.StatusNotFound, "milestone not found")
		return
	}
	writeJSON(w, http.StatusOK, toMilestoneResponse(view))
}

type depositRequest struct {
	Amount string `json:"amount"`
}

// handleDeposit moves the deposit from the payer's ledger account into the
// vault account and then locks it in the agreement. If the engine rejects
// the deposit the ledger move is compensated so no funds stay stranded in
// the vault.
func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request, id escrow.AgreementID) {
	caller, ok := callerAddress(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid identity")
		return
	}
	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	amount, err := escrow.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	ctx := r.Context()
	if err := s.ledger.Move(ctx, caller, escrow.Payment{To: s.vault, Amount: amount}); err != nil {
		s.writeEngineError(w, err)
		return
	}
	if err := s.engine.Deposit(ctx, escrow.Call{Caller: caller, Value: amount}, id); err != nil {
		if backErr := s.ledger.Move(ctx, s.vault, escrow.Payment{To: caller, Amount: amount}); backErr != nil {
			s.logger().Error("deposit compensation failed",
				zap.String("agreement_id", formatAgreementID(id)),
				zap.String("payer", caller.String()),
				zap.Uint64("amount", amount),
				zap.Error(backErr))
			writeError(w, http.StatusInternalServerError, "settlement inconsistency")
			return
		}
		s.writeEngineError(w, err)
		return
	}

	view, _ := s.engine.Agreement(id)
	writeJSON(w, http.StatusOK, toAgreementResponse(view))
}

type verifyRequest struct {
	// Evidence is either the raw evidence payload, which is digested
	// server-side, or an already computed 128 hex character digest.
	Evidence string `json:"evidence"`
}

func (s *Server) handleVerifyMilestone(w http.ResponseWriter, r *http.Request, id escrow.AgreementID, ordinal int) {
	caller, ok := callerAddress(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid identity")
		return
	}
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	digest := evidenceDigest(req.Evidence)

	if err := s.engine.VerifyMilestone(r.Context(), escrow.Call{Caller: caller}, id, ordinal, digest); err != nil {
		s.writeEngineError(w, err)
		return
	}
	view, _ := s.engine.Milestone(id, ordinal)
	writeJSON(w, http.StatusOK, toMilestoneResponse(view))
}

// evidenceDigest interprets the evidence field: a well-formed digest string
// passes through untouched, anything else is hashed with BLAKE2b-512.
func evidenceDigest(evidence string) escrow.EvidenceDigest {
	if evidence == "" {
		return escrow.EvidenceDigest{}
	}
	if len(evidence) == escrow.EvidenceDigestLen*2 {
		if digest, err := escrow.EvidenceDigestFromHex(evidence); err == nil {
			return digest
		}
	}
	return escrow.EvidenceDigest(blake2b.Sum512([]byte(evidence)))
}

type releaseResponse struct {
	Fee               string `json:"fee"`
	BeneficiaryAmount string `json:"beneficiary_amount"`
	Completed         bool   `json:"completed"`
}

func (s *Server) handleReleaseMilestone(w http.ResponseWriter, r *http.Request, id escrow.AgreementID, ordinal int) {
	caller, ok := callerAddress(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid identity")
		return
	}
	result, err := s.engine.ReleaseMilestone(r.Context(), escrow.Call{Caller: caller}, id, ordinal)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, releaseResponse{
		Fee:               strconv.FormatUint(result.Fee, 10),
		BeneficiaryAmount: strconv.FormatUint(result.BeneficiaryAmount, 10),
		Completed:         result.Completed,
	})
}

type refundResponse struct {
	Refunded string `json:"refunded"`
}

func (s *Server) handleRefund(w http.ResponseWriter, r *http.Request, id escrow.AgreementID) {
	caller, ok := callerAddress(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid identity")
		return
	}
	amount, err := s.engine.Refund(r.Context(), escrow.Call{Caller: caller}, id)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, refundResponse{Refunded: strconv.FormatUint(amount, 10)})
}

type statsResponse struct {
	TotalValueLocked    string `json:"total_value_locked"`
	TotalValueReleased  string `json:"total_value_released"`
	ProtocolFeesAccrued string `json:"protocol_fees_accrued"`
	AgreementCount      int    `json:"agreement_count"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	stats := s.engine.Stats()
	writeJSON(w, http.StatusOK, statsResponse{
		TotalValueLocked:    strconv.FormatUint(stats.TotalValueLocked, 10),
		TotalValueReleased:  strconv.FormatUint(stats.TotalValueReleased, 10),
		ProtocolFeesAccrued: strconv.FormatUint(stats.ProtocolFeesAccrued, 10),
		AgreementCount:      stats.AgreementCount,
	})
}

type balanceResponse struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	caller, ok := callerAddress(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid identity")
		return
	}
	balance, err := s.ledger.Balance(r.Context(), caller)
	if err != nil && !errors.Is(err, settle.ErrUnknownAccount) {
		s.logger().Error("balance lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{
		Address: caller.String(),
		Balance: strconv.FormatUint(balance, 10),
	})
}

func (s *Server) handleFaucet(w http.ResponseWriter, r *http.Request) {
	if !s.faucetEnabled {
		writeError(w, http.StatusNotFound, "no such resource")
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	caller, ok := callerAddress(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid identity")
		return
	}
	ctx := r.Context()
	if err := s.ledger.Credit(ctx, caller, s.faucetAmount); err != nil {
		s.logger().Error("faucet credit failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	balance, err := s.ledger.Balance(ctx, caller)
	if err != nil {
		s.logger().Error("faucet balance lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{
		Address: caller.String(),
		Balance: strconv.FormatUint(balance, 10),
	})
}

type feeRecipientRequest struct {
	Address string `json:"address"`
}

type feeRecipientResponse struct {
	FeeRecipient string `json:"fee_recipient"`
}

// handleFeeRecipient rotates the protocol fee recipient. The rotation
// capability belongs to the daemon's owner address; operators exercise it
// through their role.
func (s *Server) handleFeeRecipient(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if callerRole(r) != auth.RoleOperator {
		writeError(w, http.StatusForbidden, "operator role required")
		return
	}
	var req feeRecipientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	next, err := escrow.AddressFromString(req.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}
	if err := s.engine.SetFeeRecipient(escrow.Call{Caller: s.owner}, next); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, feeRecipientResponse{FeeRecipient: s.engine.FeeRecipient().String()})
}

func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, escrow.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, escrow.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, escrow.ErrUnauthorized):
		writeError(w, http.StatusForbidden, "caller is not permitted")
	case errors.Is(err, escrow.ErrInvalidState), errors.Is(err, escrow.ErrTimeoutNotReached), errors.Is(err, escrow.ErrCapacityExceeded):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, settle.ErrInsufficientFunds), errors.Is(err, settle.ErrUnknownAccount):
		writeError(w, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, settle.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger().Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func parseAgreementID(s string) (escrow.AgreementID, error) {
	raw, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return escrow.AgreementID(raw), nil
}

func formatAgreementID(id escrow.AgreementID) string {
	return strconv.FormatUint(uint64(id), 10)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
