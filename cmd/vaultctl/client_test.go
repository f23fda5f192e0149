package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseMilestoneSpecs(t *testing.T) {
	milestones, err := parseMilestoneSpecs([]string{
		"600000:Design approved",
		"400000:Handover: keys and docs",
		"250",
	})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(milestones) != 3 {
		t.Fatalf("expected 3 milestones, got %d", len(milestones))
	}
	if milestones[0].Amount != "600000" || milestones[0].Description != "Design approved" {
		t.Fatalf("unexpected first milestone: %+v", milestones[0])
	}
	if milestones[1].Description != "Handover: keys and docs" {
		t.Fatalf("expected description split on first colon, got %q", milestones[1].Description)
	}
	if milestones[2].Amount != "250" || milestones[2].Description != "" {
		t.Fatalf("unexpected bare amount milestone: %+v", milestones[2])
	}

	if _, err := parseMilestoneSpecs([]string{":no amount"}); err == nil {
		t.Fatal("expected error for missing amount")
	}
}

func TestClientDecodesServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":"escrow: invalid state"}`))
	}))
	defer srv.Close()

	client := newClient(cliContext{Server: srv.URL})
	err := client.do(context.Background(), "POST", "/api/agreements/1/refund", struct{}{}, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "escrow: invalid state") {
		t.Fatalf("expected server message in error, got %v", err)
	}
}

func TestClientSendsBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"balance":"42","address":"A"}`))
	}))
	defer srv.Close()

	client := newClient(cliContext{Server: srv.URL + "/", Token: "session-token"})
	var balance balanceView
	if err := client.do(context.Background(), "GET", "/api/balance", nil, &balance); err != nil {
		t.Fatalf("do: %v", err)
	}
	if gotAuth != "Bearer session-token" {
		t.Fatalf("expected bearer header, got %q", gotAuth)
	}
	if balance.Balance != "42" {
		t.Fatalf("expected decoded balance, got %+v", balance)
	}
}

func TestContextRoundTrip(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	ctx, err := loadContext()
	if err != nil {
		t.Fatalf("load fresh context: %v", err)
	}
	if ctx.Server != defaultServer || ctx.Token != "" {
		t.Fatalf("unexpected fresh context: %+v", ctx)
	}

	ctx.Server = "http://vaultd.internal:9000"
	ctx.Token = "session-token"
	if err := saveContext(ctx); err != nil {
		t.Fatalf("save context: %v", err)
	}

	loaded, err := loadContext()
	if err != nil {
		t.Fatalf("reload context: %v", err)
	}
	if loaded != ctx {
		t.Fatalf("expected %+v, got %+v", ctx, loaded)
	}
}
