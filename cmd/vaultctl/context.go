package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

const defaultServer = "http://localhost:8080"

// cliContext is the saved connection state: which vaultd to talk to and the
// session token from the last login. It lives as JSON under the user config
// dir so every invocation does not need to re-authenticate.
type cliContext struct {
	Server string `json:"server"`
	Token  string `json:"token"`
}

func contextPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return filepath.Join(dir, "vaultctl", "context.json"), nil
}

func loadContext() (cliContext, error) {
	ctx := cliContext{Server: defaultServer}
	path, err := contextPath()
	if err != nil {
		return ctx, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return ctx, nil
	}
	if err != nil {
		return ctx, fmt.Errorf("read context: %w", err)
	}
	if err := json.Unmarshal(data, &ctx); err != nil {
		return ctx, fmt.Errorf("parse context %s: %w", path, err)
	}
	if ctx.Server == "" {
		ctx.Server = defaultServer
	}
	return ctx, nil
}

func saveContext(ctx cliContext) error {
	path, err := contextPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(ctx, "", "  ")
	if err != nil {
		return fmt.Errorf("encode context: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write context: %w", err)
	}
	return nil
}

// resolveContext loads the saved context and applies the --server override
// if one was given.
func resolveContext(cmd *cobra.Command) (cliContext, error) {
	ctx, err := loadContext()
	if err != nil {
		return ctx, err
	}
	if server, _ := cmd.Flags().GetString("server"); server != "" {
		ctx.Server = server
	}
	return ctx, nil
}
