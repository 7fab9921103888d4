package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/comigor/medchat-go/internal/backend"
	"github.com/comigor/medchat-go/internal/config"
	"github.com/comigor/medchat-go/internal/history"
	"github.com/comigor/medchat-go/internal/llm"
	"github.com/comigor/medchat-go/internal/logger"
	"github.com/comigor/medchat-go/internal/orchestrator"
)

var errDirectMode = errors.New("this command needs backend.provider: http")

// app holds the clients shared by the commands of one invocation.
type app struct {
	cfg    *config.Config
	client *backend.Client
	store  *history.Store
	chat   orchestrator.Backend
}

func newApp(cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, store: history.Open(cfg.History.DBPath)}

	switch cfg.Backend.Provider {
	case config.ProviderOpenAI:
		a.chat = llm.NewDirect(llm.NewClient(cfg.LLM), a.store, cfg.LLM)
	default:
		token, err := loadToken(cfg.Auth)
		if err != nil {
			a.close()
			return nil, err
		}
		a.client = backend.NewClient(cfg.Backend, token)
		a.chat = a.client
	}
	return a, nil
}

// api returns the HTTP client, or errDirectMode when chat turns are answered
// locally and there is no backend to ask.
func (a *app) api() (*backend.Client, error) {
	if a.client == nil {
		return nil, errDirectMode
	}
	return a.client, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		logger.L.Warn("closing history store failed", "error", err)
	}
}

// loadToken returns the configured token, falling back to the token file.
func loadToken(auth config.AuthConfig) (string, error) {
	if auth.Token != "" {
		return auth.Token, nil
	}
	if auth.TokenFile == "" {
		return "", nil
	}
	b, err := os.ReadFile(auth.TokenFile)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

func saveToken(path, token string) error {
	if path == "" {
		return errors.New("auth.token_file is not set")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(token+"\n"), 0o600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	return nil
}

func removeToken(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove token file: %w", err)
	}
	return nil
}
