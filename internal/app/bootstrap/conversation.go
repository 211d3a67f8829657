package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	appconfig "github.com/wolfman30/thsr-fare-bot/internal/config"
	"github.com/wolfman30/thsr-fare-bot/internal/conversation"
	"github.com/wolfman30/thsr-fare-bot/internal/observability/metrics"
	"github.com/wolfman30/thsr-fare-bot/internal/tdx"
	"github.com/wolfman30/thsr-fare-bot/pkg/logging"
)

// BuildDirectory wires the TDX client with its client-credentials token
// source and optional station cache.
func BuildDirectory(ctx context.Context, cfg *appconfig.Config, cache tdx.StationCache, logger *logging.Logger) (*tdx.Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	timeout := cfg.TDXTimeout
	if timeout <= 0 {
		timeout = tdx.DefaultTimeout
	}
	httpClient := &http.Client{Timeout: timeout}

	tokens, err := tdx.NewTokenSource(ctx, tdx.Credentials{
		ClientID:     cfg.TDXClientID,
		ClientSecret: cfg.TDXClientSecret,
		TokenURL:     cfg.TDXTokenURL,
		HTTPClient:   httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: tdx credentials: %w", err)
	}

	client, err := tdx.NewClient(tdx.Config{
		BaseURL:     cfg.TDXBaseURL,
		TokenSource: tokens,
		HTTPClient:  httpClient,
		Cache:       cache,
		Logger:      logger.With("component", "tdx"),
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: tdx client: %w", err)
	}
	logger.Info("tdx directory configured",
		"base_url", cfg.TDXBaseURL,
		"station_cache", cache != nil,
	)
	return client, nil
}

// BuildEngine wires the dialogue engine over an in-memory state store.
func BuildEngine(cfg *appconfig.Config, directory conversation.Directory, m *metrics.DialogueMetrics, logger *logging.Logger) *conversation.Engine {
	if logger == nil {
		logger = logging.Default()
	}
	scope := conversation.ResetCompletingUser
	if cfg != nil && strings.EqualFold(cfg.ResetScope, appconfig.ResetScopeAll) {
		scope = conversation.ResetEveryUser
		logger.Warn("completed fare queries will clear every user's dialogue", "reset_scope", cfg.ResetScope)
	}
	return conversation.NewEngine(directory, conversation.NewMemoryStore(), logger,
		conversation.WithMetrics(m),
		conversation.WithCompletionReset(scope),
	)
}
