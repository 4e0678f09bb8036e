package cli

import (
	"context"
	"fmt"

	"github.com/fpang/tal-prompt-studio/internal/bootstrap"
	"github.com/fpang/tal-prompt-studio/internal/config"
	"github.com/fpang/tal-prompt-studio/internal/logging"
)

// InitApp loads configuration from configPath (empty for the default file),
// initializes logging and assembles the pipeline.
func InitApp(ctx context.Context, configPath string) (*bootstrap.App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logging.Init(cfg.Log.Level, cfg.Log.Format)

	app, err := bootstrap.New(ctx, cfg, bootstrap.Overrides{})
	if err != nil {
		return nil, fmt.Errorf("initialize: %w", err)
	}
	return app, nil
}
