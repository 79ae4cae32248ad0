package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/njoerd114/reportsync/internal/model"
	"github.com/njoerd114/reportsync/internal/reportsapi"
	"github.com/njoerd114/reportsync/internal/setup"
)

// runInit launches the interactive setup wizard.
func runInit(ctx context.Context, in io.Reader, out io.Writer, cfgPath string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	wiz := setup.NewWizard(in, out, checkAPI(logger), logger)
	return wiz.Run(ctx, cfgPath)
}

// checkAPI fetches a single record updated within the last month.
func checkAPI(logger *slog.Logger) setup.CheckFunc {
	return func(ctx context.Context, apiURL string) (int, error) {
		client, err := reportsapi.New(apiURL, logger,
			reportsapi.WithTimeout(10*time.Second),
			reportsapi.WithRetryPolicy(reportsapi.RetryPolicy{Retries: 1, BaseDelay: 200 * time.Millisecond, MaxDelay: time.Second}),
		)
		if err != nil {
			return 0, err
		}
		since := time.Now().UTC().AddDate(0, -1, 0).Format(model.TimestampLayout)
		page, err := client.FetchPage(ctx, since, 1)
		if err != nil {
			return 0, err
		}
		return len(page), nil
	}
}
