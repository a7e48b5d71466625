package database

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
)

// startupAttempts bounds how long startup waits for a dependency that is still booting.
const startupAttempts = 5

var startupBackoff = func() retry.Backoff {
	return retry.WithMaxRetries(startupAttempts, retry.WithCappedDuration(5*time.Second, retry.NewExponential(500*time.Millisecond)))
}

// waitReady calls ping until it succeeds or the attempts run out.
func waitReady(ctx context.Context, log zerolog.Logger, name string, ping func(context.Context) error) error {
	attempt := 0
	return retry.Do(ctx, startupBackoff(), func(ctx context.Context) error {
		attempt++
		if err := ping(ctx); err != nil {
			log.Warn().Err(err).Str("dependency", name).Int("attempt", attempt).Msg("Dependency not ready")
			return retry.RetryableError(err)
		}
		return nil
	})
}
