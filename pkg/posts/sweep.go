package posts

import (
	"context"

	"github.com/getsentry/sentry-go"
)

// Sweep deletes posts older than the retention window and returns how many
// went. Failures are logged and reported, never returned.
func (s *Service) Sweep(ctx context.Context) int64 {
	cutoff := s.now().Add(-RetentionWindow)

	swept, err := s.store.SweepOlderThan(ctx, cutoff)
	if err != nil {
		s.log.WithError(err).Warn("retention sweep failed")
		sentry.CaptureException(err)
		return 0
	}
	if swept > 0 {
		s.log.WithField("count", swept).Info("swept expired posts")
	}
	return swept
}
