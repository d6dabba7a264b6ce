package tracker

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Heartbeat periodically re-announces to a tracker, driving a live peer set.
// After the first success it sleeps Interval and re-announces; on failure it
// retries with exponential backoff starting at 1s and doubling, capped at
// maxBackoff, resuming the interval schedule on the next success. This is
// the feature gtorrent's original tracker client never implemented — it
// only ever announced once per download (see download.go's single
// GetPeers call) — supplemented here per spec.md §4.7.
type Heartbeat struct {
	client     Client
	params     AnnounceParams
	maxBackoff time.Duration
	updates    chan AnnounceResult
}

// NewHeartbeat builds a heartbeat driver for client, announcing with params
// on every announce (Left included: it is fixed for the lifetime of the
// heartbeat and cannot be updated after construction).
func NewHeartbeat(client Client, params AnnounceParams) *Heartbeat {
	return &Heartbeat{
		client:     client,
		params:     params,
		maxBackoff: 5 * time.Minute,
		updates:    make(chan AnnounceResult, 1),
	}
}

// Updates returns the channel on which refreshed peer sets are published.
func (h *Heartbeat) Updates() <-chan AnnounceResult {
	return h.updates
}

// Run drives the announce/sleep/backoff loop until ctx is cancelled.
func (h *Heartbeat) Run(ctx context.Context) {
	logger := log.With().Str("component", "tracker-heartbeat").Str("tracker", h.client.URL()).Logger()
	backoff := time.Second

	for {
		result, err := h.client.Announce(h.params)
		if err != nil {
			logger.Warn().Err(err).Dur("backoff", backoff).Msg("announce failed, backing off")
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > h.maxBackoff {
				backoff = h.maxBackoff
			}
			continue
		}

		backoff = time.Second
		logger.Info().Int("peers", len(result.Peers)).Dur("interval", result.Interval).Msg("announce succeeded")

		select {
		case h.updates <- *result:
		case <-ctx.Done():
			return
		default:
			// Drain stale update before publishing the fresh one so slow
			// subscribers never block the heartbeat loop.
			select {
			case <-h.updates:
			default:
			}
			h.updates <- *result
		}

		interval := result.Interval
		if interval <= 0 {
			interval = time.Minute
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}
