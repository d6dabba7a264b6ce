package piece

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"gtorrent/peer"
	"gtorrent/torrentfile"
)

// Download drives one piece's block work queue across every session in
// sessions that has announced the piece (per its Bitfield), collecting
// blocks as they arrive and verifying the assembled result against d.Hash.
// Each session runs its peer.Session.WorkLoop concurrently; Download
// returns once the piece is fully assembled and verified, or once
// ErrSchedulingExhausted / ErrVerificationFailed / a context cancellation
// ends the attempt early.
//
// Grounded on gtorrent's original downloadPieceFromPeers, generalized from
// trying one peer at a time to running every eligible session in parallel
// against a single shared backlog (gtorrent's own Request-backlog idea,
// moved from per-connection pipelining to per-piece work sharing).
func Download(ctx context.Context, d Descriptor, sessions []*peer.Session, blockTimeout time.Duration) ([]byte, error) {
	var participants []*peer.Session
	for _, s := range sessions {
		if s.Bitfield.Has(d.Index) {
			participants = append(participants, s)
		}
	}
	if len(participants) == 0 {
		return nil, ErrSchedulingExhausted
	}

	numBlocks := int((d.Length + torrentfile.BlockSize - 1) / torrentfile.BlockSize)
	workQueue := make(chan int, numBlocks)
	for j := 0; j < numBlocks; j++ {
		workQueue <- j
	}

	done := make(chan peer.Block, numBlocks)
	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for _, s := range participants {
		wg.Add(1)
		go func(s *peer.Session) {
			defer wg.Done()
			if err := s.WorkLoop(workerCtx, d.Index, d.Length, numBlocks, workQueue, done, blockTimeout); err != nil {
				log.Debug().Err(err).Str("session", s.ID.String()).Int("piece", d.Index).Msg("session retired from piece")
			}
		}(s)
	}

	allDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(allDone)
	}()

	buf := make([]byte, d.Length)
	received := 0

collect:
	for received < numBlocks {
		select {
		case b := <-done:
			copy(buf[b.Begin:], b.Data)
			received++
		case <-allDone:
			if received < numBlocks {
				cancel()
				return nil, ErrSchedulingExhausted
			}
			break collect
		case <-ctx.Done():
			cancel()
			return nil, ctx.Err()
		}
	}
	cancel()

	if err := d.Verify(buf); err != nil {
		return nil, err
	}
	return buf, nil
}
