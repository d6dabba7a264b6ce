// Package piece implements rarity-ordered piece scheduling and the
// per-piece multi-peer block downloader of spec.md §4.5. Grounded on
// gtorrent's original downloadPieceFromPeers/downloadPieceFromChokedPeer
// (download_manager.go), generalized from "try peers one at a time, serially"
// into "drive every participating session concurrently against one shared
// block work queue".
package piece

import (
	"crypto/sha1"
	"errors"
	"fmt"
)

// ErrVerificationFailed is returned when an assembled piece's SHA-1 digest
// does not match the descriptor. Per spec.md §9, verification failure
// aborts the piece outright rather than attempting a partial repair; the
// orchestrator (runScheduler) then aborts the whole download naming the
// piece, it does not reschedule it.
var ErrVerificationFailed = errors.New("piece: hash verification failed")

// ErrSchedulingExhausted is returned when every participating session has
// stopped (fatally or by giving up) before the piece's blocks were all
// received.
var ErrSchedulingExhausted = errors.New("piece: no sessions remain to complete this piece")

// Descriptor is the scheduling-relevant subset of a torrent piece: its
// index, byte length (already piece-length-law-adjusted, see
// torrentfile.Info.PieceLen), and expected digest.
type Descriptor struct {
	Index  int
	Length int64
	Hash   [20]byte
}

// Verify reports whether data's SHA-1 digest matches d.Hash.
func (d Descriptor) Verify(data []byte) error {
	sum := sha1.Sum(data)
	if sum != d.Hash {
		return fmt.Errorf("%w: piece %d", ErrVerificationFailed, d.Index)
	}
	return nil
}
