// Package peer implements the per-connection state machine of spec.md §4.4:
// handshake, bitfield assimilation, choke/unchoke tracking, and the
// block-pulling work loop a piece downloader drives. One goroutine owns
// one Session's transport exclusively; suspension points are channel
// operations and deadlined network reads, the Go mapping of spec.md §5's
// "cooperative single-threaded tasks on a multiplexed executor".
//
// Grounded on gtorrent's original download_manager.go
// (peerConnectionState/downloadPieceFromChokedPeer/handleMessage),
// generalized from "one peer downloads an entire piece alone" to "many
// sessions share one piece's block work queue" per spec.md §4.5.
package peer

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"gtorrent/bitfield"
	"gtorrent/wire"
)

// Block is one received Piece message's payload, keyed by offset so
// assembly never depends on arrival order (spec.md §5 ordering guarantees).
type Block struct {
	Begin uint32
	Data  []byte
}

// ErrTransportFatal classifies a network failure that retires the session.
type ErrTransportFatal struct{ Cause error }

func (e *ErrTransportFatal) Error() string { return fmt.Sprintf("peer: transport fatal: %v", e.Cause) }
func (e *ErrTransportFatal) Unwrap() error  { return e.Cause }

// ErrProtocolFatal classifies a protocol violation that retires the
// session: double choke/unchoke, a bitfield arriving mid-stream, an
// unknown tag, or an over-length frame.
type ErrProtocolFatal struct{ Reason string }

func (e *ErrProtocolFatal) Error() string { return "peer: protocol violation: " + e.Reason }

// Session is one live peer connection, created by successful handshake +
// initial bitfield exchange (spec.md §3 "Peer session" lifecycle).
type Session struct {
	ID       uuid.UUID
	Addr     string
	conn     net.Conn
	r        *bufio.Reader
	Bitfield *bitfield.Bitfield

	choked      bool
	interested  bool
	log         zerolog.Logger
	dialTimeout time.Duration
	hsTimeout   time.Duration
}

// Dial opens a TCP connection to addr, performs the handshake, and reads
// the remote's initial Bitfield message (spec.md §4.2). numPieces sizes the
// remote bitfield (P).
func Dial(ctx context.Context, addr string, infoHash, peerID [20]byte, numPieces int, dialTimeout, handshakeTimeout time.Duration) (*Session, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("peer: generating session id: %w", err)
	}

	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &ErrTransportFatal{Cause: err}
	}

	s := &Session{
		ID:          id,
		Addr:        addr,
		conn:        conn,
		r:           bufio.NewReader(conn),
		choked:      true,
		dialTimeout: dialTimeout,
		hsTimeout:   handshakeTimeout,
		log:         log.With().Str("component", "peer").Str("session", id.String()).Str("addr", addr).Logger(),
	}

	if err := s.handshake(infoHash, peerID); err != nil {
		conn.Close()
		return nil, err
	}

	if err := s.awaitInitialBitfield(numPieces); err != nil {
		conn.Close()
		return nil, err
	}

	return s, nil
}

func (s *Session) handshake(infoHash, peerID [20]byte) error {
	s.conn.SetDeadline(time.Now().Add(s.hsTimeout))
	defer s.conn.SetDeadline(time.Time{})

	if err := wire.SendHandshake(s.conn, infoHash, peerID); err != nil {
		return &ErrTransportFatal{Cause: err}
	}

	remote, err := wire.ReadHandshake(s.r)
	if err != nil {
		return &ErrProtocolFatal{Reason: err.Error()}
	}
	if remote.InfoHash != infoHash {
		return &ErrProtocolFatal{Reason: "info-hash mismatch"}
	}
	return nil
}

// awaitInitialBitfield enforces spec.md §4.2: the remote's first framed
// message after handshake must be Bitfield; anything else is fatal.
func (s *Session) awaitInitialBitfield(numPieces int) error {
	s.conn.SetDeadline(time.Now().Add(s.hsTimeout))
	defer s.conn.SetDeadline(time.Time{})

	msg, err := wire.ReadMessage(s.r)
	if err != nil {
		return &ErrTransportFatal{Cause: err}
	}
	if msg.Type != wire.MsgBitfield {
		return &ErrProtocolFatal{Reason: fmt.Sprintf("expected Bitfield as first message, got %s", msg.Type)}
	}
	expectedLen := (numPieces + 7) / 8
	if len(msg.Payload) != expectedLen {
		return &ErrProtocolFatal{Reason: fmt.Sprintf("bitfield length %d, expected %d", len(msg.Payload), expectedLen)}
	}
	s.Bitfield = bitfield.FromBytes(msg.Payload, numPieces)
	return nil
}

// Close releases the session's transport. Safe to call multiple times.
func (s *Session) Close() error {
	return s.conn.Close()
}
