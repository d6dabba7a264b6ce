package peer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gtorrent/torrentfile"
	"gtorrent/wire"
)

// WorkLoop implements spec.md §4.4's per-piece work-loop contract. It pulls
// block indices from workQueue, requests them, and ships completed blocks to
// done, until workQueue is closed (ok), ctx is cancelled (ctx.Err()), or a
// fatal error retires the session; an open but empty workQueue keeps it
// waiting for more work. blockTimeout bounds how long the session waits for a single
// requested block before requeueing it and returning ok so another session
// can pick it up (spec.md §9 open question (c); timeout is not fatal).
//
// Only one block is ever outstanding per session per piece — this loop
// never pipelines requests, matching spec.md §8's "at-most-one outstanding
// request per session per piece" invariant.
func (s *Session) WorkLoop(ctx context.Context, pieceIndex int, pieceLen int64, numBlocks int, workQueue chan int, done chan<- Block, blockTimeout time.Duration) error {
	if !s.Bitfield.Has(pieceIndex) {
		return fmt.Errorf("peer: session %s does not have piece %d", s.ID, pieceIndex)
	}

	if !s.interested {
		if err := s.send(wire.MsgInterested, nil); err != nil {
			return &ErrTransportFatal{Cause: err}
		}
		s.interested = true
	}

job:
	for {
		// Suspension point: block until unchoked (or ctx cancellation).
		for s.choked {
			msg, err := s.readMessage(ctx, 0)
			if err != nil {
				return err
			}
			switch msg.Type {
			case wire.MsgUnchoke:
				if len(msg.Payload) != 0 {
					return &ErrProtocolFatal{Reason: "unchoke with non-empty payload"}
				}
				s.choked = false
			case wire.MsgChoke:
				return &ErrProtocolFatal{Reason: "double choke while already choked"}
			case wire.MsgHave:
				if err := s.applyHave(msg.Payload); err != nil {
					return err
				}
			case wire.MsgBitfield:
				return &ErrProtocolFatal{Reason: "bitfield received after handshake"}
			case wire.MsgRequest, wire.MsgCancel, wire.MsgInterested, wire.MsgNotInterested, wire.MsgPiece:
				// No-serve / stale: ignored per spec.md §4.4 step 3.
			default:
				return &ErrProtocolFatal{Reason: fmt.Sprintf("unexpected message %s while waiting to unchoke", msg.Type)}
			}
		}

		// Suspension point: pull the next block index to work on.
		var j int
		var ok bool
		select {
		case <-ctx.Done():
			return ctx.Err()
		case j, ok = <-workQueue:
			if !ok {
				return nil
			}
		}

		length := blockLength(pieceLen, numBlocks, j)
		begin := uint32(j) * uint32(torrentfile.BlockSize)
		if err := s.send(wire.MsgRequest, wire.FormatRequest(uint32(pieceIndex), begin, uint32(length))); err != nil {
			requeue(workQueue, j)
			return &ErrTransportFatal{Cause: err}
		}

		for {
			msg, err := s.readMessage(ctx, blockTimeout)
			if err != nil {
				if err == errBlockTimeout {
					requeue(workQueue, j)
					return nil
				}
				requeue(workQueue, j)
				return err
			}

			switch msg.Type {
			case wire.MsgChoke:
				s.choked = true
				requeue(workQueue, j)
				continue job
			case wire.MsgHave:
				if err := s.applyHave(msg.Payload); err != nil {
					requeue(workQueue, j)
					return err
				}
				continue
			case wire.MsgUnchoke:
				requeue(workQueue, j)
				return &ErrProtocolFatal{Reason: "unchoke while already unchoked"}
			case wire.MsgBitfield:
				requeue(workQueue, j)
				return &ErrProtocolFatal{Reason: "bitfield received after handshake"}
			case wire.MsgRequest, wire.MsgCancel, wire.MsgInterested, wire.MsgNotInterested:
				continue
			case wire.MsgPiece:
				index, begin2, data, perr := wire.ParsePiece(msg.Payload)
				if perr != nil {
					requeue(workQueue, j)
					return &ErrProtocolFatal{Reason: perr.Error()}
				}
				if int(index) != pieceIndex || begin2 != begin {
					continue // unrelated piece message, discard
				}
				if int64(len(data)) != length {
					requeue(workQueue, j)
					return &ErrProtocolFatal{Reason: fmt.Sprintf("block length mismatch: expected %d, got %d", length, len(data))}
				}
				select {
				case done <- Block{Begin: begin2, Data: data}:
				case <-ctx.Done():
					return ctx.Err()
				}
				continue job
			default:
				requeue(workQueue, j)
				return &ErrProtocolFatal{Reason: fmt.Sprintf("unexpected message %s while awaiting piece", msg.Type)}
			}
		}
	}
}

func blockLength(pieceLen int64, numBlocks, j int) int64 {
	begin := int64(j) * torrentfile.BlockSize
	if remaining := pieceLen - begin; remaining < torrentfile.BlockSize {
		return remaining
	}
	return torrentfile.BlockSize
}

func requeue(workQueue chan int, j int) {
	select {
	case workQueue <- j:
	default:
		// Queue is full; a queue buffered to K never rejects a requeue of an
		// index it originally held, and the default case only keeps this
		// send from blocking. A closed queue is not handled here: sending on
		// it panics.
	}
}

func (s *Session) send(tag wire.MessageType, payload []byte) error {
	frame, err := wire.Encode(tag, payload)
	if err != nil {
		return err
	}
	_, err = s.conn.Write(frame)
	return err
}

func (s *Session) applyHave(payload []byte) error {
	index, err := wire.ParseHave(payload)
	if err != nil {
		return &ErrProtocolFatal{Reason: err.Error()}
	}
	if err := s.Bitfield.Set(int(index)); err != nil {
		return &ErrProtocolFatal{Reason: err.Error()}
	}
	return nil
}

var errBlockTimeout = fmt.Errorf("peer: timed out waiting for block")

// readMessage reads the next non-keep-alive message, applying timeout as a
// read deadline when timeout > 0.
func (s *Session) readMessage(ctx context.Context, timeout time.Duration) (*wire.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if timeout > 0 {
		s.conn.SetReadDeadline(time.Now().Add(timeout))
		defer s.conn.SetReadDeadline(time.Time{})
	}

	msg, err := wire.ReadMessage(s.r)
	if err != nil {
		if ne, ok := err.(interface{ Timeout() bool }); ok && ne.Timeout() {
			return nil, errBlockTimeout
		}
		var tagErr *wire.ErrInvalidMessageType
		if errors.Is(err, wire.ErrFrameTooLarge) || errors.As(err, &tagErr) {
			return nil, &ErrProtocolFatal{Reason: err.Error()}
		}
		return nil, &ErrTransportFatal{Cause: err}
	}
	if msg == nil {
		return nil, &ErrTransportFatal{Cause: fmt.Errorf("unexpected nil message")}
	}
	return msg, nil
}
