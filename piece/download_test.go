package piece

import (
	"bufio"
	"context"
	"crypto/sha1"
	"net"
	"testing"
	"time"

	"gtorrent/peer"
	"gtorrent/torrentfile"
	"gtorrent/wire"
)

// serveOneSession performs the handshake + bitfield exchange and then
// answers Request messages with zero-filled Piece payloads of the
// requested length, looping until the connection closes.
func serveOneSession(conn net.Conn, infoHash [20]byte, numPieces int) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	wire.ReadHandshake(r)
	var remoteID [20]byte
	copy(remoteID[:], "cccccccccccccccccccc")
	wire.SendHandshake(conn, infoHash, remoteID)

	bf := make([]byte, (numPieces+7)/8)
	for i := range bf {
		bf[i] = 0xFF
	}
	frame, _ := wire.Encode(wire.MsgBitfield, bf)
	conn.Write(frame)

	for {
		msg, err := wire.ReadMessage(r)
		if err != nil {
			return
		}
		switch msg.Type {
		case wire.MsgInterested:
			unchoke, _ := wire.Encode(wire.MsgUnchoke, nil)
			conn.Write(unchoke)
		case wire.MsgRequest:
			index, begin, length, err := wire.ParseRequest(msg.Payload)
			if err != nil {
				return
			}
			data := make([]byte, length)
			piece, _ := wire.Encode(wire.MsgPiece, wire.FormatPiece(index, begin, data))
			conn.Write(piece)
		}
	}
}

func dialTestSession(t *testing.T, infoHash [20]byte, numPieces int) *peer.Session {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		serveOneSession(conn, infoHash, numPieces)
	}()

	var peerID [20]byte
	copy(peerID[:], "bbbbbbbbbbbbbbbbbbbb")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := peer.Dial(ctx, ln.Addr().String(), infoHash, peerID, numPieces, time.Second, time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestDownloadAssemblesAndVerifiesPiece(t *testing.T) {
	var infoHash [20]byte
	copy(infoHash[:], "aaaaaaaaaaaaaaaaaaaa")

	pieceLen := int64(2 * torrentfile.BlockSize)
	expected := make([]byte, pieceLen) // all zero bytes, matching the fake peer's responses
	hash := sha1.Sum(expected)

	s1 := dialTestSession(t, infoHash, 1)
	s2 := dialTestSession(t, infoHash, 1)

	d := Descriptor{Index: 0, Length: pieceLen, Hash: hash}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, err := Download(ctx, d, []*peer.Session{s1, s2}, time.Second)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if len(data) != int(pieceLen) {
		t.Fatalf("len(data) = %d, want %d", len(data), pieceLen)
	}
}

func TestDownloadRejectsCorruptPiece(t *testing.T) {
	var infoHash [20]byte
	copy(infoHash[:], "aaaaaaaaaaaaaaaaaaaa")

	s1 := dialTestSession(t, infoHash, 1)

	var wrongHash [20]byte
	copy(wrongHash[:], "wrong-hash-wrong-has")
	d := Descriptor{Index: 0, Length: int64(torrentfile.BlockSize), Hash: wrongHash}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := Download(ctx, d, []*peer.Session{s1}, time.Second)
	if err == nil {
		t.Fatal("expected verification failure")
	}
}

func TestDownloadReturnsSchedulingExhaustedWithNoProviders(t *testing.T) {
	var infoHash [20]byte
	copy(infoHash[:], "aaaaaaaaaaaaaaaaaaaa")
	// The session is dialed with numPieces=1, so piece index 1 lies outside
	// its bitfield and no session has it.
	s1 := dialTestSession(t, infoHash, 1)

	var hash [20]byte
	d := Descriptor{Index: 1, Length: int64(torrentfile.BlockSize), Hash: hash}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := Download(ctx, d, []*peer.Session{s1}, time.Second)
	if err != ErrSchedulingExhausted {
		t.Fatalf("err = %v, want ErrSchedulingExhausted", err)
	}
}
