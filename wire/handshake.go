package wire

import (
	"fmt"
	"io"
)

// ProtocolIdentifier is the literal protocol string exchanged in the
// handshake frame.
const ProtocolIdentifier = "BitTorrent protocol"

// HandshakeLen is the fixed length of a handshake frame: 1 + 19 + 8 + 20 + 20.
const HandshakeLen = 1 + len(ProtocolIdentifier) + 8 + 20 + 20

// Handshake is the 68-byte initial exchange described in spec §3/§4.2.
type Handshake struct {
	Reserved [8]byte
	InfoHash [20]byte
	PeerID   [20]byte
}

// Serialize encodes the handshake frame.
func (h *Handshake) Serialize() []byte {
	buf := make([]byte, HandshakeLen)
	buf[0] = byte(len(ProtocolIdentifier))
	copy(buf[1:], ProtocolIdentifier)
	copy(buf[1+len(ProtocolIdentifier):], h.Reserved[:])
	copy(buf[1+len(ProtocolIdentifier)+8:], h.InfoHash[:])
	copy(buf[1+len(ProtocolIdentifier)+8+20:], h.PeerID[:])
	return buf
}

// ReadHandshake reads and validates a 68-byte handshake frame from r.
// Any length or protocol-string mismatch is a fatal protocol error.
func ReadHandshake(r io.Reader) (*Handshake, error) {
	var lenBuf [1]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("wire: reading handshake length: %w", err)
	}
	pstrlen := int(lenBuf[0])
	if pstrlen != len(ProtocolIdentifier) {
		return nil, fmt.Errorf("wire: unexpected protocol string length %d", pstrlen)
	}

	rest := make([]byte, pstrlen+8+20+20)
	if _, err := io.ReadFull(r, rest); err != nil {
		return nil, fmt.Errorf("wire: reading handshake body: %w", err)
	}

	if string(rest[:pstrlen]) != ProtocolIdentifier {
		return nil, fmt.Errorf("wire: invalid protocol identifier %q", rest[:pstrlen])
	}

	h := &Handshake{}
	copy(h.Reserved[:], rest[pstrlen:pstrlen+8])
	copy(h.InfoHash[:], rest[pstrlen+8:pstrlen+8+20])
	copy(h.PeerID[:], rest[pstrlen+8+20:])
	return h, nil
}

// SendHandshake writes a handshake frame for infoHash/peerID to w.
func SendHandshake(w io.Writer, infoHash, peerID [20]byte) error {
	h := &Handshake{InfoHash: infoHash, PeerID: peerID}
	_, err := w.Write(h.Serialize())
	return err
}
