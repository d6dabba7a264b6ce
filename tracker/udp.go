package tracker

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/rand"
	"net"
	"net/url"
	"time"
)

const (
	udpProtocolMagic = 0x41727101980
	udpActionConnect = 0
	udpActionAnnounce = 1
	udpEventStarted   = 2
)

// UDPClient announces over the BEP-15 UDP tracker protocol, grounded on
// gtorrent's original udpTracker.
type UDPClient struct {
	announceURL string
}

// NewUDPClient builds a UDP tracker client for the given announce URL.
func NewUDPClient(announceURL string) *UDPClient {
	return &UDPClient{announceURL: announceURL}
}

// URL returns the announce URL.
func (c *UDPClient) URL() string {
	return c.announceURL
}

// Announce performs the connect+announce UDP handshake.
func (c *UDPClient) Announce(p AnnounceParams) (*AnnounceResult, error) {
	u, err := url.Parse(c.announceURL)
	if err != nil {
		return nil, &ErrTrackerTransient{Tracker: c.announceURL, Cause: err}
	}
	addr, err := net.ResolveUDPAddr("udp", u.Host)
	if err != nil {
		return nil, &ErrTrackerTransient{Tracker: c.announceURL, Cause: err}
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, &ErrTrackerTransient{Tracker: c.announceURL, Cause: err}
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(15 * time.Second))

	connID, err := udpConnect(conn)
	if err != nil {
		return nil, &ErrTrackerTransient{Tracker: c.announceURL, Cause: err}
	}

	result, err := udpAnnounce(conn, connID, p)
	if err != nil {
		return nil, &ErrTrackerTransient{Tracker: c.announceURL, Cause: err}
	}
	return result, nil
}

func udpConnect(conn *net.UDPConn) (int64, error) {
	transactionID := rand.Int31()
	req := struct {
		ConnectionID int64
		Action       int32
		Transaction  int32
	}{udpProtocolMagic, udpActionConnect, transactionID}

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.BigEndian, req); err != nil {
		return 0, err
	}
	if _, err := conn.Write(buf.Bytes()); err != nil {
		return 0, err
	}

	var resp struct {
		Action       int32
		Transaction  int32
		ConnectionID int64
	}
	if err := binary.Read(conn, binary.BigEndian, &resp); err != nil {
		return 0, err
	}
	if resp.Transaction != transactionID {
		return 0, fmt.Errorf("tracker: udp transaction id mismatch")
	}
	if resp.Action != udpActionConnect {
		return 0, fmt.Errorf("tracker: udp unexpected action %d", resp.Action)
	}
	return resp.ConnectionID, nil
}

func udpAnnounce(conn *net.UDPConn, connID int64, p AnnounceParams) (*AnnounceResult, error) {
	transactionID := rand.Int31()
	req := struct {
		ConnectionID int64
		Action       int32
		Transaction  int32
		InfoHash     [20]byte
		PeerID       [20]byte
		Downloaded   int64
		Left         int64
		Uploaded     int64
		Event        int32
		IP           int32
		Key          int32
		NumWant      int32
		Port         uint16
	}{
		ConnectionID: connID,
		Action:       udpActionAnnounce,
		Transaction:  transactionID,
		InfoHash:     p.InfoHash,
		PeerID:       p.PeerID,
		Downloaded:   p.Downloaded,
		Left:         p.Left,
		Uploaded:     p.Uploaded,
		Event:        udpEventStarted,
		NumWant:      -1,
		Port:         p.Port,
	}

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.BigEndian, req); err != nil {
		return nil, err
	}
	if _, err := conn.Write(buf.Bytes()); err != nil {
		return nil, err
	}

	readBuf := make([]byte, 4096)
	n, err := conn.Read(readBuf)
	if err != nil {
		return nil, err
	}
	readBuf = readBuf[:n]
	if len(readBuf) < 20 {
		return nil, fmt.Errorf("tracker: udp announce response too short (%d bytes)", len(readBuf))
	}

	var resp struct {
		Action      int32
		Transaction int32
		Interval    int32
		Leechers    int32
		Seeders     int32
	}
	if err := binary.Read(bytes.NewReader(readBuf[:20]), binary.BigEndian, &resp); err != nil {
		return nil, err
	}
	if resp.Transaction != transactionID {
		return nil, fmt.Errorf("tracker: udp transaction id mismatch")
	}
	if resp.Action != udpActionAnnounce {
		return nil, fmt.Errorf("tracker: udp unexpected action %d", resp.Action)
	}

	peerBytes := readBuf[20:]
	peers := make([]PeerAddr, 0, len(peerBytes)/6)
	for i := 0; i+6 <= len(peerBytes); i += 6 {
		b := peerBytes[i : i+6]
		peers = append(peers, PeerAddr{
			IP:   net.IPv4(b[0], b[1], b[2], b[3]).String(),
			Port: uint16(b[4])<<8 | uint16(b[5]),
		})
	}

	return &AnnounceResult{
		Interval: time.Duration(resp.Interval) * time.Second,
		Peers:    peers,
		Seeders:  int(resp.Seeders),
		Leechers: int(resp.Leechers),
	}, nil
}
