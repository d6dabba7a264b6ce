package tracker

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func buildCompactResponse(peers []byte, interval, complete, incomplete int) []byte {
	var buf bytes.Buffer
	buf.WriteString("d")
	buf.WriteString(fmt.Sprintf("8:completei%de", complete))
	buf.WriteString(fmt.Sprintf("10:incompletei%de", incomplete))
	buf.WriteString(fmt.Sprintf("8:intervali%de", interval))
	buf.WriteString(fmt.Sprintf("5:peers%d:", len(peers)))
	buf.Write(peers)
	buf.WriteString("e")
	return buf.Bytes()
}

func TestHTTPClientAnnounceParsesCompactPeers(t *testing.T) {
	peers := []byte{1, 2, 3, 4, 0x1A, 0xE1, 5, 6, 7, 8, 0xC8, 0xD5}
	body := buildCompactResponse(peers, 1800, 5, 2)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL)
	var infoHash, peerID [20]byte
	result, err := c.Announce(AnnounceParams{InfoHash: infoHash, PeerID: peerID, Port: 6881})
	if err != nil {
		t.Fatalf("Announce: %v", err)
	}

	if len(result.Peers) != 2 {
		t.Fatalf("got %d peers, want 2", len(result.Peers))
	}
	if result.Peers[0].IP != "1.2.3.4" || result.Peers[0].Port != 6881 {
		t.Errorf("peer[0] = %+v", result.Peers[0])
	}
	if result.Peers[1].IP != "5.6.7.8" || result.Peers[1].Port != 51413 {
		t.Errorf("peer[1] = %+v", result.Peers[1])
	}
	if result.Seeders != 5 || result.Leechers != 2 {
		t.Errorf("seeders/leechers = %d/%d, want 5/2", result.Seeders, result.Leechers)
	}
}

func TestHTTPClientAnnounceRejectsFailureReason(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("d14:failure reason14:not registerede"))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL)
	var infoHash, peerID [20]byte
	_, err := c.Announce(AnnounceParams{InfoHash: infoHash, PeerID: peerID})
	if err == nil {
		t.Fatal("expected error for failure-reason response")
	}
}

func TestPercentEncodeBytesUnconditionalHex(t *testing.T) {
	var b [20]byte
	copy(b[:], "abcdefghijklmnopqrst") // all printable/"safe" ASCII
	enc := percentEncodeBytes(b)
	if len(enc) != 60 { // 3 chars ("%XX") per byte, unconditionally
		t.Fatalf("len(enc) = %d, want 60", len(enc))
	}
	if enc[:3] != "%61" { // lowercase hex for 'a' (0x61)
		t.Errorf("enc[:3] = %q, want %%61", enc[:3])
	}
}
