package tracker

import (
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"gtorrent/bencode"
)

// httpAnnounceResponse mirrors the bencoded tracker response fields spec.md
// §6 defines, decoded via bencode.Unmarshal's struct-tag support rather than
// gtorrent's original field-by-field dict walking.
type httpAnnounceResponse struct {
	FailureReason string `bencode:"failure reason"`
	Interval      int64  `bencode:"interval"`
	Complete      int64  `bencode:"complete"`
	Incomplete    int64  `bencode:"incomplete"`
	Peers         []byte `bencode:"peers"`
}

// HTTPClient announces over HTTP(S), grounded on gtorrent's original
// httpTracker.
type HTTPClient struct {
	announceURL string
	http        *resty.Client
}

// NewHTTPClient builds an HTTP tracker client for the given announce URL.
func NewHTTPClient(announceURL string) *HTTPClient {
	return &HTTPClient{
		announceURL: announceURL,
		http:        resty.New().SetTimeout(15 * time.Second),
	}
}

// URL returns the announce URL.
func (c *HTTPClient) URL() string {
	return c.announceURL
}

// Announce sends a compact-mode GET per spec.md §6 and parses the bencoded
// response.
func (c *HTTPClient) Announce(p AnnounceParams) (*AnnounceResult, error) {
	rawQuery := fmt.Sprintf(
		"info_hash=%s&peer_id=%s&port=%d&uploaded=%d&downloaded=%d&left=%d&compact=1",
		percentEncodeBytes(p.InfoHash),
		percentEncodeBytes(p.PeerID),
		p.Port, p.Uploaded, p.Downloaded, p.Left,
	)

	resp, err := c.http.R().SetQueryString(rawQuery).Get(c.announceURL)
	if err != nil {
		return nil, &ErrTrackerTransient{Tracker: c.announceURL, Cause: err}
	}
	if resp.StatusCode() != 200 {
		return nil, &ErrTrackerTransient{
			Tracker: c.announceURL,
			Cause:   fmt.Errorf("http status %d", resp.StatusCode()),
		}
	}

	var parsed httpAnnounceResponse
	if err := bencode.Unmarshal(resp.Body(), &parsed); err != nil {
		return nil, &ErrTrackerTransient{Tracker: c.announceURL, Cause: err}
	}
	if parsed.FailureReason != "" {
		return nil, &ErrTrackerTransient{
			Tracker: c.announceURL,
			Cause:   fmt.Errorf("tracker failure: %s", parsed.FailureReason),
		}
	}

	if len(parsed.Peers)%6 != 0 {
		return nil, &ErrTrackerTransient{
			Tracker: c.announceURL,
			Cause:   fmt.Errorf("compact peers length %d not a multiple of 6", len(parsed.Peers)),
		}
	}

	peers := make([]PeerAddr, 0, len(parsed.Peers)/6)
	for i := 0; i+6 <= len(parsed.Peers); i += 6 {
		b := parsed.Peers[i : i+6]
		peers = append(peers, PeerAddr{
			IP:   fmt.Sprintf("%d.%d.%d.%d", b[0], b[1], b[2], b[3]),
			Port: uint16(b[4])<<8 | uint16(b[5]),
		})
	}

	return &AnnounceResult{
		Interval: time.Duration(parsed.Interval) * time.Second,
		Peers:    peers,
		Seeders:  int(parsed.Complete),
		Leechers: int(parsed.Incomplete),
	}, nil
}
