package main

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"gtorrent/config"
	"gtorrent/peer"
	"gtorrent/torrentfile"
	"gtorrent/tracker"
)

// dialSessions attempts a handshake against up to config.Main.MaxPeers
// addresses from peerSet concurrently, returning every session that
// completed handshake + initial bitfield exchange successfully. Grounded on
// gtorrent's original downloadPieceFromPeers dial loop (download_manager.go),
// generalized from "dial lazily while searching for one piece" to
// "establish the session pool up front, once, for the whole download".
func dialSessions(ctx context.Context, peerSet map[string]tracker.PeerAddr, info *torrentfile.Info, peerID [20]byte) []*peer.Session {
	addrs := make([]string, 0, len(peerSet))
	for addr := range peerSet {
		addrs = append(addrs, addr)
		if len(addrs) >= config.Main.MaxPeers {
			break
		}
	}

	var mu sync.Mutex
	var sessions []*peer.Session
	var wg sync.WaitGroup

	for _, addr := range addrs {
		wg.Add(1)
		go func(addr string) {
			defer wg.Done()
			s, err := peer.Dial(ctx, addr, info.InfoHash, peerID, info.NumPieces(), config.Main.DialTimeout, config.Main.HandshakeTimeout)
			if err != nil {
				log.Debug().Err(err).Str("addr", addr).Msg("peer dial failed")
				return
			}
			log.Info().Str("addr", addr).Str("session", s.ID.String()).Msg("peer session established")
			mu.Lock()
			sessions = append(sessions, s)
			mu.Unlock()
		}(addr)
	}
	wg.Wait()

	return sessions
}
