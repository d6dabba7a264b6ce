package main

import "crypto/rand"

// selfPeerID generates an Azercli-style peer id: "-GT0001-" followed by 12
// random bytes, the conventional BitTorrent client-identification prefix.
// Grounded on gtorrent's original torrent.PeerMe, which generated a bare 20
// random bytes with no client tag; this keeps the same randomness source
// but adopts the convention other clients rely on to recognize peers.
func selfPeerID() [20]byte {
	var id [20]byte
	copy(id[:], "-GT0001-")
	rand.Read(id[8:])
	return id
}
