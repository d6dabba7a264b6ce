package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"gtorrent/config"
	"gtorrent/db/models"
	"gtorrent/peer"
	"gtorrent/piece"
	"gtorrent/sink"
	"gtorrent/torrentfile"
	"gtorrent/tracker"
	"gtorrent/utils"
)

// DownloadTorrent initiates the download of content defined in a torrent
// file: it reads and parses the descriptor, records it in the database,
// announces to every tracker to discover peers, opens peer sessions, and
// drives the piece scheduler until every piece has verified.
//
// Grounded on gtorrent's original DownloadTorrent (download.go), with
// startDownloadFromPeers/downloadPieceFromPeers folded into the
// tracker/peer/piece packages this module adds.
func DownloadTorrent(torrentFile string) error {
	log.Info().Msg("Downloading torrent: " + torrentFile)

	content, err := os.ReadFile(torrentFile)
	if err != nil {
		return err
	}
	info, err := torrentfile.FromBytes(content)
	if err != nil {
		return err
	}

	torrentFilename := filepath.Base(torrentFile)
	cachePath := filepath.Join(config.Main.CacheDir, torrentFilename)
	if err := utils.CopyFile(torrentFile, cachePath); err != nil {
		return err
	}

	dlModel, err := mainDB.CreateDownload(info, cachePath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	peerID := selfPeerID()
	peerSet, updates, err := announceToTrackers(ctx, info, dlModel, peerID)
	if err != nil {
		return err
	}

	dlModel.Status = models.DownloadInProgress
	mainDB.UpdateDownload(dlModel)

	log.Info().Msgf("Found %d peers for download", len(peerSet))
	if len(peerSet) == 0 {
		log.Warn().Msg("No peers found for download")
		return nil
	}

	downloadPath := filepath.Join(config.Main.DownloadDir, info.Name)
	if err := os.MkdirAll(downloadPath, os.ModePerm); err != nil {
		failDownload(dlModel, fmt.Errorf("failed to create download directory: %w", err))
		return err
	}

	fileSink, err := sink.NewFileSink(info, downloadPath)
	if err != nil {
		failDownload(dlModel, err)
		return err
	}
	defer fileSink.Close()

	log.Info().Msg("Starting download of pieces")
	if err := runScheduler(ctx, info, peerSet, peerID, fileSink, dlModel, updates); err != nil {
		failDownload(dlModel, err)
		return err
	}

	dlModel.Status = models.DownloadComplete
	dlModel.Progress = 100
	dlModel.CompletedAt = time.Now().Unix()
	mainDB.UpdateDownload(dlModel)

	log.Info().Msg("Download completed successfully")
	return nil
}

func failDownload(dlModel *models.Download, err error) {
	dlModel.Status = models.DownloadError
	dlModel.LastError = err.Error()
	mainDB.UpdateDownload(dlModel)
}

// announceToTrackers contacts every tracker in info.Announce concurrently
// and merges their peer sets, deduplicated by address. Grounded on
// gtorrent's original per-tracker goroutine fan-out in DownloadTorrent.
//
// Per spec.md §4.7, every tracker that answers the first announce gets a
// tracker.Heartbeat spawned against ctx: it keeps re-announcing on its own
// interval (with backoff on failure) for as long as the download runs, and
// every refreshed result is forwarded onto the returned channel so
// runScheduler can dial newly discovered peers into the running download.
func announceToTrackers(ctx context.Context, info *torrentfile.Info, dlModel *models.Download, peerID [20]byte) (map[string]tracker.PeerAddr, <-chan tracker.AnnounceResult, error) {
	clients := make([]tracker.Client, 0, len(info.Announce))
	for _, announce := range info.Announce {
		c, err := tracker.NewClient(announce)
		if err != nil {
			log.Warn().Err(err).Str("tracker", announce).Msg("failed to create tracker client, skipping")
			continue
		}
		clients = append(clients, c)
	}
	if len(clients) == 0 {
		return nil, nil, fmt.Errorf("no valid trackers found")
	}

	params := tracker.AnnounceParams{
		InfoHash: info.InfoHash,
		PeerID:   peerID,
		Port:     6881,
		Left:     info.Length,
	}

	var mu sync.Mutex
	peers := make(map[string]tracker.PeerAddr)
	var wg sync.WaitGroup

	updates := make(chan tracker.AnnounceResult)

	for i, c := range clients {
		wg.Add(1)
		go func(i int, c tracker.Client) {
			defer wg.Done()
			trackerModel := &dlModel.Trackers[i]

			log.Info().Str("tracker", c.URL()).Msg("announcing")
			result, err := c.Announce(params)
			if err != nil {
				log.Error().Err(err).Str("tracker", c.URL()).Msg("announce failed")
				trackerModel.Status = models.TrackerError
				trackerModel.LastError = err.Error()
				mainDB.UpdateTracker(trackerModel)
				return
			}

			recordAnnounceResult(trackerModel, result)

			mu.Lock()
			for _, p := range result.Peers {
				if p.IP == "0.0.0.0" {
					continue
				}
				peers[p.String()] = p
			}
			mu.Unlock()

			mainDB.UpdateTracker(trackerModel)
			mainDB.CreatePeers(trackerModel, result.Peers)

			hb := tracker.NewHeartbeat(c, params)
			go hb.Run(ctx)
			go forwardHeartbeat(ctx, hb, trackerModel, updates)
		}(i, c)
	}
	wg.Wait()

	return peers, updates, nil
}

// forwardHeartbeat relays a tracker's periodic re-announce results onto the
// shared updates channel, persisting each refresh the same way the initial
// announce does.
func forwardHeartbeat(ctx context.Context, hb *tracker.Heartbeat, trackerModel *models.Tracker, updates chan<- tracker.AnnounceResult) {
	for {
		select {
		case <-ctx.Done():
			return
		case result, ok := <-hb.Updates():
			if !ok {
				return
			}
			recordAnnounceResult(trackerModel, &result)
			mainDB.UpdateTracker(trackerModel)
			mainDB.CreatePeers(trackerModel, result.Peers)

			select {
			case updates <- result:
			case <-ctx.Done():
				return
			}
		}
	}
}

func recordAnnounceResult(trackerModel *models.Tracker, result *tracker.AnnounceResult) {
	trackerModel.Status = models.TrackerComplete
	trackerModel.Seeders = result.Seeders
	trackerModel.Leechers = result.Leechers
	trackerModel.LastCheck = time.Now().Unix()
	trackerModel.Interval = int(result.Interval / time.Second)
}

// pieceScheduler holds the mutable state a running download's piece loop
// shares with the heartbeat-fed peer refresh goroutine: sessions, the
// bitfield-derived rarity queue, and the set of pieces still waiting for a
// provider to show up. Per spec.md §4.5, "in an incremental variant where
// sessions are added later, the set is re-derivable after each
// session-set change" — this is that incremental variant.
type pieceScheduler struct {
	mu          sync.Mutex
	sessions    []*peer.Session
	providers   []piece.BitfieldSource
	connected   map[string]bool
	queue       *piece.RarityQueue
	unavailable map[int]bool
}

func newPieceScheduler(sessions []*peer.Session, connected map[string]bool, numPieces int) *pieceScheduler {
	providers := make([]piece.BitfieldSource, 0, len(sessions))
	for _, s := range sessions {
		providers = append(providers, s.Bitfield)
	}

	available, unavailable := piece.PartitionByAvailability(numPieces, providers)
	s := &pieceScheduler{
		sessions:    sessions,
		providers:   providers,
		connected:   connected,
		queue:       piece.NewRarityQueue(available, providers),
		unavailable: make(map[int]bool, len(unavailable)),
	}
	for _, idx := range unavailable {
		s.unavailable[idx] = true
	}
	return s
}

// addSession folds a newly dialed session into the scheduler: its bitfield
// becomes a new provider, and any piece previously parked in unavailable
// because nothing had it gets moved into the rarity queue.
func (s *pieceScheduler) addSession(sess *peer.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions = append(s.sessions, sess)
	s.providers = append(s.providers, sess.Bitfield)

	for _, idx := range s.queue.Indices() {
		if sess.Bitfield.Has(idx) {
			s.queue.OnHave(idx)
		}
	}
	for idx := range s.unavailable {
		if sess.Bitfield.Has(idx) {
			delete(s.unavailable, idx)
			s.queue.Requeue(idx, 1)
		}
	}
}

// pop returns the next rarest piece index and a snapshot of the sessions
// currently available to download it from.
func (s *pieceScheduler) pop() (int, []*peer.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.queue.Pop()
	if !ok {
		return 0, nil, false
	}
	sessions := make([]*peer.Session, len(s.sessions))
	copy(sessions, s.sessions)
	return idx, sessions, true
}

// outstanding reports pieces left unsatisfied after the queue has drained:
// anything still parked with zero providers.
func (s *pieceScheduler) outstanding() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, 0, len(s.unavailable))
	for idx := range s.unavailable {
		out = append(out, idx)
	}
	return out
}

func (s *pieceScheduler) sessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *pieceScheduler) closeSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		sess.Close()
	}
}

// refreshFromHeartbeat dials any addresses in a refreshed peer set that
// aren't already connected and folds successful sessions into sched. Run
// as a background goroutine for the lifetime of runScheduler so heartbeat
// re-announces (spec.md §4.7) can bring previously-unavailable pieces into
// reach before the scheduler gives up on them.
func refreshFromHeartbeat(ctx context.Context, updates <-chan tracker.AnnounceResult, info *torrentfile.Info, peerID [20]byte, sched *pieceScheduler) {
	for {
		select {
		case <-ctx.Done():
			return
		case result, ok := <-updates:
			if !ok {
				return
			}
			for _, p := range result.Peers {
				if p.IP == "0.0.0.0" {
					continue
				}
				if sched.sessionCount() >= config.Main.MaxPeers {
					break
				}
				addr := p.String()

				sched.mu.Lock()
				already := sched.connected[addr]
				if !already {
					sched.connected[addr] = true
				}
				sched.mu.Unlock()
				if already {
					continue
				}

				s, err := peer.Dial(ctx, addr, info.InfoHash, peerID, info.NumPieces(), config.Main.DialTimeout, config.Main.HandshakeTimeout)
				if err != nil {
					log.Debug().Err(err).Str("addr", addr).Msg("heartbeat peer dial failed")
					continue
				}
				log.Info().Str("addr", addr).Str("session", s.ID.String()).Msg("heartbeat-discovered peer session established")
				sched.addSession(s)
			}
		}
	}
}

// runScheduler opens up to config.Main.MaxPeers sessions from peerSet,
// builds the rarity-ordered piece queue, and downloads every piece to
// completion, persisting progress as it goes. Per spec.md §7, verification
// failure and scheduling exhaustion are both fatal: runScheduler aborts
// the whole download naming the offending piece, rather than retrying it
// forever.
func runScheduler(ctx context.Context, info *torrentfile.Info, peerSet map[string]tracker.PeerAddr, peerID [20]byte, dst sink.Sink, dlModel *models.Download, updates <-chan tracker.AnnounceResult) error {
	connected := make(map[string]bool, len(peerSet))
	for addr := range peerSet {
		connected[addr] = true
	}
	sessions := dialSessions(ctx, peerSet, info, peerID)
	if len(sessions) == 0 {
		return fmt.Errorf("failed to establish any peer session")
	}

	sched := newPieceScheduler(sessions, connected, info.NumPieces())
	defer sched.closeSessions()

	go refreshFromHeartbeat(ctx, updates, info, peerID, sched)

	completed := 0
	for {
		idx, sessionsSnapshot, ok := sched.pop()
		if !ok {
			break
		}

		d := piece.Descriptor{Index: idx, Length: info.PieceLen(idx), Hash: info.Pieces[idx]}
		data, err := piece.Download(ctx, d, sessionsSnapshot, config.Main.BlockRequestTimeout)
		if err != nil {
			if errors.Is(err, piece.ErrVerificationFailed) {
				return fmt.Errorf("aborting download: piece %d failed verification: %w", idx, err)
			}
			if errors.Is(err, piece.ErrSchedulingExhausted) {
				return fmt.Errorf("aborting download: piece %d has no remaining providers: %w", idx, err)
			}
			return fmt.Errorf("aborting download: piece %d: %w", idx, err)
		}

		if _, err := dst.WriteAt(int64(idx)*info.PieceLength, data); err != nil {
			return fmt.Errorf("writing piece %d: %w", idx, err)
		}

		if err := mainDB.MarkPieceComplete(dlModel, idx); err != nil {
			log.Warn().Err(err).Int("piece", idx).Msg("failed to persist piece completion")
		}

		completed++
		dlModel.Progress = completed * 100 / info.NumPieces()
		mainDB.UpdateDownload(dlModel)

		log.Info().Int("piece", idx).Int("completed", completed).Int("total", info.NumPieces()).Msg("piece verified")
	}

	if missing := sched.outstanding(); len(missing) > 0 {
		return fmt.Errorf("download cannot complete: %d piece(s) with no providers, including piece %d", len(missing), missing[0])
	}
	if completed != info.NumPieces() {
		return fmt.Errorf("download incomplete: %d/%d pieces verified", completed, info.NumPieces())
	}
	return nil
}
