// Package db persists resume-relevant state (download/tracker/peer rows and
// a completed-pieces bitmap) via gorm + sqlite, grounded on gtorrent's
// original db/database.go. It records progress; it does not drive
// resume-from-disk re-entry (out of scope, see spec.md §1).
package db

import (
	"encoding/hex"
	"fmt"

	"gtorrent/config"
	"gtorrent/db/models"
	"gtorrent/torrentfile"
	"gtorrent/tracker"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func Init() (*Database, error) {
	gdb, err := gorm.Open(sqlite.Open(config.Main.DB.Path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("db: opening sqlite: %w", err)
	}

	if err := gdb.AutoMigrate(&models.Download{}, &models.Peer{}, &models.Tracker{}); err != nil {
		return nil, fmt.Errorf("db: running migrations: %w", err)
	}

	return &Database{db: gdb}, nil
}

func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreateDownload returns the existing Download row for info.InfoHash, or
// creates a new one (plus its tracker rows) if none exists yet.
func (d *Database) CreateDownload(info *torrentfile.Info, torrentPath string) (*models.Download, error) {
	infoHash := hex.EncodeToString(info.InfoHash[:])

	download := &models.Download{}
	if tx := d.db.Where("info_hash = ?", infoHash).First(download); tx.Error == nil {
		return download, d.db.Preload("Trackers").Preload("Peers").First(download).Error
	}

	download = &models.Download{
		InfoHash:        infoHash,
		Name:            info.Name,
		TorrentFilename: torrentPath,
		Status:          models.DownloadInProgress,
		DownloadDir:     config.Main.DownloadDir,
		TotalSize:       info.Length,
		PieceCount:      info.NumPieces(),
		CompletedPieces: make([]byte, (info.NumPieces()+7)/8),
	}
	if err := d.db.Create(download).Error; err != nil {
		return nil, err
	}

	for _, announce := range info.Announce {
		t := &models.Tracker{
			DownloadID: download.ID,
			Announce:   announce,
			Status:     models.TrackerAnnouncing,
		}
		if err := d.db.Create(t).Error; err != nil {
			return nil, err
		}
	}

	return download, d.db.Preload("Trackers").Preload("Peers").First(download).Error
}

func (d *Database) UpdateTracker(t *models.Tracker) error {
	return d.db.Save(t).Error
}

// MarkPieceComplete sets bit i of download.CompletedPieces and saves the
// row, matching the packed bitfield layout of package bitfield.
func (d *Database) MarkPieceComplete(download *models.Download, i int) error {
	byteIndex := i / 8
	if byteIndex >= len(download.CompletedPieces) {
		return fmt.Errorf("db: piece index %d out of range", i)
	}
	download.CompletedPieces[byteIndex] |= 0x80 >> uint(i%8)
	return d.db.Save(download).Error
}

func (d *Database) CreatePeers(t *models.Tracker, peers []tracker.PeerAddr) error {
	for _, p := range peers {
		if err := d.CreatePeer(t, p); err != nil {
			return err
		}
	}
	return nil
}

func (d *Database) CreatePeer(t *models.Tracker, p tracker.PeerAddr) error {
	newPeer := &models.Peer{
		DownloadID: t.DownloadID,
		TrackerID:  t.ID,
		IP:         p.IP,
		Port:       p.Port,
		IsStopped:  true,
	}

	existing := &models.Peer{}
	result := d.db.Where("download_id = ? AND ip = ? AND port = ?", t.DownloadID, p.IP, p.Port).First(existing)
	if result.Error == nil {
		newPeer.ID = existing.ID
		return d.db.Save(newPeer).Error
	}
	return d.db.Create(newPeer).Error
}
