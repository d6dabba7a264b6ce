package models

import "gorm.io/gorm"

type Download struct {
	gorm.Model
	InfoHash        string `gorm:"uniqueIndex"`
	Name            string
	TorrentFilename string
	Status          DownloadStatus
	DownloadDir     string
	TotalSize       int64
	DownloadedSize  int64
	// Progress is the percentage (0-100) of pieces verified so far.
	Progress int
	// LastError records the most recent fatal error for this download.
	LastError string
	// CompletedAt is the unix timestamp of the last piece's verification.
	CompletedAt int64
	// PieceCount is P, the number of pieces in the descriptor.
	PieceCount int
	// CompletedPieces is a packed bitfield (same layout as bitfield.Bitfield)
	// recording which pieces have verified. It lets a restarted process skip
	// already-verified pieces; this module only records completion here, it
	// does not itself drive resume-from-disk re-entry (out of scope).
	CompletedPieces []byte

	Peers    []Peer
	Trackers []Tracker
}

type DownloadStatus = string

const (
	DownloadInvalid    DownloadStatus = "invalid"
	DownloadInProgress DownloadStatus = "downloading"
	DownloadComplete   DownloadStatus = "complete"
	DownloadError      DownloadStatus = "error"
	DownloadPaused     DownloadStatus = "paused"
)

type Peer struct {
	ID           uint `gorm:"primaryKey"`
	DownloadID   uint
	TrackerID    uint `gorm:"foreignKey:Trackers"`
	IP           string
	Port         uint16
	IsSeeder     bool
	IsStopped    bool
	IsChoked     bool
	IsInterested bool
}

type Tracker struct {
	ID         uint `gorm:"primaryKey"`
	DownloadID uint
	Announce   string
	Status     TrackerStatus
	LastCheck  int64
	LastError  string
	NextCheck  int64
	// for http tracker
	Interval    int
	MinInterval int
	Seeders     int
	Leechers    int

	// for udp tracker
	ConnectionID  int64
	TransactionID int
}

type TrackerStatus = string

const (
	TrackerInvalid    TrackerStatus = "invalid"
	TrackerAnnouncing TrackerStatus = "announcing"
	TrackerError      TrackerStatus = "error"
	TrackerComplete   TrackerStatus = "complete"
)
