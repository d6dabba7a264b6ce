package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	CacheDir    string
	DownloadDir string
	DB          *DBConfig

	// MaxPeers bounds the number of concurrently open peer sessions
	// (spec.md §4.6/§5, default 5).
	MaxPeers int
	// BlockRequestTimeout is the per-block request timeout (spec.md §9
	// open question (c), default 30s).
	BlockRequestTimeout time.Duration
	// HandshakeTimeout bounds the initial handshake exchange.
	HandshakeTimeout time.Duration
	// DialTimeout bounds opening the TCP connection to a peer.
	DialTimeout time.Duration
}

func NewAppConfig() *AppConfig {
	cacheDir := os.Getenv("CACHE_DIR")
	if cacheDir == "" {
		cacheDir = "storage/cache"
	}

	downloadDir := os.Getenv("DOWNLOAD_DIR")
	if downloadDir == "" {
		downloadDir = "storage/downloads"
	}

	dbConf := NewDBConfig()

	return &AppConfig{
		CacheDir:            cacheDir,
		DownloadDir:         downloadDir,
		DB:                  dbConf,
		MaxPeers:            envInt("MAX_PEERS", 5),
		BlockRequestTimeout: envSeconds("BLOCK_TIMEOUT_SECONDS", 30),
		HandshakeTimeout:    envSeconds("HANDSHAKE_TIMEOUT_SECONDS", 5),
		DialTimeout:         envSeconds("DIAL_TIMEOUT_SECONDS", 10),
	}
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envSeconds(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Second
}

var Main *AppConfig

func init() {
	_ = godotenv.Load()
	Main = NewAppConfig()
}
