package main

import (
	"gtorrent/config"
	"gtorrent/db"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog/log"
)

const VERSION = "0.1.0"

var CLI struct {
	Verify struct {
		Torrent     string `arg:"" help:"Torrent file to verify." type:"existingfile"`
		ContentPath string `arg:"" optional:"" help:"Path to the content files." type:"existingdir"`
	} `cmd:"" help:"Verify a torrent file."`
	Download struct {
		Torrent string `arg:"" help:"Torrent file to download."`
		// MaxPeers overrides config.Main.MaxPeers (default set by the
		// MAX_PEERS env var) for this run.
		MaxPeers int `name:"max-peers" help:"Maximum number of concurrent peer sessions (0 keeps the configured default)."`
		// BlockTimeout overrides config.Main.BlockRequestTimeout (default
		// set by the BLOCK_TIMEOUT_SECONDS env var) for this run.
		BlockTimeout time.Duration `name:"block-timeout" help:"Per-block request timeout, e.g. 30s (0 keeps the configured default)."`
	} `cmd:"" help:"Download a torrent file."`
}
var mainDB *db.Database

func main() {
	println("goTorrent v" + VERSION)
	initConfig()
	initLogging()
	defer shutdownLogging()
	ctx := kong.Parse(&CLI)
	cmd := ctx.Command()
	switch cmd {
	case "verify <torrent> <content-path>":
		err := VerifyTorrent(CLI.Verify.Torrent, CLI.Verify.ContentPath)
		if err != nil {
			log.Error().Err(err).Msg("Error verifying torrent")
			return
		}
		println("Torrent verified successfully.")
	case "download <torrent>":
		initDB()
		applyDownloadFlags()
		err := DownloadTorrent(CLI.Download.Torrent)
		if err != nil {
			log.Error().Err(err).Msg("Error downloading torrent")
			return
		}
	default:
		ctx.PrintUsage(false)
	}

}

// applyDownloadFlags overrides config.Main with any --max-peers/--block-timeout
// flags the user passed, leaving the env-var-derived defaults in place
// otherwise.
func applyDownloadFlags() {
	if CLI.Download.MaxPeers > 0 {
		config.Main.MaxPeers = CLI.Download.MaxPeers
	}
	if CLI.Download.BlockTimeout > 0 {
		config.Main.BlockRequestTimeout = CLI.Download.BlockTimeout
	}
}

func initConfig() {
	// create the cache directory
	if err := os.MkdirAll(config.Main.CacheDir, os.ModePerm); err != nil {
		log.Fatal().Err(err).Str("path", config.Main.CacheDir).Msg("Failed to create cache directory")
	}

	// create the download directory
	if err := os.MkdirAll(config.Main.DownloadDir, os.ModePerm); err != nil {
		log.Fatal().Err(err).Str("path", config.Main.DownloadDir).Msg("Failed to create download directory")
	}
}

func initDB() {
	var err error
	mainDB, err = db.Init()
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing database")
	}
}
