package main

// protorunes-indexer is the command line entrypoint for running the
// deterministic Protorunes indexing pipeline over a sequence of raw,
// consensus-encoded Bitcoin blocks. It wires together the configuration
// loader, the KV store, the atomic pointer, the protocol registry and the
// Indexer itself, then feeds blocks to Indexer.IndexBlock one at a time.

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"

	"github.com/btcsuite/btcd/wire"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/protorunes/indexer/cmd/config"
	"github.com/protorunes/indexer/core"
)

var (
	envName string
	runID   = uuid.New().String()
	logger  = logrus.WithField("run_id", runID)
)

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")

	root := &cobra.Command{
		Use:   "protorunes-indexer",
		Short: "Deterministic indexer for the Protorunes meta-protocol",
	}
	root.PersistentFlags().StringVar(&envName, "env", "", "configuration overlay to merge over cmd/config/default.yaml")

	root.AddCommand(indexCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		logger.Fatalf("command failed: %v", err)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print build metadata",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("protorunes-indexer dev (config %s)\n", pkgconfigVersion())
		},
	}
}

func indexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "index [block-hex-file ...]",
		Short: "index one or more raw blocks, given as files of hex-encoded consensus bytes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config.LoadConfig(envName)
			cfg := config.AppConfig

			level, err := logrus.ParseLevel(cfg.Logging.Level)
			if err != nil {
				level = logrus.InfoLevel
			}
			logrus.SetLevel(level)
			if cfg.Logging.File != "" {
				f, err := os.OpenFile(cfg.Logging.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
				if err != nil {
					return fmt.Errorf("open log file: %w", err)
				}
				defer f.Close()
				logrus.SetOutput(f)
			}

			store := core.NewMemKV()
			registry := core.NewProtocolRegistry()
			for _, tag := range cfg.Protocols.IndexableTags {
				n, err := strconv.ParseUint(tag, 10, 64)
				if err != nil {
					logger.Warnf("skipping malformed indexable protocol tag %q: %v", tag, err)
					continue
				}
				registry.AddIndexableProtocol(core.U128FromUint64(n))
			}

			etchings := core.NewEtchingIndex()
			indexer := core.NewIndexer(store, registry, etchings)
			atomic := core.NewAtomicPointer(store)

			height := cfg.Bitcoin.StartHeight
			for _, path := range args {
				block, err := readBlockFile(path)
				if err != nil {
					return fmt.Errorf("read block %s: %w", path, err)
				}
				logger.WithFields(logrus.Fields{
					"height": height,
					"file":   path,
					"txs":    len(block.Transactions),
				}).Info("indexing block")

				if err := indexer.IndexBlock(height, block, atomic); err != nil {
					return fmt.Errorf("index block %s at height %d: %w", path, height, err)
				}
				height++
			}
			return nil
		},
	}
}

func readBlockFile(path string) (*wire.MsgBlock, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	decoded := make([]byte, hex.DecodedLen(len(raw)))
	n, err := hex.Decode(decoded, trimTrailingNewline(raw))
	if err != nil {
		return nil, fmt.Errorf("hex decode: %w", err)
	}
	var block wire.MsgBlock
	if err := block.Deserialize(bytes.NewReader(decoded[:n])); err != nil {
		return nil, fmt.Errorf("deserialize block: %w", err)
	}
	return &block, nil
}

func trimTrailingNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}

func pkgconfigVersion() string {
	return "v0.1.0"
}
