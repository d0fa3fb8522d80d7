// Command past manipulates a node's parameter store image: the same
// format/read/write/erase/dump commands the firmware console offers,
// plus host-only provisioning and export/import.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"past/internal/config"
	"past/internal/flashdev"
	"past/internal/flashdev/boltdev"
	"past/internal/flashdev/filedev"
	"past/internal/logging"
	"past/internal/past"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: past [flags] <command> [args]

Commands:
  format                    erase both regions and write a fresh header
  read <unit>               print a unit's payload
  write <unit> <value>      write a unit (0x-prefixed hex or raw string)
  erase <unit>              tombstone a unit
  dump [size]               hex dump both regions
  info                      show active region, generation, live units
  provision [flags]         write node/network/gateway/power/key/uuid units
  export <file>             write all live units to a TOML file
  import <file>             write units from a TOML file

Flags:
`)
	flag.PrintDefaults()
}

func main() {
	configPath := flag.String("config", "", "path to config file")
	imagePath := flag.String("image", "", "flash image path (overrides config)")
	backend := flag.String("backend", "", "image backend: file or bolt (overrides config)")
	regionSize := flag.Uint("region-size", 0, "region size in bytes (overrides config)")
	logLevel := flag.String("log-level", "", "log level (overrides config)")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *imagePath != "" {
		cfg.Image.Path = *imagePath
	}
	if *backend != "" {
		cfg.Image.Backend = *backend
	}
	if *regionSize != 0 {
		cfg.Image.RegionSize = uint32(*regionSize)
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	logging.Init(cfg.Log.Level, cfg.Log.Format)

	dev, closeDev, err := openDevice(cfg)
	if err != nil {
		log.Fatalf("image: %v", err)
	}
	defer closeDev()

	store, err := past.New(dev)
	if err != nil {
		log.Fatalf("store: %v", err)
	}

	if err := runCommand(store, dev, cfg, flag.Arg(0), flag.Args()[1:]); err != nil {
		log.Fatalf("%s: %v", flag.Arg(0), err)
	}
}

func openDevice(cfg *config.Config) (flashdev.Device, func(), error) {
	path := config.ExpandHome(cfg.Image.Path)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, nil, err
	}

	switch cfg.Image.Backend {
	case "bolt":
		dev, err := boltdev.Open(path, cfg.Image.RegionSize)
		if err != nil {
			return nil, nil, err
		}
		return dev, func() { dev.Close() }, nil
	default:
		dev, err := filedev.Open(path, cfg.Image.RegionSize)
		if err != nil {
			return nil, nil, err
		}
		return dev, func() { dev.Close() }, nil
	}
}

// initStore recovers the store and maps ErrCorruptStore to an
// operator-friendly hint.
func initStore(store *past.Store) error {
	if err := store.Init(); err != nil {
		if errors.Is(err, past.ErrCorruptStore) {
			return fmt.Errorf("image is not formatted; run 'past format' first")
		}
		return err
	}
	return nil
}

var stdout io.Writer = os.Stdout
