package main

import (
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"golang.org/x/term"

	"past/internal/config"
	"past/internal/flashdev"
	"past/internal/past"
	"past/internal/provision"
	"past/internal/units"
)

func runCommand(store *past.Store, dev flashdev.Device, cfg *config.Config, cmd string, args []string) error {
	switch cmd {
	case "format":
		return cmdFormat(store)
	case "read":
		return cmdRead(store, args)
	case "write":
		return cmdWrite(store, args)
	case "erase":
		return cmdErase(store, args)
	case "dump":
		return cmdDump(dev, args)
	case "info":
		return cmdInfo(store)
	case "provision":
		return cmdProvision(store, cfg, args)
	case "export":
		return cmdExport(store, args)
	case "import":
		return cmdImport(store, args)
	default:
		return fmt.Errorf("unknown command (see 'past -h')")
	}
}

func parseUnit(arg string) (uint16, error) {
	id, err := strconv.ParseUint(arg, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("bad unit id %q: %v", arg, err)
	}
	return uint16(id), nil
}

func cmdFormat(store *past.Store) error {
	if err := store.Format(); err != nil {
		return err
	}
	fmt.Fprintln(stdout, "formatted")
	return nil
}

func cmdRead(store *past.Store, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: past read <unit>")
	}
	id, err := parseUnit(args[0])
	if err != nil {
		return err
	}
	if err := initStore(store); err != nil {
		return err
	}
	payload, err := store.ReadUnit(id)
	if errors.Is(err, past.ErrNotFound) {
		return fmt.Errorf("unit %d not found", id)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "unit %d (%d bytes):\n%s", id, len(payload), hex.Dump(payload))
	return nil
}

func cmdWrite(store *past.Store, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: past write <unit> <0xhex|string>")
	}
	id, err := parseUnit(args[0])
	if err != nil {
		return err
	}
	payload, err := parseValue(args[1])
	if err != nil {
		return err
	}
	if err := initStore(store); err != nil {
		return err
	}
	if err := store.WriteUnit(id, payload); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "wrote unit %d (%d bytes)\n", id, len(payload))
	return nil
}

func parseValue(arg string) ([]byte, error) {
	if strings.HasPrefix(arg, "0x") || strings.HasPrefix(arg, "0X") {
		payload, err := hex.DecodeString(arg[2:])
		if err != nil {
			return nil, fmt.Errorf("bad hex value: %v", err)
		}
		return payload, nil
	}
	return []byte(arg), nil
}

func cmdErase(store *past.Store, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: past erase <unit>")
	}
	id, err := parseUnit(args[0])
	if err != nil {
		return err
	}
	if err := initStore(store); err != nil {
		return err
	}
	if err := store.EraseUnit(id); err != nil {
		if errors.Is(err, past.ErrNotFound) {
			return fmt.Errorf("unit %d not found", id)
		}
		return err
	}
	fmt.Fprintf(stdout, "erased unit %d\n", id)
	return nil
}

// cmdDump works on the raw device and needs no valid store, matching the
// firmware's pastdump which is a debugging aid for broken images too.
func cmdDump(dev flashdev.Device, args []string) error {
	size := dev.RegionSize()
	if len(args) == 1 {
		n, err := strconv.ParseUint(args[0], 0, 32)
		if err != nil || n == 0 || uint32(n) > size {
			return fmt.Errorf("bad dump size %q", args[0])
		}
		size = uint32(n)
	}
	for region := 0; region < flashdev.NumRegions; region++ {
		buf, err := dev.Read(region, 0, size)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Region %d:\n%s\n", region, hex.Dump(buf))
	}
	return nil
}

func cmdInfo(store *past.Store) error {
	if err := initStore(store); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "active region : %d\n", store.ActiveRegion())
	fmt.Fprintf(stdout, "generation    : %d\n", store.Generation())
	fmt.Fprintf(stdout, "free bytes    : %d\n", store.FreeBytes())
	live := store.LiveUnits()
	fmt.Fprintf(stdout, "live units    : %d\n", len(live))
	for _, id := range live {
		payload, err := store.ReadUnit(id)
		if err != nil {
			return err
		}
		name := units.Name(id)
		if name == "" {
			name = "-"
		}
		fmt.Fprintf(stdout, "  %5d  %-12s %d bytes\n", id, name, len(payload))
	}
	return nil
}

func cmdProvision(store *past.Store, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("provision", flag.ContinueOnError)
	nodeID := fs.Uint("node", uint(cfg.Provision.NodeID), "node id")
	networkID := fs.Uint("network", uint(cfg.Provision.NetworkID), "network id")
	gatewayID := fs.Uint("gateway", uint(cfg.Provision.GatewayID), "gateway id")
	maxPower := fs.Uint("power", uint(cfg.Provision.MaxPower), "max TX power (dBm)")
	passphrase := fs.Bool("passphrase", false, "derive the link key from a passphrase instead of random")
	if err := fs.Parse(args); err != nil {
		return err
	}

	params := provision.Params{
		NodeID:    uint32(*nodeID),
		NetworkID: uint32(*networkID),
		GatewayID: uint32(*gatewayID),
		MaxPower:  uint32(*maxPower),
	}
	if *passphrase {
		pass, err := readPassphrase()
		if err != nil {
			return err
		}
		params.Passphrase = pass
	}

	if err := initStore(store); err != nil {
		return err
	}
	res, err := provision.Apply(store, params)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "provisioned node %d on network %d\n", params.NodeID, params.NetworkID)
	fmt.Fprintf(stdout, "device uuid : %s\n", res.Device)
	fmt.Fprintf(stdout, "link key    : %x\n", res.Key)
	return nil
}

func readPassphrase() ([]byte, error) {
	fmt.Fprint(os.Stderr, "Passphrase: ")
	pass, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("reading passphrase: %w", err)
	}
	if len(pass) == 0 {
		return nil, fmt.Errorf("empty passphrase")
	}
	return pass, nil
}

// exportFile is the TOML document written by export and read by import:
// a single [units] table mapping decimal unit ids to hex payloads.
type exportFile struct {
	Units map[string]string `toml:"units"`
}

func cmdExport(store *past.Store, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: past export <file>")
	}
	if err := initStore(store); err != nil {
		return err
	}

	doc := exportFile{Units: make(map[string]string)}
	for _, id := range store.LiveUnits() {
		payload, err := store.ReadUnit(id)
		if err != nil {
			return err
		}
		doc.Units[strconv.Itoa(int(id))] = hex.EncodeToString(payload)
	}

	f, err := os.Create(args[0])
	if err != nil {
		return err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(doc); err != nil {
		return fmt.Errorf("encoding export: %w", err)
	}
	fmt.Fprintf(stdout, "exported %d units to %s\n", len(doc.Units), args[0])
	return nil
}

func cmdImport(store *past.Store, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: past import <file>")
	}
	var doc exportFile
	if _, err := toml.DecodeFile(args[0], &doc); err != nil {
		return fmt.Errorf("decoding import: %w", err)
	}
	if err := initStore(store); err != nil {
		return err
	}

	for idStr, hexPayload := range doc.Units {
		id, err := parseUnit(idStr)
		if err != nil {
			return err
		}
		payload, err := hex.DecodeString(hexPayload)
		if err != nil {
			return fmt.Errorf("unit %d: bad hex payload: %v", id, err)
		}
		if err := store.WriteUnit(id, payload); err != nil {
			return fmt.Errorf("unit %d: %w", id, err)
		}
	}
	fmt.Fprintf(stdout, "imported %d units from %s\n", len(doc.Units), args[0])
	return nil
}
