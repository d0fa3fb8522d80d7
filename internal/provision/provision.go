// Package provision writes a node's first-boot parameter set: radio
// addressing, TX power, the link key, and a device UUID.
package provision

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"

	"past/internal/logging"
	"past/internal/past"
	"past/internal/units"
)

var logger = logging.For("provision")

// Params is everything Apply writes. When Passphrase is empty a random
// link key is generated instead of a derived one.
type Params struct {
	NodeID     uint32
	NetworkID  uint32
	GatewayID  uint32
	MaxPower   uint32
	Passphrase []byte
}

// Result reports what was provisioned.
type Result struct {
	Device uuid.UUID
	Key    []byte
}

// DeriveKey stretches an operator passphrase into a link key with
// HKDF-SHA256. The network id goes into the salt so two networks
// provisioned from the same passphrase never share a key.
func DeriveKey(passphrase []byte, networkID uint32) ([]byte, error) {
	salt := make([]byte, 0, 16)
	salt = append(salt, "past-link-key"...)
	salt = binary.LittleEndian.AppendUint32(salt, networkID)

	key := make([]byte, units.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, passphrase, salt, nil), key); err != nil {
		return nil, fmt.Errorf("deriving link key: %w", err)
	}
	return key, nil
}

// RandomKey generates a random link key.
func RandomKey() ([]byte, error) {
	key := make([]byte, units.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generating link key: %w", err)
	}
	return key, nil
}

// Apply writes the full parameter set to the store. The device UUID is
// freshly generated on every call; re-provisioning a node gives it a new
// identity.
func Apply(s *past.Store, p Params) (Result, error) {
	key, err := keyFor(p)
	if err != nil {
		return Result{}, err
	}

	dev := uuid.New()
	writes := []struct {
		id uint16
		v  uint32
	}{
		{units.NodeID, p.NodeID},
		{units.NetworkID, p.NetworkID},
		{units.GatewayID, p.GatewayID},
		{units.MaxPower, p.MaxPower},
	}
	for _, w := range writes {
		if err := units.WriteU32(s, w.id, w.v); err != nil {
			return Result{}, fmt.Errorf("writing %s: %w", units.Name(w.id), err)
		}
	}
	if err := units.SetKey(s, key); err != nil {
		return Result{}, fmt.Errorf("writing link key: %w", err)
	}
	if err := units.SetDevice(s, dev); err != nil {
		return Result{}, fmt.Errorf("writing device uuid: %w", err)
	}

	logger.Info("node provisioned",
		"device", dev,
		"node_id", p.NodeID,
		"network_id", p.NetworkID,
		"gateway_id", p.GatewayID)
	return Result{Device: dev, Key: key}, nil
}

func keyFor(p Params) ([]byte, error) {
	if len(p.Passphrase) > 0 {
		return DeriveKey(p.Passphrase, p.NetworkID)
	}
	return RandomKey()
}
