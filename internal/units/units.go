// Package units names the parameter units the node firmware relies on
// and provides typed accessors over the raw store. Numeric units are
// 4-byte little-endian words; the link key and device UUID are raw
// 16-byte payloads.
package units

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"

	"past/internal/past"
)

// Well-known unit ids. The on-flash layout only knows the numbers; the
// meanings belong to the firmware and to the provisioning tool.
const (
	NodeID     uint16 = 1 // radio node id
	NetworkID  uint16 = 2 // radio network id
	GatewayID  uint16 = 3 // gateway node id
	MaxPower   uint16 = 4 // maximum TX power, dBm
	LinkKey    uint16 = 5 // 16-byte symmetric link key
	TempCal    uint16 = 6 // temperature calibration offset, millidegrees
	DeviceUUID uint16 = 7 // 16-byte device UUID
)

// KeySize is the link key length in bytes.
const KeySize = 16

// Name returns the human-readable name of a well-known unit, or "" for
// ids outside the reserved range.
func Name(id uint16) string {
	switch id {
	case NodeID:
		return "node id"
	case NetworkID:
		return "network id"
	case GatewayID:
		return "gateway id"
	case MaxPower:
		return "max power"
	case LinkKey:
		return "link key"
	case TempCal:
		return "temp cal"
	case DeviceUUID:
		return "device uuid"
	default:
		return ""
	}
}

// ReadU32 reads a 4-byte numeric unit.
func ReadU32(s *past.Store, id uint16) (uint32, error) {
	payload, err := s.ReadUnit(id)
	if err != nil {
		return 0, err
	}
	if len(payload) != 4 {
		return 0, fmt.Errorf("unit %d: expected 4-byte word, got %d bytes", id, len(payload))
	}
	return binary.LittleEndian.Uint32(payload), nil
}

// WriteU32 writes a 4-byte numeric unit.
func WriteU32(s *past.Store, id uint16, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	return s.WriteUnit(id, buf[:])
}

// Key reads the 16-byte link key.
func Key(s *past.Store) ([]byte, error) {
	payload, err := s.ReadUnit(LinkKey)
	if err != nil {
		return nil, err
	}
	if len(payload) != KeySize {
		return nil, fmt.Errorf("link key: expected %d bytes, got %d", KeySize, len(payload))
	}
	return payload, nil
}

// SetKey writes the 16-byte link key.
func SetKey(s *past.Store, key []byte) error {
	if len(key) != KeySize {
		return fmt.Errorf("link key: expected %d bytes, got %d", KeySize, len(key))
	}
	return s.WriteUnit(LinkKey, key)
}

// Device reads the device UUID.
func Device(s *past.Store) (uuid.UUID, error) {
	payload, err := s.ReadUnit(DeviceUUID)
	if err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.FromBytes(payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("device uuid: %w", err)
	}
	return id, nil
}

// SetDevice writes the device UUID.
func SetDevice(s *past.Store, id uuid.UUID) error {
	return s.WriteUnit(DeviceUUID, id[:])
}

// TempCalibration reads the signed calibration offset.
func TempCalibration(s *past.Store) (int32, error) {
	v, err := ReadU32(s, TempCal)
	return int32(v), err
}

// SetTempCalibration writes the signed calibration offset.
func SetTempCalibration(s *past.Store, offset int32) error {
	return WriteU32(s, TempCal, uint32(offset))
}
