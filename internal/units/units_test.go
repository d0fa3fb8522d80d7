package units

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/uuid"

	"past/internal/flashdev"
	"past/internal/past"
)

func newTestStore(t *testing.T) *past.Store {
	t.Helper()
	s, err := past.New(flashdev.NewMem(1024))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Format(); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestU32RoundTrip(t *testing.T) {
	s := newTestStore(t)
	if err := WriteU32(s, NodeID, 0xDEADBEEF); err != nil {
		t.Fatal(err)
	}
	got, err := ReadU32(s, NodeID)
	if err != nil {
		t.Fatal(err)
	}
	if got != 0xDEADBEEF {
		t.Fatalf("got %#x, want 0xDEADBEEF", got)
	}

	// The on-flash word is little-endian, matching the MCU.
	raw, err := s.ReadUnit(NodeID)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(raw, []byte{0xEF, 0xBE, 0xAD, 0xDE}) {
		t.Fatalf("raw = %x, want efbeadde", raw)
	}
}

func TestReadU32WrongSize(t *testing.T) {
	s := newTestStore(t)
	if err := s.WriteUnit(NodeID, []byte{1, 2}); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadU32(s, NodeID); err == nil {
		t.Fatal("expected an error for a short payload")
	}
}

func TestReadU32Missing(t *testing.T) {
	s := newTestStore(t)
	if _, err := ReadU32(s, GatewayID); !errors.Is(err, past.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestKeyRoundTrip(t *testing.T) {
	s := newTestStore(t)
	key := bytes.Repeat([]byte{0x5A}, KeySize)
	if err := SetKey(s, key); err != nil {
		t.Fatal(err)
	}
	got, err := Key(s)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, key) {
		t.Fatalf("key = %x, want %x", got, key)
	}
}

func TestSetKeyRejectsWrongLength(t *testing.T) {
	s := newTestStore(t)
	if err := SetKey(s, []byte("short")); err == nil {
		t.Fatal("expected an error for a short key")
	}
}

func TestDeviceUUIDRoundTrip(t *testing.T) {
	s := newTestStore(t)
	id := uuid.New()
	if err := SetDevice(s, id); err != nil {
		t.Fatal(err)
	}
	got, err := Device(s)
	if err != nil {
		t.Fatal(err)
	}
	if got != id {
		t.Fatalf("uuid = %s, want %s", got, id)
	}
}

func TestTempCalibrationSigned(t *testing.T) {
	s := newTestStore(t)
	if err := SetTempCalibration(s, -1500); err != nil {
		t.Fatal(err)
	}
	got, err := TempCalibration(s)
	if err != nil {
		t.Fatal(err)
	}
	if got != -1500 {
		t.Fatalf("offset = %d, want -1500", got)
	}
}

func TestName(t *testing.T) {
	if Name(LinkKey) != "link key" {
		t.Fatalf("Name(LinkKey) = %q", Name(LinkKey))
	}
	if Name(999) != "" {
		t.Fatalf("Name(999) = %q, want empty", Name(999))
	}
}
