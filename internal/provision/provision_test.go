package provision

import (
	"bytes"
	"testing"

	"past/internal/flashdev"
	"past/internal/past"
	"past/internal/units"
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

func TestDeriveKeyDeterministic(t *testing.T) {
	a, err := DeriveKey([]byte("correct horse"), 7)
	if err != nil {
		t.Fatal(err)
	}
	b, err := DeriveKey([]byte("correct horse"), 7)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Fatal("same passphrase and network must derive the same key")
	}
	if len(a) != units.KeySize {
		t.Fatalf("key length = %d, want %d", len(a), units.KeySize)
	}
}

func TestDeriveKeySaltedByNetwork(t *testing.T) {
	a, err := DeriveKey([]byte("correct horse"), 1)
	if err != nil {
		t.Fatal(err)
	}
	b, err := DeriveKey([]byte("correct horse"), 2)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(a, b) {
		t.Fatal("different networks must not share a derived key")
	}
}

func TestRandomKeyUnique(t *testing.T) {
	a, err := RandomKey()
	if err != nil {
		t.Fatal(err)
	}
	b, err := RandomKey()
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(a, b) {
		t.Fatal("two random keys should not collide")
	}
}

func TestApplyWritesAllUnits(t *testing.T) {
	s := newTestStore(t)
	res, err := Apply(s, Params{
		NodeID:    42,
		NetworkID: 7,
		GatewayID: 1,
		MaxPower:  13,
	})
	if err != nil {
		t.Fatal(err)
	}

	for id, want := range map[uint16]uint32{
		units.NodeID:    42,
		units.NetworkID: 7,
		units.GatewayID: 1,
		units.MaxPower:  13,
	} {
		got, err := units.ReadU32(s, id)
		if err != nil {
			t.Fatalf("unit %d: %v", id, err)
		}
		if got != want {
			t.Fatalf("unit %d = %d, want %d", id, got, want)
		}
	}

	key, err := units.Key(s)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(key, res.Key) {
		t.Fatal("stored key differs from the reported one")
	}

	dev, err := units.Device(s)
	if err != nil {
		t.Fatal(err)
	}
	if dev != res.Device {
		t.Fatalf("stored uuid %s differs from reported %s", dev, res.Device)
	}
}

func TestApplyPassphraseDerivesKey(t *testing.T) {
	s := newTestStore(t)
	res, err := Apply(s, Params{
		NodeID:     1,
		NetworkID:  9,
		Passphrase: []byte("hunter2"),
	})
	if err != nil {
		t.Fatal(err)
	}
	want, err := DeriveKey([]byte("hunter2"), 9)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(res.Key, want) {
		t.Fatal("passphrase provisioning should use the derived key")
	}
}
