package past

import (
	"bytes"
	"log/slog"
	"testing"

	"past/internal/flashdev"
	"past/internal/logging"
)

func formattedRegion(t *testing.T, size uint32) (*flashdev.Mem, regionLog) {
	t.Helper()
	dev := flashdev.NewMem(size)
	if err := dev.Program(0, 0, encodeRegionHeader(1)); err != nil {
		t.Fatal(err)
	}
	return dev, regionLog{dev: dev, region: 0}
}

func TestRegionScanEmpty(t *testing.T) {
	_, log := formattedRegion(t, 256)
	res, err := log.scan()
	if err != nil {
		t.Fatal(err)
	}
	if len(res.records) != 0 {
		t.Fatalf("records = %d, want 0", len(res.records))
	}
	if res.nextFree != regionHeaderSize {
		t.Fatalf("nextFree = %d, want %d", res.nextFree, regionHeaderSize)
	}
	if res.dirtyTail {
		t.Fatal("fresh region should not have a dirty tail")
	}
}

func TestRegionScanRecordsInOrder(t *testing.T) {
	_, log := formattedRegion(t, 256)
	off := uint32(regionHeaderSize)
	for i, payload := range [][]byte{{1}, {2, 2}, {3, 3, 3}} {
		next, err := log.append(off, encodeRecord(uint16(i+1), payload))
		if err != nil {
			t.Fatal(err)
		}
		off = next
	}

	res, err := log.scan()
	if err != nil {
		t.Fatal(err)
	}
	if len(res.records) != 3 {
		t.Fatalf("records = %d, want 3", len(res.records))
	}
	for i, sr := range res.records {
		if sr.rec.ID != uint16(i+1) {
			t.Fatalf("record %d: ID = %d, want %d", i, sr.rec.ID, i+1)
		}
		if len(sr.rec.Payload) != i+1 {
			t.Fatalf("record %d: payload length = %d, want %d", i, len(sr.rec.Payload), i+1)
		}
	}
	if res.nextFree != off {
		t.Fatalf("nextFree = %d, want %d", res.nextFree, off)
	}
}

func TestRegionScanStopsAtCorrupt(t *testing.T) {
	dev, log := formattedRegion(t, 256)
	off := uint32(regionHeaderSize)
	off, err := log.append(off, encodeRecord(1, []byte("good")))
	if err != nil {
		t.Fatal(err)
	}
	// A half-programmed record: header present, payload truncated.
	bad := encodeRecord(2, bytes.Repeat([]byte{0x55}, 16))
	dev.Corrupt(0, off, bad[:recordHeaderSize+4])

	res, err := log.scan()
	if err != nil {
		t.Fatal(err)
	}
	if len(res.records) != 1 {
		t.Fatalf("records = %d, want 1", len(res.records))
	}
	if res.nextFree != off {
		t.Fatalf("nextFree = %d, want %d", res.nextFree, off)
	}
	if !res.dirtyTail {
		t.Fatal("scan over a corrupt record should flag a dirty tail")
	}
}

func TestRegionScanWarnsOnCorruption(t *testing.T) {
	c := logging.CaptureForTest()
	defer c.Restore()

	dev, log := formattedRegion(t, 256)
	bad := encodeRecord(2, bytes.Repeat([]byte{0x55}, 16))
	dev.Corrupt(0, regionHeaderSize, bad[:recordHeaderSize+4])

	if _, err := log.scan(); err != nil {
		t.Fatal(err)
	}
	if !c.Has(slog.LevelWarn, "corrupt record") {
		t.Fatal("scan should warn about the truncated record")
	}
}

func TestRegionScanNeverTrustsBeyondStop(t *testing.T) {
	dev, log := formattedRegion(t, 256)
	off := uint32(regionHeaderSize)
	off, err := log.append(off, encodeRecord(1, []byte("good")))
	if err != nil {
		t.Fatal(err)
	}
	// A perfectly valid record planted past an erased gap, as stale data
	// from a previous generation could appear. It must stay invisible.
	dev.Corrupt(0, off+16, encodeRecord(9, []byte("stale")))

	res, err := log.scan()
	if err != nil {
		t.Fatal(err)
	}
	if len(res.records) != 1 {
		t.Fatalf("records = %d, want 1", len(res.records))
	}
	if res.records[0].rec.ID != 1 {
		t.Fatalf("record ID = %d, want 1", res.records[0].rec.ID)
	}
	if !res.dirtyTail {
		t.Fatal("non-erased bytes past the stop offset should flag a dirty tail")
	}
}

func TestRegionAppendFull(t *testing.T) {
	_, log := formattedRegion(t, 64)
	rec := encodeRecord(1, bytes.Repeat([]byte{1}, 60))
	if _, err := log.append(regionHeaderSize, rec); err != ErrRegionFull {
		t.Fatalf("err = %v, want ErrRegionFull", err)
	}
}

func TestRegionHeaderRoundTrip(t *testing.T) {
	h := decodeRegionHeader(encodeRegionHeader(7))
	if !h.valid() {
		t.Fatal("encoded header should be valid")
	}
	if h.generation != 7 {
		t.Fatalf("generation = %d, want 7", h.generation)
	}

	erased := decodeRegionHeader(bytes.Repeat([]byte{0xFF}, regionHeaderSize))
	if erased.valid() {
		t.Fatal("erased header should be invalid")
	}

	// A torn header program can commit the magic while the generation
	// bytes stay erased; it must not count as valid.
	torn := bytes.Repeat([]byte{0xFF}, regionHeaderSize)
	copy(torn, encodeRegionHeader(3)[:4])
	if decodeRegionHeader(torn).valid() {
		t.Fatal("header with an erased generation should be invalid")
	}
}

func TestRegionReadRecordValidates(t *testing.T) {
	dev, log := formattedRegion(t, 256)
	off := uint32(regionHeaderSize)
	if _, err := log.append(off, encodeRecord(1, []byte("data"))); err != nil {
		t.Fatal(err)
	}

	rec, err := log.readRecord(off)
	if err != nil {
		t.Fatal(err)
	}
	if rec.ID != 1 || string(rec.Payload) != "data" {
		t.Fatalf("got unit %d payload %q", rec.ID, rec.Payload)
	}

	// Bit rot under the index's feet must surface, not pass through.
	dev.Corrupt(0, off+recordHeaderSize, []byte{0x00})
	if _, err := log.readRecord(off); err == nil {
		t.Fatal("expected checksum failure after corruption")
	}
}
