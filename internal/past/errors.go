package past

import "errors"

// Error kinds surfaced by the store. All are matchable with errors.Is;
// flash hardware failures additionally match flashdev.ErrIO through
// wrapping.
var (
	// ErrNotFound means the unit id is absent from the index. Expected
	// during normal operation, never logged as a failure.
	ErrNotFound = errors.New("unit not found")

	// ErrCorruptStore means neither region carries a valid header at
	// init. The caller must format explicitly before the store is usable.
	ErrCorruptStore = errors.New("no valid region header")

	// ErrCorruptRecord means a record the index pointed at no longer
	// passes checksum validation on read-back.
	ErrCorruptRecord = errors.New("corrupt record")

	// ErrRecordTooLarge means the encoded record could never fit even a
	// freshly compacted region.
	ErrRecordTooLarge = errors.New("record too large for region")

	// ErrRegionFull means live data leaves no room for the record even
	// after compaction.
	ErrRegionFull = errors.New("region full")

	// ErrInvalidUnit means the unit id is outside 1..0xFFFE.
	ErrInvalidUnit = errors.New("unit id out of range")

	// ErrInvalidPayload means the payload length is zero (reserved for
	// tombstones) or exceeds the encodable maximum.
	ErrInvalidPayload = errors.New("invalid payload length")

	// ErrNotReady means the store has not been initialized or formatted.
	ErrNotReady = errors.New("store not initialized")

	// ErrFaulted means a previous flash failure moved the store to its
	// faulted state; write-class operations fail fast until Format.
	ErrFaulted = errors.New("store faulted")
)

// errNoRecord is internal to the scan: the bytes at an offset are still
// in the erased state, so no record was ever written there.
var errNoRecord = errors.New("no record here")
