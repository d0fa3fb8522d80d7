package past

import (
	"errors"
	"fmt"

	"past/internal/flashdev"
	"past/internal/logging"
)

var logger = logging.For("past")

// State is the controller lifecycle.
type State int

const (
	// Uninitialized is the state before a successful Init or Format.
	Uninitialized State = iota
	// Ready accepts all operations.
	Ready
	// Faulted is entered after a flash failure during a write-class
	// operation. Reads are still attempted; writes fail fast until the
	// caller formats.
	Faulted
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Ready:
		return "ready"
	case Faulted:
		return "faulted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Store is the parameter store controller. It owns the two flash
// regions of the device handed to New and serves every caller request;
// the active region, next free offset, and unit index live only in
// memory and are rebuilt by Init.
//
// A Store is not safe for concurrent use; a multi-threaded host must
// serialize calls behind its own lock.
type Store struct {
	dev flashdev.Device

	state      State
	active     int
	generation uint32
	nextFree   uint32
	dirtyTail  bool
	index      *unitIndex
}

// New wraps a flash device. The store starts Uninitialized; call Init to
// recover existing contents or Format to start fresh.
func New(dev flashdev.Device) (*Store, error) {
	if dev.RegionSize() < regionHeaderSize+recordHeaderSize {
		return nil, fmt.Errorf("region size %d cannot hold a header and a record", dev.RegionSize())
	}
	return &Store{dev: dev, index: newUnitIndex()}, nil
}

func (s *Store) log(region int) regionLog {
	return regionLog{dev: s.dev, region: region}
}

// maxPayload is the largest payload a freshly compacted region can hold.
func (s *Store) maxPayload() uint32 {
	max := s.dev.RegionSize() - regionHeaderSize - recordHeaderSize
	if max > MaxPayload {
		max = MaxPayload
	}
	return max
}

// Format erases both regions and headers region 0 with generation 1.
// It is the recovery path from ErrCorruptStore and from the faulted
// state, so it is allowed regardless of the current state.
func (s *Store) Format() error {
	for region := 0; region < flashdev.NumRegions; region++ {
		if err := s.dev.EraseRegion(region); err != nil {
			return s.fault(fmt.Errorf("formatting: %w", err))
		}
	}
	if err := s.dev.Program(0, 0, encodeRegionHeader(1)); err != nil {
		return s.fault(fmt.Errorf("formatting: %w", err))
	}

	s.state = Ready
	s.active = 0
	s.generation = 1
	s.nextFree = regionHeaderSize
	s.dirtyTail = false
	s.index = newUnitIndex()
	logger.Info("store formatted", "region_size", s.dev.RegionSize())
	return nil
}

// Init recovers the store from flash without writing anything: it picks
// the active region by comparing the two headers, scans it, and rebuilds
// the unit index. ErrCorruptStore when neither header is valid.
func (s *Store) Init() error {
	var headers [flashdev.NumRegions]regionHeader
	for region := range headers {
		h, err := s.log(region).header()
		if err != nil {
			return err
		}
		headers[region] = h
	}

	active := -1
	for region, h := range headers {
		if !h.valid() {
			continue
		}
		// On a generation tie (only reachable by external image
		// tampering) the lower region index wins.
		if active < 0 || h.generation > headers[active].generation {
			active = region
		}
	}
	if active < 0 {
		return ErrCorruptStore
	}

	res, err := s.log(active).scan()
	if err != nil {
		return err
	}

	s.state = Ready
	s.active = active
	s.generation = headers[active].generation
	s.nextFree = res.nextFree
	s.dirtyTail = res.dirtyTail
	s.index = newUnitIndex()
	s.index.rebuild(res)
	logger.Info("store initialized",
		"active_region", active,
		"generation", s.generation,
		"live_units", s.index.len(),
		"free_bytes", s.FreeBytes(),
		"dirty_tail", s.dirtyTail)
	return nil
}

// ReadUnit returns the payload of the newest live record for id.
// ErrNotFound when the unit was never written or was tombstoned last.
// Reads are attempted even in the faulted state.
func (s *Store) ReadUnit(id uint16) ([]byte, error) {
	if s.state == Uninitialized {
		return nil, ErrNotReady
	}
	if id < MinUnitID || id > MaxUnitID {
		return nil, fmt.Errorf("%w: %d", ErrInvalidUnit, id)
	}
	off, ok := s.index.lookup(id)
	if !ok {
		return nil, ErrNotFound
	}
	rec, err := s.log(s.active).readRecord(off)
	if err != nil {
		return nil, err
	}
	return rec.Payload, nil
}

// WriteUnit appends a new record for id, compacting first when the
// active region has no room. The append is a single programming pass, so
// a power loss at any instant leaves either the old value or the new one,
// never a torn mix.
func (s *Store) WriteUnit(id uint16, payload []byte) error {
	if err := s.checkWritable(); err != nil {
		return err
	}
	if id < MinUnitID || id > MaxUnitID {
		return fmt.Errorf("%w: %d", ErrInvalidUnit, id)
	}
	if len(payload) == 0 {
		return fmt.Errorf("%w: zero-length payloads are reserved for tombstones", ErrInvalidPayload)
	}
	if uint32(len(payload)) > s.maxPayload() {
		return fmt.Errorf("%w: payload %d exceeds maximum %d", ErrRecordTooLarge, len(payload), s.maxPayload())
	}

	off, err := s.appendRecord(encodeRecord(id, payload))
	if err != nil {
		return err
	}
	s.index.set(id, off)
	return nil
}

// EraseUnit appends a tombstone for id and drops it from the index
// immediately. ErrNotFound when the unit is not live.
func (s *Store) EraseUnit(id uint16) error {
	if err := s.checkWritable(); err != nil {
		return err
	}
	if id < MinUnitID || id > MaxUnitID {
		return fmt.Errorf("%w: %d", ErrInvalidUnit, id)
	}
	if _, ok := s.index.lookup(id); !ok {
		return ErrNotFound
	}

	if _, err := s.appendRecord(encodeRecord(id, nil)); err != nil {
		return err
	}
	s.index.remove(id)
	return nil
}

func (s *Store) checkWritable() error {
	switch s.state {
	case Uninitialized:
		return ErrNotReady
	case Faulted:
		return ErrFaulted
	}
	return nil
}

// appendRecord writes encoded to the active region, running one
// compaction cycle first when the tail is unusable or too short. It
// returns the offset the record was written at.
func (s *Store) appendRecord(encoded []byte) (uint32, error) {
	need := uint32(len(encoded))
	if s.dirtyTail || s.nextFree+need > s.dev.RegionSize() {
		if err := s.compact(); err != nil {
			return 0, err
		}
		if s.nextFree+need > s.dev.RegionSize() {
			return 0, fmt.Errorf("%w: %d bytes needed, %d free after compaction",
				ErrRegionFull, need, s.FreeBytes())
		}
	}

	off := s.nextFree
	next, err := s.log(s.active).append(off, encoded)
	if err != nil {
		return 0, s.fault(err)
	}
	s.nextFree = next
	return off, nil
}

// compact copies every live record into the standby region and hands the
// active role over by writing the standby header last. A crash anywhere
// before that final header program leaves the standby without a valid
// magic, so Init falls back to the untouched old region. The old region
// itself is not erased here; the next compaction cycle reclaims it,
// costing one erase per cycle instead of two.
func (s *Store) compact() error {
	standby := 1 - s.active
	logger.Info("compacting",
		"from_region", s.active,
		"to_region", standby,
		"live_units", s.index.len())

	if err := s.dev.EraseRegion(standby); err != nil {
		return s.fault(fmt.Errorf("compaction erase: %w", err))
	}

	src := s.log(s.active)
	dst := s.log(standby)
	moved := newUnitIndex()
	off := uint32(regionHeaderSize)
	for _, e := range s.index.liveEntries() {
		rec, err := src.readRecord(e.off)
		if err != nil {
			return s.fault(fmt.Errorf("compaction copy of unit %d: %w", e.id, err))
		}
		next, err := dst.append(off, encodeRecord(rec.ID, rec.Payload))
		if err != nil {
			return s.fault(fmt.Errorf("compaction copy of unit %d: %w", e.id, err))
		}
		moved.set(e.id, off)
		off = next
	}

	// The switch point: only now does the standby win the header
	// comparison on the next init.
	if err := s.dev.Program(standby, 0, encodeRegionHeader(s.generation+1)); err != nil {
		return s.fault(fmt.Errorf("compaction header: %w", err))
	}

	s.active = standby
	s.generation++
	s.nextFree = off
	s.dirtyTail = false
	s.index = moved
	logger.Info("compaction complete",
		"active_region", s.active,
		"generation", s.generation,
		"free_bytes", s.FreeBytes())
	return nil
}

// fault records an unrecoverable flash failure. Read paths keep working
// on a best-effort basis; anything that programs flash fails fast until
// the caller formats.
func (s *Store) fault(err error) error {
	if errors.Is(err, flashdev.ErrIO) {
		s.state = Faulted
		logger.Error("flash failure, store faulted", "err", err)
	}
	return err
}

// State returns the controller state.
func (s *Store) State() State {
	return s.state
}

// ActiveRegion returns the index of the region currently accepting
// appends. Meaningful only in the Ready state.
func (s *Store) ActiveRegion() int {
	return s.active
}

// Generation returns the active region's header generation counter.
func (s *Store) Generation() uint32 {
	return s.generation
}

// FreeBytes returns the space left in the active region's tail. A dirty
// tail counts as zero since it cannot be appended to.
func (s *Store) FreeBytes() uint32 {
	if s.state != Ready || s.dirtyTail {
		return 0
	}
	return s.dev.RegionSize() - s.nextFree
}

// LiveUnits returns the ids of all live units in ascending order.
func (s *Store) LiveUnits() []uint16 {
	entries := s.index.liveEntries()
	out := make([]uint16, len(entries))
	for i, e := range entries {
		out[i] = e.id
	}
	return out
}
