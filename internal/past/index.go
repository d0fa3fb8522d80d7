package past

import "sort"

// unitIndex maps unit ids to the offset of their newest live record in
// the active region. It is rebuilt from a scan, never persisted.
type unitIndex struct {
	offsets map[uint16]uint32
}

func newUnitIndex() *unitIndex {
	return &unitIndex{offsets: make(map[uint16]uint32)}
}

// rebuild replays scanned records in ascending offset order: a record
// sets its id's offset, a tombstone removes the id.
func (ix *unitIndex) rebuild(res scanResult) {
	ix.offsets = make(map[uint16]uint32, len(res.records))
	for _, sr := range res.records {
		if sr.rec.Tombstone() {
			delete(ix.offsets, sr.rec.ID)
		} else {
			ix.offsets[sr.rec.ID] = sr.off
		}
	}
}

func (ix *unitIndex) lookup(id uint16) (uint32, bool) {
	off, ok := ix.offsets[id]
	return off, ok
}

func (ix *unitIndex) set(id uint16, off uint32) {
	ix.offsets[id] = off
}

func (ix *unitIndex) remove(id uint16) {
	delete(ix.offsets, id)
}

func (ix *unitIndex) len() int {
	return len(ix.offsets)
}

type liveEntry struct {
	id  uint16
	off uint32
}

// liveEntries returns every indexed unit in ascending id order. The
// order is what compaction copies in, so it must be deterministic.
func (ix *unitIndex) liveEntries() []liveEntry {
	out := make([]liveEntry, 0, len(ix.offsets))
	for id, off := range ix.offsets {
		out = append(out, liveEntry{id: id, off: off})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}
