// Package identity maps record UUIDs to their vector slots in the per-field indices.
package identity

import (
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/li-xiu-qi/SmartlmageFinder/pkg/utils"
)

// Field names one of the vector indices.
type Field string

const (
	FieldTitle       Field = "title"
	FieldDescription Field = "description"
	FieldImage       Field = "image"
)

// Fields lists every indexed field in a fixed order.
var Fields = []Field{FieldTitle, FieldDescription, FieldImage}

// Valid reports whether f names a known field.
func (f Field) Valid() bool {
	switch f {
	case FieldTitle, FieldDescription, FieldImage:
		return true
	}
	return false
}

// Entry holds a record's slot in each index. A nil slot means the field is not vectorized.
type Entry struct {
	Title       *int64
	Description *int64
	Image       *int64
}

// Slot returns the slot for f and whether it is set.
func (e Entry) Slot(f Field) (int64, bool) {
	var p *int64
	switch f {
	case FieldTitle:
		p = e.Title
	case FieldDescription:
		p = e.Description
	case FieldImage:
		p = e.Image
	}
	if p == nil {
		return 0, false
	}
	return *p, true
}

func (e *Entry) set(f Field, slot int64) {
	s := slot
	switch f {
	case FieldTitle:
		e.Title = &s
	case FieldDescription:
		e.Description = &s
	case FieldImage:
		e.Image = &s
	}
}

func (e *Entry) clear(f Field) {
	switch f {
	case FieldTitle:
		e.Title = nil
	case FieldDescription:
		e.Description = nil
	case FieldImage:
		e.Image = nil
	}
}

// IsEmpty reports whether no field has a slot.
func (e Entry) IsEmpty() bool {
	return e.Title == nil && e.Description == nil && e.Image == nil
}

// Map is the forward (uuid -> Entry) map plus one reverse (slot -> uuid) map per field.
// Both directions are updated together. A slot absent from the reverse map is orphaned.
// Map is not safe for concurrent use; the owner serializes access.
type Map struct {
	forward map[string]Entry
	reverse map[Field]map[int64]string
}

// New returns an empty Map.
func New() *Map {
	m := &Map{forward: make(map[string]Entry)}
	m.resetReverse()
	return m
}

func (m *Map) resetReverse() {
	m.reverse = make(map[Field]map[int64]string, len(Fields))
	for _, f := range Fields {
		m.reverse[f] = make(map[int64]string)
	}
}

// Set points uuid's field at slot, creating the entry if absent. A slot previously
// held by uuid for that field becomes orphaned.
func (m *Map) Set(uuid string, field Field, slot int64) {
	e := m.forward[uuid]
	if old, ok := e.Slot(field); ok {
		delete(m.reverse[field], old)
	}
	if prev, ok := m.reverse[field][slot]; ok && prev != uuid {
		pe := m.forward[prev]
		pe.clear(field)
		m.store(prev, pe)
	}
	e.set(field, slot)
	m.forward[uuid] = e
	m.reverse[field][slot] = uuid
}

func (m *Map) store(uuid string, e Entry) {
	if e.IsEmpty() {
		delete(m.forward, uuid)
		return
	}
	m.forward[uuid] = e
}

// Get returns uuid's entry.
func (m *Map) Get(uuid string) (Entry, bool) {
	e, ok := m.forward[uuid]
	return e, ok
}

// FindUUIDBySlot resolves a search hit back to its record. ok is false for orphaned slots.
func (m *Map) FindUUIDBySlot(field Field, slot int64) (string, bool) {
	uuid, ok := m.reverse[field][slot]
	return uuid, ok
}

// Remove deletes uuid's entry and orphans its slots. It reports whether the entry existed.
func (m *Map) Remove(uuid string) bool {
	e, ok := m.forward[uuid]
	if !ok {
		return false
	}
	for _, f := range Fields {
		if slot, ok := e.Slot(f); ok {
			delete(m.reverse[f], slot)
		}
	}
	delete(m.forward, uuid)
	return true
}

// RemoveField orphans uuid's slot for field. The entry goes away with its last slot.
func (m *Map) RemoveField(uuid string, field Field) bool {
	e, ok := m.forward[uuid]
	if !ok {
		return false
	}
	slot, ok := e.Slot(field)
	if !ok {
		return false
	}
	delete(m.reverse[field], slot)
	e.clear(field)
	m.store(uuid, e)
	return true
}

// Len returns the number of records with at least one slot.
func (m *Map) Len() int {
	return len(m.forward)
}

// LiveCount returns how many slots of field are reachable.
func (m *Map) LiveCount(field Field) int {
	return len(m.reverse[field])
}

// LiveSlots returns field's reachable slots in ascending order.
func (m *Map) LiveSlots(field Field) []int64 {
	slots := make([]int64, 0, len(m.reverse[field]))
	for s := range m.reverse[field] {
		slots = append(slots, s)
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i] < slots[j] })
	return slots
}

// UUIDs returns every mapped uuid in sorted order.
func (m *Map) UUIDs() []string {
	out := make([]string, 0, len(m.forward))
	for u := range m.forward {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// Prune drops slots for which keep returns false and reports how many were dropped.
func (m *Map) Prune(keep func(field Field, slot int64) bool) int {
	dropped := 0
	for _, uuid := range m.UUIDs() {
		e := m.forward[uuid]
		for _, f := range Fields {
			if slot, ok := e.Slot(f); ok && !keep(f, slot) {
				delete(m.reverse[f], slot)
				e.clear(f)
				dropped++
			}
		}
		m.store(uuid, e)
	}
	return dropped
}

// Remap rewrites every slot of field through remap. Slots missing from remap are dropped.
func (m *Map) Remap(field Field, remap map[int64]int64) {
	next := make(map[int64]string, len(remap))
	for oldSlot, uuid := range m.reverse[field] {
		e := m.forward[uuid]
		newSlot, ok := remap[oldSlot]
		if !ok {
			e.clear(field)
			m.store(uuid, e)
			continue
		}
		e.set(field, newSlot)
		m.forward[uuid] = e
		next[newSlot] = uuid
	}
	m.reverse[field] = next
}

// Clone returns a deep copy.
func (m *Map) Clone() *Map {
	c := New()
	for uuid, e := range m.forward {
		for _, f := range Fields {
			if slot, ok := e.Slot(f); ok {
				c.Set(uuid, f, slot)
			}
		}
	}
	return c
}

// snapshot is the persisted form: one explicit (uuid, slot) list per field. Slot 0 is
// an ordinary value here, which gob would drop from a pointer field. The reverse maps
// are rebuilt on load.
type snapshot struct {
	Version int
	Slots   map[Field][]slotRecord
}

type slotRecord struct {
	UUID string
	Slot int64
}

const snapshotVersion = 2

// Save writes the whole map to path atomically.
func (m *Map) Save(path string) error {
	snap := snapshot{Version: snapshotVersion, Slots: make(map[Field][]slotRecord, len(Fields))}
	for _, f := range Fields {
		recs := make([]slotRecord, 0, len(m.reverse[f]))
		for slot, uuid := range m.reverse[f] {
			recs = append(recs, slotRecord{UUID: uuid, Slot: slot})
		}
		sort.Slice(recs, func(i, j int) bool { return recs[i].Slot < recs[j].Slot })
		snap.Slots[f] = recs
	}
	err := utils.WriteFileAtomic(path, func(w io.Writer) error {
		return gob.NewEncoder(w).Encode(snap)
	})
	if err != nil {
		return fmt.Errorf("failed to save identity map: %w", err)
	}
	return nil
}

// Load replaces the map with the one persisted at path. A missing file yields an empty map.
func (m *Map) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			m.forward = make(map[string]Entry)
			m.resetReverse()
			return nil
		}
		return fmt.Errorf("failed to open identity map: %w", err)
	}
	defer f.Close()

	var snap snapshot
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		return fmt.Errorf("failed to decode identity map: %w", err)
	}
	if snap.Version != snapshotVersion {
		return fmt.Errorf("unsupported identity map version %d", snap.Version)
	}

	loaded := New()
	for field, recs := range snap.Slots {
		if !field.Valid() {
			return fmt.Errorf("identity map names unknown field %q", field)
		}
		for _, r := range recs {
			loaded.Set(r.UUID, field, r.Slot)
		}
	}
	m.forward = loaded.forward
	m.reverse = loaded.reverse
	return nil
}
