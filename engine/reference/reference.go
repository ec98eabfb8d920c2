// Package reference tracks serializable cross-object references. An item is shared by any number of
// owners, each holding one or more ItemRef tokens, and is dropped as soon as the last token is removed.
//
// Items live in arena slots addressed by index plus generation, so a token that outlives its item
// (or whose slot has been reused) never resolves to the wrong object.
package reference

import (
	"encoding/json"
	"errors"
	"reflect"
	"sort"
	"sync"

	"go.uber.org/zap"
)

var (
	// ErrNotItemRef is returned by GetRef for values that are not references.
	ErrNotItemRef = errors.New("value is not an item reference")
	// ErrItemNotFound is returned by GetRef when the referenced item does not exist anymore.
	ErrItemNotFound = errors.New("referenced item not found")
)

// ItemRef is a token held by an owner for one item. Tokens from the same owner are distinct.
type ItemRef struct {
	// ID is the item id the token refers to.
	ID string

	slot  uint32
	gen   uint32
	token uint64
}

// Bound reports whether the ref was issued by a Manager (as opposed to decoded from JSON).
func (r *ItemRef) Bound() bool {
	return r != nil && r.gen != 0
}

// MarshalJSON writes the ref as {"id": ...}. Unset refs encode as {}.
func (r *ItemRef) MarshalJSON() ([]byte, error) {
	if r == nil || r.ID == "" {
		return []byte("{}"), nil
	}
	return json.Marshal(struct {
		ID string `json:"id"`
	}{r.ID})
}

// UnmarshalJSON reads {"id": ...}. The decoded ref is unbound until it is resolved by id.
func (r *ItemRef) UnmarshalJSON(data []byte) error {
	var v struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*r = ItemRef{ID: v.ID}
	return nil
}

type slot struct {
	gen    uint32
	live   bool
	id     string
	object any
	owners map[any]map[uint64]struct{}
}

// manager is the implementation of the Manager interface.
type manager struct {
	mu sync.Mutex

	slots     []slot
	free      []uint32
	byID      map[string]uint32
	nextToken uint64

	logger *zap.Logger
}

// Manager is the reference table. All methods are safe for concurrent use.
type Manager interface {
	// Add records a new reference from owner to the item id, creating the item with object when it does not exist.
	// The object of an existing item is left unchanged.
	//
	// Parameters:
	//   - id: the item id
	//   - object: the referenced object
	//   - owner: the holder of the reference, must be comparable (typically a pointer)
	//
	// Returns:
	//   - *ItemRef: a new token, or nil if owner is not comparable
	Add(id string, object any, owner any) *ItemRef

	// Remove drops one token of owner from the item id. The owner entry is dropped when its last token goes,
	// and the item is dropped when its last owner goes. Unknown or stale tokens are ignored.
	//
	// Parameters:
	//   - id: the item id
	//   - owner: the holder of the token
	//   - ref: the token to remove
	//
	// Returns:
	//   - bool: true if a token was removed
	Remove(id string, owner any, ref *ItemRef) bool

	// RemoveRef is Remove using the id stored in ref.
	//
	// Parameters:
	//   - ref: the token to remove
	//   - owner: the holder of the token
	//
	// Returns:
	//   - bool: true if a token was removed
	RemoveRef(ref *ItemRef, owner any) bool

	// Get resolves a token to its object. Bound tokens only resolve while their slot generation matches;
	// unbound (decoded) tokens resolve by id.
	//
	// Parameters:
	//   - ref: the token to resolve
	//
	// Returns:
	//   - any: the object
	//   - bool: false if the item does not exist anymore
	Get(ref *ItemRef) (any, bool)

	// GetRef resolves v when it is a reference. Property values holding either a plain value or a reference
	// go through GetRef so callers can tell the two apart.
	//
	// Parameters:
	//   - v: the value to resolve
	//
	// Returns:
	//   - any: the referenced object
	//   - error: ErrNotItemRef if v is not an *ItemRef, ErrItemNotFound if the item is gone
	GetRef(v any) (any, error)

	// Objects returns a snapshot of the live items keyed by id. Later changes to the manager do not affect it.
	//
	// Returns:
	//   - map[string]any: the referenced objects by item id
	Objects() map[string]any

	// Delete forgets v everywhere: every token owned by v is dropped and every item whose object is v is deleted.
	//
	// Parameters:
	//   - v: the owner or object to forget
	Delete(v any)

	// Has reports whether an item with the given id exists.
	//
	// Returns:
	//   - bool: true if the item exists
	Has(id string) bool

	// Owners returns the number of distinct owners of the item id.
	//
	// Returns:
	//   - int: the owner count, 0 if the item does not exist
	Owners(id string) int

	// IDs returns the ids of all live items in sorted order.
	//
	// Returns:
	//   - []string: the item ids
	IDs() []string

	// Len returns the number of live items.
	//
	// Returns:
	//   - int: the item count
	Len() int

	// Serialize writes ref as {"id": ...} and records the item in meta.Typed when it is not there yet.
	// Items loaded from an external file are recorded as {external, rootPath, rootPathOptions}.
	//
	// Parameters:
	//   - ref: the token to serialize
	//   - meta: the shared serialization metadata, may be nil
	//
	// Returns:
	//   - json.RawMessage: the encoded ref
	//   - error: error if the item cannot be encoded
	Serialize(ref *ItemRef, meta *Meta) (json.RawMessage, error)
}

var _ Manager = &manager{}

// NewManager creates an empty reference table.
//
// Parameters:
//   - options: functional options to configure the manager
//
// Returns:
//   - Manager: the new manager
func NewManager(options ...ManagerBuilderOption) Manager {
	m := &manager{
		byID:   map[string]uint32{},
		logger: zap.NewNop(),
	}
	for _, option := range options {
		option(m)
	}
	m.logger = m.logger.With(zap.String("component", "reference"))
	return m
}

func isComparable(v any) bool {
	return v != nil && reflect.TypeOf(v).Comparable()
}

func (m *manager) Add(id string, object any, owner any) *ItemRef {
	if !isComparable(owner) {
		m.logger.Error("reference owner is not comparable", zap.String("id", id))
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	idx, ok := m.byID[id]
	if !ok {
		idx = m.alloc()
		s := &m.slots[idx]
		s.live = true
		s.id = id
		s.object = object
		s.owners = map[any]map[uint64]struct{}{}
		m.byID[id] = idx
	}
	s := &m.slots[idx]

	tokens := s.owners[owner]
	if tokens == nil {
		tokens = map[uint64]struct{}{}
		s.owners[owner] = tokens
	}
	m.nextToken++
	tokens[m.nextToken] = struct{}{}

	return &ItemRef{ID: id, slot: idx, gen: s.gen, token: m.nextToken}
}

func (m *manager) alloc() uint32 {
	if n := len(m.free); n > 0 {
		idx := m.free[n-1]
		m.free = m.free[:n-1]
		m.slots[idx].gen++
		return idx
	}
	m.slots = append(m.slots, slot{gen: 1})
	return uint32(len(m.slots) - 1)
}

// release must be called with mu held.
func (m *manager) release(idx uint32) {
	s := &m.slots[idx]
	delete(m.byID, s.id)
	s.live = false
	s.id = ""
	s.object = nil
	s.owners = nil
	m.free = append(m.free, idx)
}

// lookup must be called with mu held.
func (m *manager) lookup(ref *ItemRef) (*slot, uint32, bool) {
	if ref == nil {
		return nil, 0, false
	}
	if ref.Bound() {
		if int(ref.slot) >= len(m.slots) {
			return nil, 0, false
		}
		s := &m.slots[ref.slot]
		if !s.live || s.gen != ref.gen {
			return nil, 0, false
		}
		return s, ref.slot, true
	}
	idx, ok := m.byID[ref.ID]
	if !ok {
		return nil, 0, false
	}
	return &m.slots[idx], idx, true
}

func (m *manager) Remove(id string, owner any, ref *ItemRef) bool {
	if ref == nil || ref.ID != id || !ref.Bound() || !isComparable(owner) {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, idx, ok := m.lookup(ref)
	if !ok {
		return false
	}
	tokens := s.owners[owner]
	if _, held := tokens[ref.token]; !held {
		return false
	}
	delete(tokens, ref.token)
	if len(tokens) == 0 {
		delete(s.owners, owner)
		if len(s.owners) == 0 {
			m.release(idx)
		}
	}
	return true
}

func (m *manager) RemoveRef(ref *ItemRef, owner any) bool {
	if ref == nil {
		return false
	}
	return m.Remove(ref.ID, owner, ref)
}

func (m *manager) Get(ref *ItemRef) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, _, ok := m.lookup(ref)
	if !ok {
		return nil, false
	}
	return s.object, true
}

func (m *manager) GetRef(v any) (any, error) {
	ref, ok := v.(*ItemRef)
	if !ok || ref == nil {
		return nil, ErrNotItemRef
	}
	obj, found := m.Get(ref)
	if !found {
		m.logger.Warn("reference not found", zap.String("id", ref.ID))
		return nil, ErrItemNotFound
	}
	return obj, nil
}

func (m *manager) Objects() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	objects := make(map[string]any, len(m.byID))
	for id, idx := range m.byID {
		objects[id] = m.slots[idx].object
	}
	return objects
}

func (m *manager) Delete(v any) {
	if !isComparable(v) {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for idx := range m.slots {
		s := &m.slots[idx]
		if !s.live {
			continue
		}
		delete(s.owners, v)
		if len(s.owners) == 0 || (isComparable(s.object) && s.object == v) {
			m.release(uint32(idx))
		}
	}
}

func (m *manager) Has(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.byID[id]
	return ok
}

func (m *manager) Owners(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx, ok := m.byID[id]
	if !ok {
		return 0
	}
	return len(m.slots[idx].owners)
}

func (m *manager) IDs() []string {
	m.mu.Lock()
	ids := make([]string, 0, len(m.byID))
	for id := range m.byID {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	sort.Strings(ids)
	return ids
}

func (m *manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}
