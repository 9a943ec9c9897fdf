package detail

import "sync"

// Mailbox is a one-slot hand-off between components. Posting replaces any
// unread value; Take consumes and clears it.
//
// Values posted with PostAs belong to that owner: only the owner (or an
// unconditional Take/Clear) can remove them. Values posted with Post have no
// owner and go to whoever takes first.
type Mailbox[T any] struct {
	mu    sync.Mutex
	value T
	owner any
	full  bool
}

// NewMailbox returns an empty mailbox
func NewMailbox[T any]() *Mailbox[T] {
	return &Mailbox[T]{}
}

// Post stores v without an owner, discarding an unread value
func (m *Mailbox[T]) Post(v T) {
	m.PostAs(nil, v)
}

// PostAs stores v on behalf of owner, discarding an unread value.
// owner must be comparable.
func (m *Mailbox[T]) PostAs(owner any, v T) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.value, m.owner, m.full = v, owner, true
}

// Take returns the stored value and clears the slot. It never blocks.
func (m *Mailbox[T]) Take() (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.takeLocked()
}

// TakeFor consumes the stored value if it belongs to owner or has no owner
func (m *Mailbox[T]) TakeFor(owner any) (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.full || (m.owner != nil && m.owner != owner) {
		var zero T
		return zero, false
	}
	return m.takeLocked()
}

// Clear discards any stored value
func (m *Mailbox[T]) Clear() {
	m.Take()
}

// ClearFor discards the stored value only if owner posted it. It reports
// whether anything was discarded.
func (m *Mailbox[T]) ClearFor(owner any) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.full || owner == nil || m.owner != owner {
		return false
	}
	m.takeLocked()
	return true
}

func (m *Mailbox[T]) takeLocked() (T, bool) {
	v, ok := m.value, m.full
	var zero T
	m.value, m.owner, m.full = zero, nil, false
	return v, ok
}
