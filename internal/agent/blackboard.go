package agent

// Blackboard is the per-session key to value map that passes
// intermediate tool results between calls via $key references. It is
// owned by a single session loop, so no locking.
type Blackboard struct {
	values map[string]any
}

// NewBlackboard creates an empty blackboard.
func NewBlackboard() *Blackboard {
	return &Blackboard{values: make(map[string]any)}
}

// Put stores a value by reference. Keys may be overwritten; the last
// write wins.
func (b *Blackboard) Put(key string, value any) {
	b.values[key] = value
}

// Get returns the stored value and whether the key exists.
func (b *Blackboard) Get(key string) (any, bool) {
	v, ok := b.values[key]
	return v, ok
}

// Keys reports the number of stored entries.
func (b *Blackboard) Keys() int {
	return len(b.values)
}

// Clear removes all entries.
func (b *Blackboard) Clear() {
	b.values = make(map[string]any)
}
