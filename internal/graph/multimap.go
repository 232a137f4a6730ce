package graph

// Multimap is an ordered multimap from a child element name to the children
// carrying that name. Keys keep their first-insertion order and each key keeps
// the insertion order of its values.
//
// A nil *Multimap behaves like an empty one for all read operations.
type Multimap[T any] struct {
	keys   []string
	values map[string][]T
}

// ChildMap holds the resolved children of a Node.
type ChildMap = Multimap[*Node]

func NewMultimap[T any]() *Multimap[T] {
	return &Multimap[T]{values: make(map[string][]T)}
}

// NewChildMap returns an empty ChildMap.
func NewChildMap() *ChildMap {
	return NewMultimap[*Node]()
}

// Add appends v to the values stored under key.
func (m *Multimap[T]) Add(key string, v T) {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = append(m.values[key], v)
}

// Get returns the values stored under key. The returned slice must not be modified.
func (m *Multimap[T]) Get(key string) []T {
	if m == nil {
		return nil
	}
	return m.values[key]
}

// Has reports whether at least one value is stored under key.
func (m *Multimap[T]) Has(key string) bool {
	if m == nil {
		return false
	}
	_, ok := m.values[key]
	return ok
}

// Keys returns the keys in insertion order.
func (m *Multimap[T]) Keys() []string {
	if m == nil {
		return nil
	}
	return m.keys
}

// Len returns the number of distinct keys.
func (m *Multimap[T]) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Count returns the total number of values over all keys.
func (m *Multimap[T]) Count() int {
	if m == nil {
		return 0
	}
	n := 0
	for _, vs := range m.values {
		n += len(vs)
	}
	return n
}

// Each calls fn for every value, keys in insertion order.
func (m *Multimap[T]) Each(fn func(key string, v T)) {
	if m == nil {
		return
	}
	for _, key := range m.keys {
		for _, v := range m.values[key] {
			fn(key, v)
		}
	}
}
