package dataType

// Set is an add-only concurrent set. Add is an atomic insert-if-absent.
type Set[K comparable] struct {
	items *ShardedMap[K, struct{}]
}

func NewSet[K comparable](shardCount int, hash Hasher[K]) *Set[K] {
	return &Set[K]{items: NewShardedMap[K, struct{}](shardCount, hash)}
}

// NewValueSet returns the set of broadcast values a node has observed.
func NewValueSet(shardCount int) *Set[int64] {
	return NewSet[int64](shardCount, HashInt64)
}

func NewPeerSet(shardCount int) *Set[string] {
	return NewSet[string](shardCount, HashString)
}

// Add reports true only for the caller that inserted v.
func (s *Set[K]) Add(v K) bool {
	_, loaded := s.items.LoadOrStore(v, struct{}{})
	return !loaded
}

func (s *Set[K]) Contains(v K) bool {
	_, ok := s.items.Load(v)
	return ok
}

// Values returns the members in no particular order.
func (s *Set[K]) Values() []K {
	return s.items.Keys()
}

func (s *Set[K]) Len() int {
	return s.items.Len()
}
