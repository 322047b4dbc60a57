package store

import "sort"

// idPool is the sorted set of slot IDs not assigned to any active task.
// It is not safe for concurrent use; Store serializes access under its mutex.
type idPool struct {
	max  int
	free []int
}

// newIDPool builds the pool for [1, max] minus the used IDs.
func newIDPool(max int, used []int) *idPool {
	taken := make(map[int]bool, len(used))
	for _, id := range used {
		taken[id] = true
	}

	p := &idPool{max: max, free: make([]int, 0, max)}
	for id := 1; id <= max; id++ {
		if !taken[id] {
			p.free = append(p.free, id)
		}
	}
	return p
}

// take removes and returns the smallest free ID.
func (p *idPool) take() (int, bool) {
	if len(p.free) == 0 {
		return 0, false
	}
	id := p.free[0]
	p.free = p.free[1:]
	return id, true
}

// release puts id back into the pool, keeping it sorted. IDs outside
// [1, max] or already free are ignored.
func (p *idPool) release(id int) {
	if id < 1 || id > p.max {
		return
	}
	i := sort.SearchInts(p.free, id)
	if i < len(p.free) && p.free[i] == id {
		return
	}
	p.free = append(p.free, 0)
	copy(p.free[i+1:], p.free[i:])
	p.free[i] = id
}

// reserve removes a specific id from the pool, if present.
func (p *idPool) reserve(id int) {
	i := sort.SearchInts(p.free, id)
	if i < len(p.free) && p.free[i] == id {
		p.free = append(p.free[:i], p.free[i+1:]...)
	}
}

func (p *idPool) len() int {
	return len(p.free)
}

// snapshot returns a copy of the free IDs in ascending order.
func (p *idPool) snapshot() []int {
	out := make([]int, len(p.free))
	copy(out, p.free)
	return out
}
