package cluster

// DisjointSet is a union-find structure over dense indices [0, n).
// It is not safe for concurrent use.
type DisjointSet struct {
	parent []int
	size   []int
	less   func(i, j int) bool
}

// NewDisjointSet creates n singleton sets. When two sets merge, the root
// for which less reports true becomes the representative; a nil less keeps
// the smaller index.
func NewDisjointSet(n int, less func(i, j int) bool) *DisjointSet {
	if less == nil {
		less = func(i, j int) bool { return i < j }
	}
	d := &DisjointSet{
		parent: make([]int, n),
		size:   make([]int, n),
		less:   less,
	}
	for i := range d.parent {
		d.parent[i] = i
		d.size[i] = 1
	}
	return d
}

// Len returns the number of elements.
func (d *DisjointSet) Len() int { return len(d.parent) }

// Find returns the representative of x, halving the path on the way up.
func (d *DisjointSet) Find(x int) int {
	for d.parent[x] != x {
		d.parent[x] = d.parent[d.parent[x]]
		x = d.parent[x]
	}
	return x
}

// Union merges the sets of x and y and reports whether they were distinct.
func (d *DisjointSet) Union(x, y int) bool {
	rx, ry := d.Find(x), d.Find(y)
	if rx == ry {
		return false
	}
	if d.less(ry, rx) {
		rx, ry = ry, rx
	}
	d.parent[ry] = rx
	d.size[rx] += d.size[ry]
	return true
}

// Connected reports whether x and y are in the same set.
func (d *DisjointSet) Connected(x, y int) bool { return d.Find(x) == d.Find(y) }

// SetSize returns the size of the set containing x.
func (d *DisjointSet) SetSize(x int) int { return d.size[d.Find(x)] }
