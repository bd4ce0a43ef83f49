package lof

import (
	"cmp"
	"context"
	"math"
	"slices"
	"sort"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"
)

// neighborhoods holds the k nearest neighbors of every point, flattened:
// the neighbors of point i are idx[i*k : (i+1)*k], ordered by
// (distance asc, input index asc). kdist[i] is the distance to the k-th one.
type neighborhoods struct {
	k     int
	idx   []int
	dist  []float64
	kdist []float64
}

func (nb *neighborhoods) of(i int) ([]int, []float64) {
	lo, hi := i*nb.k, (i+1)*nb.k
	return nb.idx[lo:hi], nb.dist[lo:hi]
}

// neighborFinder fills the neighbor list of one point into idx and dist,
// both of length k.
type neighborFinder interface {
	find(i int, idx []int, dist []float64)
}

type candidate struct {
	idx  int
	dist float64
}

func compareCandidates(a, b candidate) int {
	if c := cmp.Compare(a.dist, b.dist); c != 0 {
		return c
	}
	return cmp.Compare(a.idx, b.idx)
}

func distance(a, b float64) float64 {
	return math.Abs(a - b)
}

// findNeighbors computes every point's neighborhood, splitting points across
// workers. Each worker writes a disjoint range, so the only synchronization
// is the final Wait.
func findNeighbors(ctx context.Context, values []float64, k int, kind IndexKind, workers int) (*neighborhoods, error) {
	n := len(values)
	nb := &neighborhoods{
		k:     k,
		idx:   make([]int, n*k),
		dist:  make([]float64, n*k),
		kdist: make([]float64, n),
	}

	newFinder := func() neighborFinder {
		return &bruteFinder{values: values, buf: make([]candidate, 0, k)}
	}
	if kind == IndexSorted {
		order := sortedOrder(values)
		pos := make([]int, n)
		for p, i := range order {
			pos[i] = p
		}
		newFinder = func() neighborFinder {
			return &sortedFinder{values: values, order: order, pos: pos, k: k}
		}
	}

	if workers > n {
		workers = n
	}
	chunk := (n + workers - 1) / workers

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		g.Go(func() error {
			f := newFinder()
			for i := start; i < end; i++ {
				if i%256 == 0 && gCtx.Err() != nil {
					return eris.Wrap(gCtx.Err(), "lof: neighbor search cancelled")
				}
				idx, dist := nb.of(i)
				f.find(i, idx, dist)
				nb.kdist[i] = dist[k-1]
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return nb, nil
}

// bruteFinder scans every other point, keeping the k best in an ordered
// buffer. Candidates arrive in increasing index, so an equal distance never
// displaces an entry already held.
type bruteFinder struct {
	values []float64
	buf    []candidate
}

func (f *bruteFinder) find(i int, idx []int, dist []float64) {
	k := len(idx)
	buf := f.buf[:0]
	v := f.values[i]
	for j, w := range f.values {
		if j == i {
			continue
		}
		d := distance(v, w)
		if len(buf) == k && d >= buf[k-1].dist {
			continue
		}
		// Insert after every held entry with distance <= d.
		at := len(buf)
		for at > 0 && buf[at-1].dist > d {
			at--
		}
		if len(buf) < k {
			buf = append(buf, candidate{})
		}
		copy(buf[at+1:], buf[at:len(buf)-1])
		buf[at] = candidate{idx: j, dist: d}
	}
	for n, c := range buf {
		idx[n] = c.idx
		dist[n] = c.dist
	}
	f.buf = buf
}

// sortedOrder returns point indices ordered by (value, index).
func sortedOrder(values []float64) []int {
	order := make([]int, len(values))
	for i := range order {
		order[i] = i
	}
	slices.SortFunc(order, func(a, b int) int {
		if c := cmp.Compare(values[a], values[b]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	return order
}

// sortedFinder walks outward from a point's position in value order. In one
// dimension the nearest points are always adjacent in that order, so the
// walk visits candidates in nondecreasing distance. All candidates at one
// distance form a contiguous run on each side; runs are located by binary
// search and only the lowest indices needed are taken, so long runs of
// duplicate values cost O(log n) rather than a scan.
type sortedFinder struct {
	values []float64
	order  []int
	pos    []int
	k      int
	buf    []candidate
}

// distAt is the distance from v to the point at sorted position x.
func (f *sortedFinder) distAt(v float64, x int) float64 {
	return distance(v, f.values[f.order[x]])
}

func (f *sortedFinder) find(i int, idx []int, dist []float64) {
	n := len(f.order)
	v := f.values[i]
	p := f.pos[i]
	l, r := p-1, p+1
	buf := f.buf[:0]

	for len(buf) < f.k {
		d := math.Inf(1)
		if l >= 0 {
			d = f.distAt(v, l)
		}
		if r < n {
			d = min(d, f.distAt(v, r))
		}

		// Runs at distance d: sorted positions [ls, l] and [r, re].
		ls, re := l+1, r-1
		if l >= 0 && f.distAt(v, l) == d {
			ls = sort.Search(l+1, func(x int) bool { return f.distAt(v, x) <= d })
		}
		if r < n && f.distAt(v, r) == d {
			re = r + sort.Search(n-r, func(x int) bool { return f.distAt(v, r+x) > d }) - 1
		}

		buf = f.takeRun(buf, f.order[ls:l+1], f.order[r:re+1], d)
		l, r = ls-1, re+1
	}

	for j := 0; j < f.k; j++ {
		idx[j] = buf[j].idx
		dist[j] = buf[j].dist
	}
	f.buf = buf
}

// takeRun appends the lowest-index members of two equidistant runs until buf
// holds k candidates. A run of one value is already in index order; a run
// mixing values (distinct values rounding to one distance) is sorted first.
func (f *sortedFinder) takeRun(buf []candidate, left, right []int, d float64) []candidate {
	need := f.k - len(buf)
	if !f.singleValue(left) || !f.singleValue(right) {
		start := len(buf)
		for _, j := range left {
			buf = append(buf, candidate{idx: j, dist: d})
		}
		for _, j := range right {
			buf = append(buf, candidate{idx: j, dist: d})
		}
		slices.SortFunc(buf[start:], compareCandidates)
		return buf[:min(len(buf), start+need)]
	}

	a, b := 0, 0
	for ; need > 0 && (a < len(left) || b < len(right)); need-- {
		if b >= len(right) || (a < len(left) && left[a] < right[b]) {
			buf = append(buf, candidate{idx: left[a], dist: d})
			a++
		} else {
			buf = append(buf, candidate{idx: right[b], dist: d})
			b++
		}
	}
	return buf
}

func (f *sortedFinder) singleValue(run []int) bool {
	return len(run) == 0 || f.values[run[0]] == f.values[run[len(run)-1]]
}
