package grasp

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// DefaultMaxPinned is the number of particles pinned per grasp.
const DefaultMaxPinned = 8

type candidate struct {
	particle int
	dist     float64
	seq      int
}

// SelectNearest returns up to k particles from indices closest to target.
// positions[i] is the position of indices[i].
//
// The candidate list is bounded at k. Once full, a particle replaces the
// current worst candidate only when it is strictly closer, and the worst is
// found again by rescanning the list. With k around 8 this beats a heap.
// Ties keep the particle seen first.
func SelectNearest(indices []int, positions []r3.Vec, target r3.Vec, k int) []int {
	return SelectNearestExcluding(indices, positions, target, k, nil)
}

// SelectNearestExcluding is SelectNearest skipping any particle in exclude.
func SelectNearestExcluding(indices []int, positions []r3.Vec, target r3.Vec, k int, exclude map[int]bool) []int {
	if k <= 0 || len(indices) == 0 {
		return nil
	}
	n := min(len(indices), len(positions))

	list := make([]candidate, 0, k)
	worst := -1
	for i := 0; i < n; i++ {
		p := indices[i]
		if exclude[p] {
			continue
		}
		d := r3.Norm(r3.Sub(positions[i], target))

		if len(list) < k {
			list = append(list, candidate{particle: p, dist: d, seq: i})
			if worst < 0 || worse(list[len(list)-1], list[worst]) {
				worst = len(list) - 1
			}
			continue
		}
		if d >= list[worst].dist {
			continue
		}
		list[worst] = candidate{particle: p, dist: d, seq: i}
		worst = 0
		for j := 1; j < len(list); j++ {
			if worse(list[j], list[worst]) {
				worst = j
			}
		}
	}

	out := make([]int, len(list))
	for i, c := range list {
		out[i] = c.particle
	}
	return out
}

// worse orders eviction: farther first, then later-seen.
func worse(a, b candidate) bool {
	if a.dist != b.dist {
		return a.dist > b.dist
	}
	return a.seq > b.seq
}
