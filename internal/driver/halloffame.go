package driver

import (
	"slices"
	"sort"

	"github.com/cwbudde/onefifth/internal/es"
)

// HallOfFame keeps the best distinct individuals seen during a run, sorted by
// ascending fitness.
type HallOfFame struct {
	size  int
	items []es.Individual
}

// NewHallOfFame returns a hall of fame holding at most size individuals.
func NewHallOfFame(size int) *HallOfFame {
	if size < 1 {
		size = 1
	}
	return &HallOfFame{size: size}
}

// Insert offers an evaluated individual. It returns true if it was kept.
func (h *HallOfFame) Insert(ind es.Individual) bool {
	if !ind.Evaluated {
		return false
	}
	if len(h.items) == h.size && ind.Fitness >= h.items[len(h.items)-1].Fitness {
		return false
	}
	for _, it := range h.items {
		if it.Fitness == ind.Fitness && slices.Equal(it.X, ind.X) {
			return false
		}
	}

	i := sort.Search(len(h.items), func(i int) bool { return h.items[i].Fitness > ind.Fitness })
	h.items = slices.Insert(h.items, i, ind.Clone())
	if len(h.items) > h.size {
		h.items = h.items[:h.size]
	}
	return true
}

// Best returns the best individual and false if nothing was inserted yet.
func (h *HallOfFame) Best() (es.Individual, bool) {
	if len(h.items) == 0 {
		return es.Individual{}, false
	}
	return h.items[0].Clone(), true
}

// Items returns copies of the kept individuals, best first.
func (h *HallOfFame) Items() []es.Individual {
	out := make([]es.Individual, len(h.items))
	for i, it := range h.items {
		out[i] = it.Clone()
	}
	return out
}

func (h *HallOfFame) Len() int { return len(h.items) }
