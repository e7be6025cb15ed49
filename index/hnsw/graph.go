package hnsw

import (
	"math"
	"math/rand"

	"github.com/bits-and-blooms/bitset"

	"github.com/emberdb/ember/internal/queue"
)

// graph is a navigable small-world proximity graph over an arena of vectors.
// Nodes are addressed by dense uint32 slots into the vectors slice, and
// adjacency is stored as slot indices, so the structure holds no object
// references and no cycles to manage.
//
// The graph is built once under the index's exclusive section and is
// immutable afterwards; concurrent searches need no locking of their own.
type graph struct {
	cfg graphConfig

	vectors [][]float32  // slot -> vector
	conns   [][][]uint32 // slot -> layer -> neighbor slots

	ep       uint32
	maxLevel int

	rng *rand.Rand
}

type graphConfig struct {
	m              int     // max connections per node per layer
	m0             int     // max connections at layer 0
	efConstruction int     // candidate pool size during build
	ml             float64 // level generation factor, 1/ln(m)

	// distFn is the graph's internal distance: lower is always better.
	// Squared L2 for L2/Cosine (cosine vectors are unit length), negated
	// dot product for DotProduct.
	distFn func(a, b []float32) float32
}

func newGraphConfig(m, efConstruction int, distFn func(a, b []float32) float32) graphConfig {
	if m < 2 {
		// m == 1 would make ml divide by zero
		m = 2
	}
	return graphConfig{
		m:              m,
		m0:             2 * m,
		efConstruction: efConstruction,
		ml:             1 / math.Log(float64(m)),
		distFn:         distFn,
	}
}

func newGraph(cfg graphConfig, capacity int) *graph {
	return &graph{
		cfg:     cfg,
		vectors: make([][]float32, 0, capacity),
		conns:   make([][][]uint32, 0, capacity),
		rng:     rand.New(rand.NewSource(rand.Int63())),
	}
}

func (g *graph) size() int { return len(g.vectors) }

// add inserts a vector into the graph, returning its arena slot.
// The caller owns v; it must not be mutated after the call.
func (g *graph) add(v []float32) uint32 {
	slot := uint32(len(g.vectors))
	level := int(math.Floor(-math.Log(g.rng.Float64()) * g.cfg.ml))

	g.vectors = append(g.vectors, v)
	g.conns = append(g.conns, make([][]uint32, level+1))

	if slot == 0 {
		g.ep = 0
		g.maxLevel = level
		return slot
	}

	// Greedy descent through the layers above the node's own level to find
	// the nearest entry point.
	curr := g.ep
	currDist := g.cfg.distFn(g.vectors[curr], v)
	for layer := g.maxLevel; layer > level; layer-- {
		curr, currDist = g.greedyStep(v, curr, currDist, layer)
	}

	// Link into every layer from min(level, maxLevel) down to 0.
	for layer := min(level, g.maxLevel); layer >= 0; layer-- {
		candidates := g.searchLayer(v, queue.Item{Node: curr, Distance: currDist}, g.cfg.efConstruction, layer)

		neighbors := g.selectNeighbors(v, candidates, g.cfg.m)
		g.conns[slot][layer] = neighbors

		maxConns := g.cfg.m
		if layer == 0 {
			maxConns = g.cfg.m0
		}
		for _, n := range neighbors {
			g.link(n, slot, layer, maxConns)
		}

		if len(neighbors) > 0 {
			curr = neighbors[0]
			currDist = g.cfg.distFn(g.vectors[curr], v)
		}
	}

	if level > g.maxLevel {
		g.ep = slot
		g.maxLevel = level
	}
	return slot
}

// search returns the k nearest slots to q in ascending internal distance.
// ef bounds the candidate pool at layer 0 and is clamped to at least k.
func (g *graph) search(q []float32, k, ef int) []queue.Item {
	if len(g.vectors) == 0 {
		return nil
	}
	if ef < k {
		ef = k
	}

	curr := g.ep
	currDist := g.cfg.distFn(g.vectors[curr], q)
	for layer := g.maxLevel; layer > 0; layer-- {
		curr, currDist = g.greedyStep(q, curr, currDist, layer)
	}

	top := g.searchLayer(q, queue.Item{Node: curr, Distance: currDist}, ef, 0)
	for top.Len() > k {
		top.Pop()
	}

	results := make([]queue.Item, top.Len())
	for i := top.Len() - 1; i >= 0; i-- {
		item, _ := top.Pop()
		results[i] = item
	}
	return results
}

// greedyStep walks a single layer greedily until no neighbor improves the
// distance to q, returning the closest node found and its distance.
func (g *graph) greedyStep(q []float32, start uint32, startDist float32, layer int) (uint32, float32) {
	curr, currDist := start, startDist
	for changed := true; changed; {
		changed = false
		if layer >= len(g.conns[curr]) {
			break
		}
		for _, n := range g.conns[curr][layer] {
			if d := g.cfg.distFn(g.vectors[n], q); d < currDist {
				curr, currDist = n, d
				changed = true
			}
		}
	}
	return curr, currDist
}

// searchLayer performs a best-first search of a single layer, returning a
// max-heap of at most ef candidates.
func (g *graph) searchLayer(q []float32, ep queue.Item, ef int, layer int) *queue.PriorityQueue {
	var visited bitset.BitSet
	visited.Set(uint(ep.Node))

	candidates := queue.NewMin(ef)
	candidates.Push(ep)

	top := queue.NewMax(ef)
	top.Push(ep)

	for candidates.Len() > 0 {
		worst, _ := top.Top()
		candidate, _ := candidates.Pop()
		if candidate.Distance > worst.Distance && top.Len() >= ef {
			break
		}

		if layer >= len(g.conns[candidate.Node]) {
			continue
		}
		for _, n := range g.conns[candidate.Node][layer] {
			if visited.Test(uint(n)) {
				continue
			}
			visited.Set(uint(n))

			d := g.cfg.distFn(g.vectors[n], q)
			worst, _ = top.Top()

			if top.Len() < ef {
				item := queue.Item{Node: n, Distance: d}
				top.Push(item)
				candidates.Push(item)
			} else if d < worst.Distance {
				top.Pop()
				item := queue.Item{Node: n, Distance: d}
				top.Push(item)
				candidates.Push(item)
			}
		}
	}

	return top
}

// selectNeighbors applies the diversity heuristic (Algorithm 4 of the HNSW
// paper): a candidate is kept only if it is closer to q than to any already
// selected neighbor, which prevents hub formation; pruned candidates back-fill
// when fewer than m survive.
func (g *graph) selectNeighbors(q []float32, candidates *queue.PriorityQueue, m int) []uint32 {
	// Drain the max-heap into ascending distance order.
	sorted := make([]queue.Item, candidates.Len())
	for i := candidates.Len() - 1; i >= 0; i-- {
		item, _ := candidates.Pop()
		sorted[i] = item
	}

	if len(sorted) <= m {
		out := make([]uint32, len(sorted))
		for i, item := range sorted {
			out[i] = item.Node
		}
		return out
	}

	selected := make([]uint32, 0, m)
	pruned := make([]uint32, 0, len(sorted)-m)

	for _, cand := range sorted {
		if len(selected) >= m {
			break
		}
		keep := true
		for _, s := range selected {
			if g.cfg.distFn(g.vectors[cand.Node], g.vectors[s]) < cand.Distance {
				keep = false
				break
			}
		}
		if keep {
			selected = append(selected, cand.Node)
		} else {
			pruned = append(pruned, cand.Node)
		}
	}

	for _, p := range pruned {
		if len(selected) >= m {
			break
		}
		selected = append(selected, p)
	}
	return selected
}

// link adds an edge from node to target at layer, re-selecting the node's
// neighbor set when it exceeds maxConns.
func (g *graph) link(node, target uint32, layer, maxConns int) {
	g.conns[node][layer] = append(g.conns[node][layer], target)
	if len(g.conns[node][layer]) <= maxConns {
		return
	}

	nodeVec := g.vectors[node]
	pool := queue.NewMax(len(g.conns[node][layer]))
	for _, n := range g.conns[node][layer] {
		pool.Push(queue.Item{Node: n, Distance: g.cfg.distFn(nodeVec, g.vectors[n])})
	}
	g.conns[node][layer] = g.selectNeighbors(nodeVec, pool, maxConns)
}
