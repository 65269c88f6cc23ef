package gc

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/reclaim/heap"
)

// Config controls a collector's trigger policy.
type Config struct {
	// CandidateThreshold triggers a pass automatically once the suspect
	// set reaches this size. Zero or less means passes run only on
	// explicit Collect calls.
	CandidateThreshold int

	// RetainUnreclaimable keeps cyclic garbage allocated and lists it
	// for inspection instead of reclaiming it.
	RetainUnreclaimable bool
}

// PassStats records the outcome of a single collection pass.
type PassStats struct {
	Pass       int
	Candidates int
	Reclaimed  int
	Retained   int
}

// Stats is a snapshot of a collector's counters.
type Stats struct {
	History   []PassStats
	Passes    int
	Reclaimed int
	Retained  int
	Suspects  int
}

// Collector reclaims objects whose count never reaches zero because
// they participate in a reference cycle. It owns its own candidate set
// and pass counters; there is no process-wide collector state.
//
// Candidates accumulate from store events: any object whose count
// decrements without reaching zero is a cycle suspect. A pass computes,
// for every object in the transitive closure of the candidates, a trial
// count equal to its direct count minus its in-edges from within that
// closure. Members whose trial count stays positive are externally
// referenced; their liveness propagates through the closure to a fixed
// point, and whatever remains is a dead cycle.
type Collector struct {
	store      *heap.Store
	candidates map[heap.Handle]struct{}
	retainSet  map[heap.Handle]struct{}
	retained   []heap.Handle
	history    []PassStats
	mu         sync.Mutex
	cfg        Config
	passes     int
	reclaimed  int
	collecting bool
}

// New creates a collector attached to a store. The collector subscribes
// to the store's lifecycle events to maintain its candidate set.
func New(store *heap.Store, cfg Config) *Collector {
	c := &Collector{
		store:      store,
		cfg:        cfg,
		candidates: make(map[heap.Handle]struct{}),
		retainSet:  make(map[heap.Handle]struct{}),
	}
	store.Subscribe(c)
	return c
}

// OnHeapEvent implements heap.Observer.
func (c *Collector) OnHeapEvent(e heap.Event) {
	switch e.Type {
	case heap.EventSuspected:
		c.mu.Lock()
		c.candidates[e.Handle] = struct{}{}
		trigger := !c.collecting &&
			c.cfg.CandidateThreshold > 0 &&
			len(c.candidates) >= c.cfg.CandidateThreshold
		c.mu.Unlock()
		if trigger {
			c.Collect()
		}
	case heap.EventReclaimed:
		c.mu.Lock()
		delete(c.candidates, e.Handle)
		delete(c.retainSet, e.Handle)
		c.mu.Unlock()
	}
}

// Collect runs one synchronous trial-deletion pass over the accumulated
// candidates and returns the number of objects reclaimed. Suspects
// flagged by the pass's own cascade are kept for the next pass.
func (c *Collector) Collect() int {
	c.mu.Lock()
	if c.collecting {
		c.mu.Unlock()
		return 0
	}
	c.collecting = true
	seeds := make([]heap.Handle, 0, len(c.candidates))
	for h := range c.candidates {
		seeds = append(seeds, h)
	}
	c.mu.Unlock()

	graph := c.store.Graph(seeds)

	// Trial deletion: subtract in-edges that originate inside the
	// closure. A positive remainder means an external referent exists.
	internal := make(map[heap.Handle]uint32, len(graph))
	for _, n := range graph {
		for _, t := range n.Out {
			if _, ok := graph[t]; ok {
				internal[t]++
			}
		}
	}

	live := make(map[heap.Handle]struct{})
	var work []heap.Handle
	for h, n := range graph {
		if n.RC > internal[h] {
			live[h] = struct{}{}
			work = append(work, h)
		}
	}
	for len(work) > 0 {
		h := work[len(work)-1]
		work = work[:len(work)-1]
		for _, t := range graph[h].Out {
			if _, ok := graph[t]; !ok {
				continue
			}
			if _, ok := live[t]; ok {
				continue
			}
			live[t] = struct{}{}
			work = append(work, t)
		}
	}

	var dead []heap.Handle
	for h := range graph {
		if _, ok := live[h]; !ok {
			dead = append(dead, h)
		}
	}
	sort.Slice(dead, func(i, j int) bool { return dead[i] < dead[j] })

	// This pass settles every suspicion inside the closure; suspects
	// raised by the reclaim cascade below arrive as fresh events.
	c.mu.Lock()
	for h := range graph {
		delete(c.candidates, h)
	}
	retain := c.cfg.RetainUnreclaimable
	if retain {
		for _, h := range dead {
			if _, ok := c.retainSet[h]; !ok {
				c.retainSet[h] = struct{}{}
				c.retained = append(c.retained, h)
			}
		}
	}
	c.mu.Unlock()

	reclaimed := 0
	retainedNow := 0
	if len(dead) > 0 {
		if retain {
			retainedNow = len(dead)
		} else {
			reclaimed = c.store.ReclaimSet(dead)
		}
	}

	c.mu.Lock()
	c.passes++
	c.reclaimed += reclaimed
	c.history = append(c.history, PassStats{
		Pass:       c.passes,
		Candidates: len(seeds),
		Reclaimed:  reclaimed,
		Retained:   retainedNow,
	})
	pass := c.passes
	c.collecting = false
	c.mu.Unlock()

	Logger().Info("collection pass complete",
		zap.Int("pass", pass),
		zap.Int("candidates", len(seeds)),
		zap.Int("reclaimed", reclaimed),
		zap.Int("retained", retainedNow))
	return reclaimed
}

// Stats returns a snapshot of the collector's counters.
func (c *Collector) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	history := make([]PassStats, len(c.history))
	copy(history, c.history)
	return Stats{
		History:   history,
		Passes:    c.passes,
		Reclaimed: c.reclaimed,
		Retained:  len(c.retained),
		Suspects:  len(c.candidates),
	}
}

// Retained returns the handles kept for inspection in retain mode, in
// the order they were retained.
func (c *Collector) Retained() []heap.Handle {
	c.mu.Lock()
	defer c.mu.Unlock()

	retained := make([]heap.Handle, len(c.retained))
	copy(retained, c.retained)
	return retained
}
