package corpus

import (
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/henryhchchc/lsp-fuzz/internal/coverage"
	"github.com/henryhchchc/lsp-fuzz/internal/logging"
)

// entry pairs a test case with the coverage snapshot that admitted it, kept
// for domination checks during pruning.
type entry struct {
	tc       *TestCase
	cov      *coverage.Map
	fileName string
	energy   int
}

// Scheduler owns the global coverage map and the power schedule. Workers
// share one scheduler; only the novelty-check/insert step takes the lock,
// mutation and execution never do.
type Scheduler struct {
	mu      sync.Mutex
	global  *coverage.Map
	entries []*entry
	byID    map[uuid.UUID]*entry

	maxEnergy  int
	pruneEvery int
	inserts    int

	totalExec time.Duration
	execCount int

	rng *rand.Rand
}

// NewScheduler builds a scheduler around an existing global map (possibly
// restored from disk).
func NewScheduler(global *coverage.Map, maxEnergy, pruneEvery int, seed int64) *Scheduler {
	if maxEnergy <= 0 {
		maxEnergy = 512
	}
	if pruneEvery <= 0 {
		pruneEvery = 64
	}
	return &Scheduler{
		global:     global,
		byID:       make(map[uuid.UUID]*entry),
		maxEnergy:  maxEnergy,
		pruneEvery: pruneEvery,
		rng:        rand.New(rand.NewSource(seed)),
	}
}

// AdoptSeed admits an entry unconditionally, used for operator-provided
// seeds and resume. Its edges are unioned into the global map.
func (s *Scheduler) AdoptSeed(tc *TestCase, cov *coverage.Map) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[tc.ID]; ok {
		return
	}
	novel := cov.Union(s.global)
	if tc.Edges == 0 {
		tc.Edges = novel
	}
	s.insert(tc, cov)
}

// Admit checks a mutant's coverage for novelty and inserts it when it found
// at least one globally new edge. This is the only critical section in the
// fuzzing loop.
func (s *Scheduler) Admit(tc *TestCase, cov *coverage.Map, execTime time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalExec += execTime
	s.execCount++

	novel := cov.CountNovel(s.global)
	if novel == 0 {
		return false
	}
	cov.Union(s.global)
	tc.Edges = novel
	tc.ExecTime = execTime
	s.insert(tc, cov)
	logging.ScheduleDebug("admitted %s: %d novel edges, %s", tc.ID, novel, execTime)
	return true
}

// insert appends an entry and recomputes energies. Caller holds the lock.
func (s *Scheduler) insert(tc *TestCase, cov *coverage.Map) {
	e := &entry{tc: tc, cov: cov.Snapshot()}
	s.entries = append(s.entries, e)
	s.byID[tc.ID] = e
	s.inserts++
	s.recomputeEnergies()
}

// recomputeEnergies assigns each entry its mutation-round budget: more novel
// edges earn more rounds, slower entries earn fewer. Caller holds the lock.
func (s *Scheduler) recomputeEnergies() {
	mean := s.meanExec()
	for _, e := range s.entries {
		energy := e.tc.Edges
		if energy < 1 {
			energy = 1
		}
		if e.tc.ExecTime > 0 && mean > 0 {
			ratio := float64(mean) / float64(e.tc.ExecTime)
			if ratio < 0.25 {
				ratio = 0.25
			}
			if ratio > 4 {
				ratio = 4
			}
			energy = int(float64(energy) * ratio)
		}
		if energy < 1 {
			energy = 1
		}
		if energy > s.maxEnergy {
			energy = s.maxEnergy
		}
		e.energy = energy
	}
}

func (s *Scheduler) meanExec() time.Duration {
	if s.execCount == 0 {
		return 0
	}
	return s.totalExec / time.Duration(s.execCount)
}

// Next picks the next seed by energy-weighted random selection and returns
// it with its mutation-round budget. Returns nil when the corpus is empty.
func (s *Scheduler) Next() (*TestCase, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.entries) == 0 {
		return nil, 0
	}
	total := 0
	for _, e := range s.entries {
		total += e.energy
	}
	pick := s.rng.Intn(total)
	for _, e := range s.entries {
		if pick < e.energy {
			return e.tc, e.energy
		}
		pick -= e.energy
	}
	last := s.entries[len(s.entries)-1]
	return last.tc, last.energy
}

// SetEntryName records the on-disk file name after the store persisted the
// entry, so pruning can report which files to retire.
func (s *Scheduler) SetEntryName(id uuid.UUID, fileName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.byID[id]; ok {
		e.fileName = fileName
	}
}

// MaybePrune runs the batched minimization pass when enough insertions have
// accumulated. An entry is dropped when another entry covers all of its
// edges and replays cheaper (smaller, or equally small but faster). Returns
// the file names of pruned entries for the store to retire.
func (s *Scheduler) MaybePrune() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inserts < s.pruneEvery {
		return nil
	}
	return s.prune()
}

// Prune runs the minimization pass unconditionally; the campaign calls it
// on a timer so long-lived corpora shrink even when insertions are rare.
func (s *Scheduler) Prune() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prune()
}

// prune drops dominated entries. Caller holds the lock.
func (s *Scheduler) prune() []string {
	s.inserts = 0

	var kept []*entry
	var prunedNames []string
	for i, candidate := range s.entries {
		dominated := false
		for j, other := range s.entries {
			if i == j {
				continue
			}
			if !other.cov.Dominates(candidate.cov) {
				continue
			}
			if other.tc.Size() < candidate.tc.Size() ||
				(other.tc.Size() == candidate.tc.Size() && other.tc.ExecTime < candidate.tc.ExecTime && j > i) {
				dominated = true
				break
			}
		}
		if dominated {
			delete(s.byID, candidate.tc.ID)
			if candidate.fileName != "" {
				prunedNames = append(prunedNames, candidate.fileName)
			}
		} else {
			kept = append(kept, candidate)
		}
	}
	if len(prunedNames) > 0 || len(kept) != len(s.entries) {
		logging.Schedule("pruned %d dominated entries, %d remain", len(s.entries)-len(kept), len(kept))
	}
	s.entries = kept
	s.recomputeEnergies()
	return prunedNames
}

// GlobalEdges is the number of distinct edges ever observed. Non-decreasing
// for the lifetime of the scheduler.
func (s *Scheduler) GlobalEdges() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.global.EdgeCount()
}

// GlobalSnapshot copies the global map for persistence.
func (s *Scheduler) GlobalSnapshot() *coverage.Map {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.global.Snapshot()
}

// Contains reports whether an entry with the given id is live.
func (s *Scheduler) Contains(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.byID[id]
	return ok
}

// Len is the live corpus size.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// MeanExecTime is the average execution time across all reported runs.
func (s *Scheduler) MeanExecTime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meanExec()
}
