package coverage

import "testing"

func TestEdgeCount(t *testing.T) {
	m := New(8)
	if m.EdgeCount() != 0 {
		t.Error("Fresh map must have no edges")
	}
	m.Bytes()[1] = 1
	m.Bytes()[5] = 200
	if m.EdgeCount() != 2 {
		t.Errorf("Expected 2 edges, got %d", m.EdgeCount())
	}
}

func TestUnionReportsNovelEdges(t *testing.T) {
	global := New(8)
	run := New(8)
	run.Bytes()[0] = 1
	run.Bytes()[3] = 1

	if novel := run.Union(global); novel != 2 {
		t.Errorf("Expected 2 novel edges, got %d", novel)
	}
	// Same edges again: nothing new.
	if novel := run.Union(global); novel != 0 {
		t.Errorf("Expected 0 novel edges on repeat, got %d", novel)
	}
}

func TestHitCountBucketing(t *testing.T) {
	global := New(4)
	run := New(4)
	run.Bytes()[0] = 1
	run.Union(global)

	// Same edge with a bucket-equivalent count is not novel.
	same := New(4)
	same.Bytes()[0] = 1
	if same.CountNovel(global) != 0 {
		t.Error("Bucket-equal hit count must not be novel")
	}

	// A much larger hit count lands in a new bucket.
	hot := New(4)
	hot.Bytes()[0] = 200
	if hot.CountNovel(global) != 1 {
		t.Error("New hit bucket on a known edge must count as novel")
	}
}

func TestSnapshotIsIndependent(t *testing.T) {
	m := New(4)
	m.Bytes()[0] = 7
	snap := m.Snapshot()
	m.Reset()
	if snap.Bytes()[0] != 7 {
		t.Error("Snapshot must survive a Reset of the original")
	}
}

func TestDominates(t *testing.T) {
	big := New(4)
	big.Bytes()[0] = 1
	big.Bytes()[1] = 1
	small := New(4)
	small.Bytes()[1] = 9

	if !big.Dominates(small) {
		t.Error("big covers a superset of small's edges")
	}
	if small.Dominates(big) {
		t.Error("small does not cover edge 0")
	}
}

func TestHashStability(t *testing.T) {
	a := New(16)
	a.Bytes()[3] = 2
	b := New(16)
	b.Bytes()[3] = 2
	if a.Hash() != b.Hash() {
		t.Error("Equal maps must hash equal")
	}
	b.Bytes()[4] = 1
	if a.Hash() == b.Hash() {
		t.Error("Different maps should hash differently")
	}
}
