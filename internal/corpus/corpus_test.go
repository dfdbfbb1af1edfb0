package corpus

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/henryhchchc/lsp-fuzz/internal/coverage"
	"github.com/henryhchchc/lsp-fuzz/internal/protocol"
	"github.com/henryhchchc/lsp-fuzz/internal/textdoc"
)

func sampleTestCase(t *testing.T) *TestCase {
	t.Helper()
	ws := textdoc.NewWorkspace()
	require.NoError(t, ws.Add(&textdoc.File{Name: "a.go", Language: "go", Content: []byte("package a\n")}))
	seq := &protocol.Sequence{Body: []protocol.Message{
		{Method: protocol.MethodCompletion, Document: "a.go", Position: &textdoc.Position{Line: 0, Character: 2}},
	}}
	return NewTestCase(ws, seq)
}

func covWith(size int, edges ...int) *coverage.Map {
	m := coverage.New(size)
	for _, e := range edges {
		m.Bytes()[e] = 1
	}
	return m
}

func TestTestCaseRoundTrip(t *testing.T) {
	tc := sampleTestCase(t)
	tc.Edges = 3
	tc.ExecTime = 40 * time.Millisecond

	data, err := tc.Marshal()
	require.NoError(t, err)

	got, err := UnmarshalTestCase(data)
	require.NoError(t, err)
	require.Equal(t, tc.ID, got.ID)
	require.Equal(t, tc.Workspace.Hash(), got.Workspace.Hash())
	require.Equal(t, tc.Sequence.Body, got.Sequence.Body)
	require.Equal(t, tc.Edges, got.Edges)
	require.Equal(t, tc.ExecTime, got.ExecTime)
}

func TestUnmarshalRejectsGarbage(t *testing.T) {
	_, err := UnmarshalTestCase([]byte("not msgpack at all"))
	require.Error(t, err)
}

func TestStoreSaveAndResume(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	first := sampleTestCase(t)
	second := sampleTestCase(t)
	_, err = store.SaveTestCase(first)
	require.NoError(t, err)
	_, err = store.SaveTestCase(second)
	require.NoError(t, err)

	cases, err := store.LoadCorpus()
	require.NoError(t, err)
	require.Len(t, cases, 2)
}

func TestResumeSkipsCorruptEntries(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.SaveTestCase(sampleTestCase(t))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(store.CorpusDir(), "broken.tc"), []byte("junk"), 0o644))

	cases, err := store.LoadCorpus()
	require.NoError(t, err)
	require.Len(t, cases, 1, "corrupt entries are skipped, not fatal")
}

func TestEntryNameEncodesOrdinalAndTiming(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	tc := sampleTestCase(t)
	tc.ExecTime = 1500 * time.Microsecond
	name, err := store.SaveTestCase(tc)
	require.NoError(t, err)
	require.Regexp(t, `^id_\d{6}_time_\d+_exec_1500\.tc$`, name)
}

func TestRetireKeepsEntryOnDisk(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	name, err := store.SaveTestCase(sampleTestCase(t))
	require.NoError(t, err)
	require.NoError(t, store.RetireEntry(name))

	_, err = os.Stat(filepath.Join(store.CorpusDir(), name))
	require.True(t, os.IsNotExist(err), "retired entries leave the live corpus")
	_, err = os.Stat(filepath.Join(store.RetiredDir(), name))
	require.NoError(t, err, "retired entries stay on disk")
}

func TestResumeOrdinalContinuesAfterRetirement(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	var names []string
	for i := 0; i < 3; i++ {
		name, err := store.SaveTestCase(sampleTestCase(t))
		require.NoError(t, err)
		names = append(names, name)
	}
	// Retire the low ordinals, as pruning would.
	require.NoError(t, store.RetireEntry(names[0]))
	require.NoError(t, store.RetireEntry(names[1]))

	resumed, err := NewStore(dir)
	require.NoError(t, err)
	_, err = resumed.LoadCorpus()
	require.NoError(t, err)

	name, err := resumed.SaveTestCase(sampleTestCase(t))
	require.NoError(t, err)
	require.Regexp(t, `^id_000003_`, name, "ordinals must continue past the highest survivor")
}

func TestCoverageMapPersistence(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	m := covWith(32, 5, 9)
	require.NoError(t, store.SaveCoverage(m))

	got, err := store.LoadCoverage(32)
	require.NoError(t, err)
	require.Equal(t, 2, got.EdgeCount())

	// A size mismatch falls back to a fresh map instead of failing.
	fresh, err := store.LoadCoverage(64)
	require.NoError(t, err)
	require.Equal(t, 0, fresh.EdgeCount())
}

func TestSchedulerAdmitsOnlyNovelCoverage(t *testing.T) {
	sched := NewScheduler(coverage.New(16), 512, 64, 1)

	seed := sampleTestCase(t)
	sched.AdoptSeed(seed, covWith(16, 0))
	require.Equal(t, 1, sched.Len())
	require.Equal(t, 1, sched.GlobalEdges())

	novel := sampleTestCase(t)
	require.True(t, sched.Admit(novel, covWith(16, 0, 4), 5*time.Millisecond))
	require.Equal(t, 2, sched.GlobalEdges())

	repeat := sampleTestCase(t)
	require.False(t, sched.Admit(repeat, covWith(16, 0, 4), 5*time.Millisecond))
	require.Equal(t, 2, sched.Len())
}

func TestCoverageMonotonicity(t *testing.T) {
	sched := NewScheduler(coverage.New(64), 512, 4, 1)
	prev := 0
	for i := 0; i < 40; i++ {
		tc := sampleTestCase(t)
		// Every third case hits a new edge, the rest repeat old ones.
		edge := (i / 3) % 64
		sched.Admit(tc, covWith(64, edge), time.Millisecond)
		sched.MaybePrune()

		edges := sched.GlobalEdges()
		require.GreaterOrEqual(t, edges, prev, "global edge count must never decrease")
		prev = edges
	}
}

func TestNextPrefersHighEnergySeeds(t *testing.T) {
	sched := NewScheduler(coverage.New(64), 512, 1000, 1)

	low := sampleTestCase(t)
	require.True(t, sched.Admit(low, covWith(64, 1), 10*time.Millisecond))

	rich := sampleTestCase(t)
	require.True(t, sched.Admit(rich, covWith(64, 2, 3, 4, 5, 6, 7, 8, 9), time.Millisecond))

	richPicked := 0
	for i := 0; i < 1000; i++ {
		tc, energy := sched.Next()
		require.NotNil(t, tc)
		require.Greater(t, energy, 0)
		if tc.ID == rich.ID {
			richPicked++
		}
	}
	require.Greater(t, richPicked, 500, "the higher-yield seed should dominate selection")
}

func TestPruneDropsDominatedEntries(t *testing.T) {
	sched := NewScheduler(coverage.New(16), 512, 2, 1)

	big := sampleTestCase(t)
	require.NoError(t, big.Workspace.Add(&textdoc.File{
		Name: "pad.go", Language: "go", Content: []byte("package a\n\nvar padding = 1\n"),
	}))
	require.True(t, sched.Admit(big, covWith(16, 1), 2*time.Millisecond))
	sched.SetEntryName(big.ID, "big.tc")

	// Smaller entry covering a superset of big's edges.
	small := sampleTestCase(t)
	require.True(t, sched.Admit(small, covWith(16, 1, 2), time.Millisecond))

	pruned := sched.MaybePrune()
	require.Equal(t, []string{"big.tc"}, pruned)
	require.Equal(t, 1, sched.Len())
	require.Equal(t, 2, sched.GlobalEdges(), "pruning must not shrink global coverage")
}

func TestPruningIsDeferred(t *testing.T) {
	sched := NewScheduler(coverage.New(16), 512, 100, 1)
	require.True(t, sched.Admit(sampleTestCase(t), covWith(16, 1), time.Millisecond))
	require.True(t, sched.Admit(sampleTestCase(t), covWith(16, 1, 2), time.Millisecond))

	// Below the batch threshold: nothing happens yet.
	require.Nil(t, sched.MaybePrune())
	require.Equal(t, 2, sched.Len())
}

func TestForcedPruneIgnoresBatchThreshold(t *testing.T) {
	sched := NewScheduler(coverage.New(16), 512, 100, 1)

	big := sampleTestCase(t)
	require.NoError(t, big.Workspace.Add(&textdoc.File{
		Name: "pad.go", Language: "go", Content: []byte("package a\n\nvar padding = 1\n"),
	}))
	require.True(t, sched.Admit(big, covWith(16, 1), time.Millisecond))
	require.True(t, sched.Admit(sampleTestCase(t), covWith(16, 1, 2), time.Millisecond))

	require.Nil(t, sched.MaybePrune(), "batch threshold not reached")
	sched.Prune()
	require.Equal(t, 1, sched.Len(), "forced prune drops the dominated entry")
}

func TestDeriveTracksLineage(t *testing.T) {
	parent := sampleTestCase(t)
	child := parent.Derive(parent.Workspace.Clone(), parent.Sequence.Clone())
	require.Equal(t, parent.ID, child.Parent)
	require.NotEqual(t, parent.ID, child.ID)
}
