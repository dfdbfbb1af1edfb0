package corpus

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/henryhchchc/lsp-fuzz/internal/coverage"
	"github.com/henryhchchc/lsp-fuzz/internal/logging"
)

const (
	corpusDirName    = "corpus"
	solutionsDirName = "solutions"
	retiredDirName   = "retired"
	coverageFileName = "coverage.map"
	entryExtension   = ".tc"
)

// Store persists corpus entries and scheduler bookkeeping under the fuzzing
// state directory. All writes are write-then-rename so a fuzzer crash never
// leaves a half-written entry behind.
type Store struct {
	stateDir      string
	campaignStart time.Time
	nextOrdinal   int
}

// NewStore opens (or creates) the state-directory layout.
func NewStore(stateDir string) (*Store, error) {
	for _, sub := range []string{corpusDirName, solutionsDirName, retiredDirName} {
		if err := os.MkdirAll(filepath.Join(stateDir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("creating state directory %s: %w", sub, err)
		}
	}
	return &Store{stateDir: stateDir, campaignStart: time.Now().UTC()}, nil
}

// CorpusDir returns the live corpus directory.
func (s *Store) CorpusDir() string { return filepath.Join(s.stateDir, corpusDirName) }

// SolutionsDir returns the crash/hang record directory.
func (s *Store) SolutionsDir() string { return filepath.Join(s.stateDir, solutionsDirName) }

// RetiredDir returns the directory holding pruned entries.
func (s *Store) RetiredDir() string { return filepath.Join(s.stateDir, retiredDirName) }

// SaveTestCase persists a corpus entry atomically and returns its file name.
func (s *Store) SaveTestCase(tc *TestCase) (string, error) {
	name := tc.FileName(s.nextOrdinal, s.campaignStart) + entryExtension
	if err := s.writeEntry(filepath.Join(s.CorpusDir(), name), tc); err != nil {
		return "", err
	}
	s.nextOrdinal++
	return name, nil
}

// SaveSolution persists a fault-triggering entry under solutions/.
func (s *Store) SaveSolution(tc *TestCase) (string, error) {
	name := tc.ID.String() + entryExtension
	if err := s.writeEntry(filepath.Join(s.SolutionsDir(), name), tc); err != nil {
		return "", err
	}
	return name, nil
}

func (s *Store) writeEntry(path string, tc *TestCase) error {
	data, err := tc.Marshal()
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing corpus entry: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("committing corpus entry: %w", err)
	}
	return nil
}

// LoadTestCase reads one entry file.
func LoadTestCase(path string) (*TestCase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading corpus entry: %w", err)
	}
	return UnmarshalTestCase(data)
}

// LoadCorpus reads every live corpus entry in name order. Unreadable entries
// are skipped with a warning; a corrupt file never halts a resume.
func (s *Store) LoadCorpus() ([]*TestCase, error) {
	entries, err := os.ReadDir(s.CorpusDir())
	if err != nil {
		return nil, fmt.Errorf("listing corpus: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), entryExtension) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var cases []*TestCase
	next := 0
	for _, name := range names {
		// Pruning can retire low ordinals, so the count undercounts; the
		// next ordinal comes from the highest one still on disk.
		var ord int
		if _, err := fmt.Sscanf(name, "id_%d_", &ord); err == nil && ord+1 > next {
			next = ord + 1
		}
		tc, err := LoadTestCase(filepath.Join(s.CorpusDir(), name))
		if err != nil {
			logging.CorpusWarn("skipping corrupt entry %s: %v", name, err)
			continue
		}
		cases = append(cases, tc)
	}
	s.nextOrdinal = next
	logging.Corpus("resumed %d of %d corpus entries", len(cases), len(names))
	return cases, nil
}

// RetireEntry moves a pruned entry out of the live corpus into retired/.
// Pruned test cases leave the schedule but are never deleted from disk.
func (s *Store) RetireEntry(name string) error {
	return os.Rename(filepath.Join(s.CorpusDir(), name), filepath.Join(s.RetiredDir(), name))
}

// SaveCoverage persists the global coverage map snapshot.
func (s *Store) SaveCoverage(m *coverage.Map) error {
	path := filepath.Join(s.stateDir, coverageFileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, m.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing coverage map: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("committing coverage map: %w", err)
	}
	return nil
}

// LoadCoverage reads the persisted global map, or returns a zeroed map of
// the given size when none exists yet.
func (s *Store) LoadCoverage(size int) (*coverage.Map, error) {
	data, err := os.ReadFile(filepath.Join(s.stateDir, coverageFileName))
	if os.IsNotExist(err) {
		return coverage.New(size), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading coverage map: %w", err)
	}
	if len(data) != size {
		logging.CorpusWarn("persisted coverage map is %d bytes, expected %d; starting fresh", len(data), size)
		return coverage.New(size), nil
	}
	return coverage.FromBytes(data), nil
}

// Watch invokes fn for every corpus entry created externally (for example
// by an operator dropping seeds into a running campaign). Blocks until the
// context is canceled.
func (s *Store) Watch(ctx context.Context, fn func(*TestCase)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating corpus watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(s.CorpusDir()); err != nil {
		return fmt.Errorf("watching corpus: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Renames are how our own atomic writes land; only pick up
			// finished entries, never .tmp files.
			if event.Op&(fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if !strings.HasSuffix(event.Name, entryExtension) {
				continue
			}
			tc, err := LoadTestCase(event.Name)
			if err != nil {
				// A rename out of the directory (retirement) leaves no file
				// behind; anything else is worth a warning.
				if !errors.Is(err, os.ErrNotExist) {
					logging.CorpusWarn("ignoring unreadable entry %s: %v", event.Name, err)
				}
				continue
			}
			fn(tc)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.CorpusWarn("corpus watcher: %v", err)
		}
	}
}
