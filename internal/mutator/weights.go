package mutator

// Weights adapts the structural-vs-byte operator split from recent results.
// Fragment-based operators are favored early in a run; as structural
// mutation repeatedly fails to improve coverage the split drifts toward
// byte-level operators. Recomputed periodically, not per observation.
type Weights struct {
	window    int
	history   []observation // ring buffer of the last `window` observations
	next      int
	filled    bool
	sinceCalc int

	structuralBias float64
}

type observation struct {
	structural bool
	improved   bool
}

const (
	initialStructuralBias = 0.8
	minStructuralBias     = 0.2
	maxStructuralBias     = 0.8
)

// NewWeights returns weights over a sliding window of observations.
func NewWeights(window int) *Weights {
	if window < 16 {
		window = 16
	}
	return &Weights{
		window:         window,
		history:        make([]observation, window),
		structuralBias: initialStructuralBias,
	}
}

// StructuralBias is the current probability of choosing a fragment-based
// operator for a mutation round.
func (w *Weights) StructuralBias() float64 { return w.structuralBias }

// Observe records whether a round used a structural operator and whether the
// resulting test case improved coverage.
func (w *Weights) Observe(structural, improved bool) {
	w.history[w.next] = observation{structural: structural, improved: improved}
	w.next++
	if w.next == w.window {
		w.next = 0
		w.filled = true
	}
	w.sinceCalc++
	if w.sinceCalc >= w.window/4 {
		w.recompute()
		w.sinceCalc = 0
	}
}

func (w *Weights) recompute() {
	count := w.window
	if !w.filled {
		count = w.next
	}
	if count == 0 {
		return
	}

	var tries, wins int
	for i := 0; i < count; i++ {
		if w.history[i].structural {
			tries++
			if w.history[i].improved {
				wins++
			}
		}
	}
	if tries < 8 {
		// Not enough structural evidence yet; keep favoring structure.
		w.structuralBias = initialStructuralBias
		return
	}

	// Laplace-smoothed success rate, scaled so even rare wins keep some
	// structural share.
	rate := float64(wins+1) / float64(tries+2)
	bias := minStructuralBias + (maxStructuralBias-minStructuralBias)*min(1, rate*8)
	w.structuralBias = bias
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
