package mutator

import "math/rand"

// byteMutate applies one classic byte-level mutation: bit flip, byte
// arithmetic, chunk deletion or chunk duplication. It is both a standalone
// operator and the fallback when structural mutation is inapplicable, so it
// must succeed on any non-degenerate input.
func byteMutate(rng *rand.Rand, content []byte, maxSize int) ([]byte, Result) {
	if len(content) == 0 {
		// Nothing to flip; synthesize a byte so the mutator never stalls.
		return []byte{byte(rng.Intn(256))}, Applied()
	}

	out := make([]byte, len(content))
	copy(out, content)

	switch rng.Intn(4) {
	case 0: // bit flip
		i := rng.Intn(len(out))
		out[i] ^= 1 << uint(rng.Intn(8))
		return out, Applied()

	case 1: // byte arithmetic
		i := rng.Intn(len(out))
		out[i] += byte(rng.Intn(71) - 35)
		return out, Applied()

	case 2: // chunk deletion
		if len(out) < 2 {
			out[0] ^= 0xFF
			return out, Applied()
		}
		start := rng.Intn(len(out) - 1)
		size := 1 + rng.Intn(minInt(len(out)-start-1, 64)+1)
		out = append(out[:start], out[start+size:]...)
		return out, Applied()

	default: // chunk duplication
		start := rng.Intn(len(out))
		size := 1 + rng.Intn(minInt(len(out)-start, 64))
		chunk := out[start : start+size]
		if len(out)+len(chunk) > maxSize {
			// Fall back to a flip rather than exceeding the size cap.
			out[start] ^= 0xFF
			return out, Applied()
		}
		dup := make([]byte, 0, len(out)+len(chunk))
		dup = append(dup, out[:start+size]...)
		dup = append(dup, chunk...)
		dup = append(dup, out[start+size:]...)
		return dup, Applied()
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
