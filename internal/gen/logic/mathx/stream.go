package mathx

// Stream is a splitmix64 generator. One generation run draws every random
// decision from a single Stream, so the same seed always yields the same
// sequence of decisions on every platform.
type Stream struct {
	state uint64
	draws uint64
}

func NewStream(seed int64) *Stream {
	return &Stream{state: uint64(seed)}
}

func (s *Stream) Uint64() uint64 {
	s.state += 0x9e3779b97f4a7c15
	s.draws++
	return mix64(s.state)
}

// Draws reports how many values have been taken from the stream.
func (s *Stream) Draws() uint64 { return s.draws }

// Intn returns a value in [0,n). n <= 0 returns 0 without advancing.
func (s *Stream) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return int(s.Uint64() % uint64(n))
}

// Float64 returns a value in [0,1).
func (s *Stream) Float64() float64 {
	return float64(s.Uint64()>>11) / (1 << 53)
}

// Shuffle permutes xs in place (Fisher-Yates).
func Shuffle[T any](s *Stream, xs []T) {
	for i := len(xs) - 1; i > 0; i-- {
		j := s.Intn(i + 1)
		xs[i], xs[j] = xs[j], xs[i]
	}
}

// PickWeighted selects one element with probability proportional to its
// weight. Non-positive weights never win unless every weight is
// non-positive, in which case the pick is uniform.
func PickWeighted[T any](s *Stream, xs []T, weight func(T) float64) (T, bool) {
	var zero T
	if len(xs) == 0 {
		return zero, false
	}
	total := 0.0
	for _, x := range xs {
		if w := weight(x); w > 0 {
			total += w
		}
	}
	if total <= 0 {
		return xs[s.Intn(len(xs))], true
	}
	r := s.Float64() * total
	for _, x := range xs {
		w := weight(x)
		if w <= 0 {
			continue
		}
		if r < w {
			return x, true
		}
		r -= w
	}
	// Rounding can leave r marginally above the last weight.
	for i := len(xs) - 1; i >= 0; i-- {
		if weight(xs[i]) > 0 {
			return xs[i], true
		}
	}
	return zero, false
}
