package audio

// Framer re-chunks an arbitrary stream of sample blocks into fixed-size frames.
// It is not safe for concurrent use; the capture loop owns it.
type Framer struct {
	size    int
	pending []float32
}

func NewFramer(size int) *Framer {
	if size <= 0 {
		size = 4096
	}
	return &Framer{
		size:    size,
		pending: make([]float32, 0, size),
	}
}

// Push appends samples and returns every frame that is now complete.
func (f *Framer) Push(samples []float32) [][]float32 {
	var frames [][]float32

	for len(samples) > 0 {
		need := f.size - len(f.pending)
		if need > len(samples) {
			need = len(samples)
		}
		f.pending = append(f.pending, samples[:need]...)
		samples = samples[need:]

		if len(f.pending) == f.size {
			frame := make([]float32, f.size)
			copy(frame, f.pending)
			frames = append(frames, frame)
			f.pending = f.pending[:0]
		}
	}

	return frames
}

// Pending reports how many samples are buffered waiting for a full frame.
func (f *Framer) Pending() int {
	return len(f.pending)
}

func (f *Framer) Size() int {
	return f.size
}
