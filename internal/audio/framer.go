package audio

// Framer accumulates raw PCM bytes and cuts them into fixed-size frames
// for upstream chunking. Capture callbacks only push and forward; they
// never block.
type Framer struct {
	frameBytes int
	buf        []byte
}

// NewFramer creates a framer cutting frames of the given sample count.
func NewFramer(frameSamples int) *Framer {
	return &Framer{
		frameBytes: frameSamples * bytesPerSample,
		buf:        make([]byte, 0, frameSamples*bytesPerSample),
	}
}

// Push appends data and returns every complete frame now available.
func (f *Framer) Push(data []byte) [][]byte {
	f.buf = append(f.buf, data...)

	var frames [][]byte
	for len(f.buf) >= f.frameBytes {
		frame := make([]byte, f.frameBytes)
		copy(frame, f.buf[:f.frameBytes])
		frames = append(frames, frame)
		f.buf = f.buf[f.frameBytes:]
	}
	return frames
}

// Flush returns any buffered remainder as a short final frame and resets.
func (f *Framer) Flush() []byte {
	if len(f.buf) == 0 {
		return nil
	}
	rest := make([]byte, len(f.buf))
	copy(rest, f.buf)
	f.buf = f.buf[:0]
	return rest
}

// Reset discards buffered bytes.
func (f *Framer) Reset() {
	f.buf = f.buf[:0]
}
