package lrcp

// Reverser is the line-reversal application that sits on top of a
// session's ordered byte stream. Writes accumulate; every
// newline-terminated line seen so far is emitted with its characters
// reversed, the terminating newline left in place; any trailing bytes
// past the last newline are withheld until a future write completes
// them. The transformation is pure and restartable: Write may be called
// with the bytes produced by any sequence of splits of the original
// stream and the concatenation of its outputs is unaffected.
type Reverser struct {
	pending []byte
}

// NewReverser returns a ready-to-use Reverser.
func NewReverser() *Reverser {
	return &Reverser{}
}

// Write appends chunk to the buffered input and returns the bytes newly
// produced by reversing any lines it completed. It never returns an
// error: the transformation cannot fail.
func (r *Reverser) Write(chunk []byte) []byte {
	r.pending = append(r.pending, chunk...)

	var out []byte
	start := 0
	for i, c := range r.pending {
		if c != '\n' {
			continue
		}
		line := r.pending[start:i]
		out = append(out, reversed(line)...)
		out = append(out, '\n')
		start = i + 1
	}
	r.pending = append([]byte(nil), r.pending[start:]...)
	return out
}

func reversed(line []byte) []byte {
	out := make([]byte, len(line))
	for i, c := range line {
		out[len(line)-1-i] = c
	}
	return out
}
