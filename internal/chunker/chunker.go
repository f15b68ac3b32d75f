// Package chunker splits loader output into overlapping fixed-size windows.
package chunker

import "errors"

type Chunker struct {
	size    int
	overlap int
}

// New builds a chunker with a target window of size runes and overlap runes
// shared between neighboring windows. Overlap must be strictly smaller than
// the window or the cursor would never advance.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, errors.New("chunker: window size must be positive")
	}
	if overlap < 0 || overlap >= size {
		return nil, errors.New("chunker: overlap must be in [0, size)")
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Split cuts text into windows of up to size runes, each starting
// size-overlap runes after the previous one. For rune length L it yields
// 0 windows when L == 0, 1 when L <= size, and ceil((L-overlap)/(size-overlap))
// otherwise.
func (c *Chunker) Split(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= c.size {
		return []string{text}
	}

	step := c.size - c.overlap
	var out []string
	for start := 0; start < len(runes); start += step {
		end := start + c.size
		if end >= len(runes) {
			out = append(out, string(runes[start:]))
			break
		}
		out = append(out, string(runes[start:end]))
	}
	return out
}

func (c *Chunker) Size() int    { return c.size }
func (c *Chunker) Overlap() int { return c.overlap }
