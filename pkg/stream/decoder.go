package stream

import (
	"bytes"
	"iter"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// LineDecoder splits a chunked byte stream into complete text lines.
//
// Chunks may be any size, may be empty, and may split a multi-byte character
// across two calls to Feed. Incomplete UTF-8 sequences are held back until
// the rest of the sequence arrives; invalid bytes decode to U+FFFD. A line
// is yielded only once its '\n' terminator has been seen. The terminator and
// an optional preceding '\r' are stripped. A LineDecoder is not safe for
// concurrent use.
type LineDecoder struct {
	utf8    transform.Transformer
	pending []byte // undecoded bytes (an incomplete UTF-8 sequence)
	text    []byte // decoded text not yet terminated by '\n'
	scratch [4096]byte
}

// NewLineDecoder returns a LineDecoder at the start of a stream.
func NewLineDecoder() *LineDecoder {
	return &LineDecoder{utf8: unicode.UTF8.NewDecoder()}
}

// Feed decodes chunk and returns every line completed by it, in order.
// Empty terminated lines are returned as empty strings.
func (d *LineDecoder) Feed(chunk []byte) []string {
	if len(chunk) == 0 {
		return nil
	}
	d.decode(chunk)

	var lines []string
	for {
		i := bytes.IndexByte(d.text, '\n')
		if i < 0 {
			break
		}
		line := d.text[:i]
		line = bytes.TrimSuffix(line, []byte{'\r'})
		lines = append(lines, string(line))
		d.text = d.text[i+1:]
	}
	if len(d.text) == 0 {
		d.text = nil
	}
	return lines
}

func (d *LineDecoder) decode(chunk []byte) {
	src := append(d.pending, chunk...)
	for len(src) > 0 {
		nDst, nSrc, err := d.utf8.Transform(d.scratch[:], src, false)
		d.text = append(d.text, d.scratch[:nDst]...)
		src = src[nSrc:]
		if err != transform.ErrShortDst || nSrc == 0 && nDst == 0 {
			// nil: all consumed. ErrShortSrc: an incomplete sequence remains.
			break
		}
	}
	d.pending = append(d.pending[:0:0], src...)
}

// Pending returns the decoded text of the current unterminated line.
func (d *LineDecoder) Pending() string {
	return string(d.text)
}

// Reset discards any partial line and partial character. A dangling line
// without a terminator is never yielded: it cannot be parsed as a frame.
func (d *LineDecoder) Reset() {
	d.pending = nil
	d.text = nil
	d.utf8.Reset()
}

// Lines lazily decodes a sequence of chunks into lines. Iteration stops
// early when the consumer stops; the trailing partial line is discarded.
func Lines(chunks iter.Seq[[]byte]) iter.Seq[string] {
	return func(yield func(string) bool) {
		d := NewLineDecoder()
		for chunk := range chunks {
			for _, line := range d.Feed(chunk) {
				if !yield(line) {
					return
				}
			}
		}
	}
}
