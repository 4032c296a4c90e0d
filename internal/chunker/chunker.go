// Package chunker splits extracted text into bounded, overlapping segments.
package chunker

import (
	"crypto/md5"
	"encoding/hex"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/custodia-labs/docpipe/internal/core/domain"
)

// DefaultChunkSize is the default number of runes per chunk.
const DefaultChunkSize = 1000

// DefaultChunkOverlap is the default number of overlapping runes.
const DefaultChunkOverlap = 100

// Chunker splits text into segments of at most chunkSize runes.
// Consecutive segments share up to overlap runes.
type Chunker struct {
	chunkSize int
	overlap   int
	now       func() time.Time
}

// Option configures the chunker.
type Option func(*Chunker)

// WithChunkSize sets the chunk size in runes.
func WithChunkSize(size int) Option {
	return func(c *Chunker) {
		if size > 0 {
			c.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between chunks in runes.
func WithOverlap(overlap int) Option {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

// WithClock sets the clock used for chunk creation times.
func WithClock(now func() time.Time) Option {
	return func(c *Chunker) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates a chunker with the given options.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	// Overlap must leave room to advance.
	if c.overlap >= c.chunkSize {
		c.overlap = c.chunkSize / 4
	}

	return c
}

// ChunkSize returns the configured size in runes.
func (c *Chunker) ChunkSize() int { return c.chunkSize }

// Overlap returns the configured overlap in runes.
func (c *Chunker) Overlap() int { return c.overlap }

// Split segments text. Pieces are returned in order with Position, Start,
// End, Overlap, Length and Hash set; identifiers are left empty.
// Concatenating the first piece with every later piece minus its leading
// Overlap runes yields text exactly.
func (c *Chunker) Split(text string) []domain.Chunk {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}

	step := c.chunkSize - c.overlap
	pieces := make([]domain.Chunk, 0, n/step+1)

	start, prevEnd := 0, 0
	for position := 0; ; position++ {
		end := start + c.chunkSize
		if end >= n {
			end = n
		} else {
			end = breakPoint(runes, start, end)
			if end <= prevEnd {
				end = start + c.chunkSize
			}
		}

		overlap := 0
		if position > 0 {
			overlap = prevEnd - start
		}

		segment := string(runes[start:end])
		pieces = append(pieces, domain.Chunk{
			Position: position,
			Text:     segment,
			Hash:     Hash(segment),
			Length:   end - start,
			Overlap:  overlap,
			Start:    start,
			End:      end,
		})

		if end == n {
			break
		}

		next := end - c.overlap
		if next <= start {
			next = start + 1
		}
		prevEnd, start = end, next
	}

	return pieces
}

// ChunkDocument splits text and assigns chunk and document identifiers.
func (c *Chunker) ChunkDocument(documentUUID, text string) []domain.Chunk {
	pieces := c.Split(text)
	now := c.now().UTC()
	for i := range pieces {
		pieces[i].UUID = uuid.New().String()
		pieces[i].DocumentUUID = documentUUID
		// Distinct timestamps keep creation order stable for ranking ties.
		pieces[i].CreatedAt = now.Add(time.Duration(i) * time.Microsecond)
	}
	return pieces
}

// Hash returns the md5 hex digest of s.
func Hash(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// breakPoint picks a cut in the last quarter of runes[start:end]: after a
// paragraph break, else after a sentence end, else after whitespace, else end.
func breakPoint(runes []rune, start, end int) int {
	lo := end - (end-start)/4
	if lo <= start {
		lo = start + 1
	}

	for i := end - 1; i >= lo; i-- {
		if runes[i] == '\n' && runes[i-1] == '\n' {
			return i + 1
		}
	}
	for i := end - 1; i >= lo; i-- {
		if isSentenceEnd(runes[i-1]) && unicode.IsSpace(runes[i]) {
			return i + 1
		}
	}
	for i := end - 1; i >= lo; i-- {
		if unicode.IsSpace(runes[i]) {
			return i + 1
		}
	}
	return end
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?':
		return true
	}
	return false
}
