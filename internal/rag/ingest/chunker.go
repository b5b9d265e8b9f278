package ingest

import (
	"slices"
	"strings"
	"unicode"

	"github.com/akolanti/ProposalAPI/internal/config"
)

// sentenceWindow is how far (in runes) a break point may move to land on a sentence end.
const sentenceWindow = 100

// TextChunk is a window of the source text. Start and End are rune offsets, End exclusive.
type TextChunk struct {
	Index int
	Start int
	End   int
	Text  string
}

// Chunk splits text into windows of size runes where consecutive windows share
// overlap runes. A break point within sentenceWindow runes of a sentence end moves
// there; otherwise the text is cut hard at size.
func Chunk(text string, size, overlap int) []TextChunk {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}
	if size <= 0 {
		size = config.ChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	var chunks []TextChunk
	start := 0
	for {
		end := start + size
		if end >= n {
			chunks = append(chunks, TextChunk{Index: len(chunks), Start: start, End: n, Text: string(runes[start:n])})
			break
		}
		end = alignToSentence(runes, start+overlap, end)
		chunks = append(chunks, TextChunk{Index: len(chunks), Start: start, End: end, Text: string(runes[start:end])})

		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

// alignToSentence returns the cut position nearest to end that follows a sentence
// terminator, preferring the shorter chunk on a tie. Cuts at or below floor are
// rejected so the next window always starts after the current one.
func alignToSentence(runes []rune, floor, end int) int {
	for d := 0; d <= sentenceWindow; d++ {
		if b := end - d; b > floor && isSentenceEnd(runes, b) {
			return b
		}
		if b := end + d; d > 0 && b < len(runes) && isSentenceEnd(runes, b) {
			return b
		}
	}
	return end
}

func isSentenceEnd(runes []rune, cut int) bool {
	if cut <= 0 || cut > len(runes) {
		return false
	}
	last := runes[cut-1]
	if last == '\n' {
		return true
	}
	if last != '.' && last != '!' && last != '?' {
		return false
	}
	return cut == len(runes) || unicode.IsSpace(runes[cut])
}

// Reassemble rebuilds the source text from chunks, dropping the overlapping part
// of each chunk. Chunks written without offsets are assumed to share
// config.ChunkOverlap runes; see ReassembleWithOverlap.
func Reassemble(chunks []TextChunk) string {
	return ReassembleWithOverlap(chunks, config.ChunkOverlap)
}

// ReassembleWithOverlap is Reassemble for chunks cut with the given overlap. Only
// chunks without offsets use it, and for them the result is best effort: exactly
// overlap shared runes are dropped when they match, otherwise the longest shared
// suffix/prefix no longer than overlap.
func ReassembleWithOverlap(chunks []TextChunk, overlap int) string {
	if len(chunks) == 0 {
		return ""
	}
	sorted := slices.Clone(chunks)
	slices.SortFunc(sorted, func(a, b TextChunk) int { return a.Index - b.Index })

	if !hasOffsets(sorted) {
		return reassembleByText(sorted, overlap)
	}

	var b strings.Builder
	covered := sorted[0].Start
	for _, c := range sorted {
		r := []rune(c.Text)
		skip := covered - c.Start
		if skip < 0 {
			// a chunk is missing; keep what we have rather than guessing
			skip = 0
		}
		if skip >= len(r) {
			continue
		}
		b.WriteString(string(r[skip:]))
		if end := c.Start + len(r); end > covered {
			covered = end
		}
	}
	return b.String()
}

func hasOffsets(sorted []TextChunk) bool {
	for _, c := range sorted {
		if c.Index > 0 && c.Start == 0 {
			return false
		}
	}
	return true
}

func reassembleByText(sorted []TextChunk, overlap int) string {
	var acc []rune
	for i, c := range sorted {
		r := []rune(c.Text)
		if i > 0 {
			r = r[textOverlap(acc, r, overlap):]
		}
		acc = append(acc, r...)
	}
	return string(acc)
}

// textOverlap returns how many leading runes of next repeat the end of acc. The
// configured overlap wins when it matches; otherwise the longest shorter match.
func textOverlap(acc, next []rune, overlap int) int {
	if overlap <= 0 {
		return 0
	}
	limit := min(len(acc), len(next), overlap)
	for k := limit; k > 0; k-- {
		if slices.Equal(acc[len(acc)-k:], next[:k]) {
			return k
		}
	}
	return 0
}
