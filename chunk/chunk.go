// Package chunk implements the Chunker (C6): splitting joined page text
// into overlapping, bounded-length fragments, preferring paragraph, then
// sentence, then punctuation, then hard-character boundaries (spec
// section 4.6). Grounded on other_examples's PIXELL07 document-ingestion
// service, which drives the same library (tmc/langchaingo/textsplitter)
// off a RecursiveCharacter splitter configured with chunk size and
// overlap; this package adds the punctuation-aware separator ladder and
// hard-cap/empty-chunk policy spec section 4.6 requires beyond that
// example's defaults.
package chunk

import (
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
)

// Config controls target length, overlap, and the hard cap spec section
// 4.6 names.
type Config struct {
	TargetLength  int
	OverlapLength int
	HardCap       int
}

// DefaultConfig matches spec section 4.6's stated defaults: ~500-char
// target chunks, 50-char overlap, 2000-char hard cap.
func DefaultConfig() Config {
	return Config{TargetLength: 500, OverlapLength: 50, HardCap: 2000}
}

// separatorLadder expresses "paragraph, then sentence, then punctuation,
// then hard boundary" as the ordered separator list RecursiveCharacter
// recurses through: it tries the first separator, and for any resulting
// piece still over chunk size, recurses into the next.
var separatorLadder = []string{
	"\n\n",   // paragraph
	". ", "! ", "? ", // sentence
	"\n", ", ", "; ", // punctuation
	" ", "", // hard boundary: word, then character
}

// Fragment is one chunk of page text awaiting embedding, with its
// position among the page's other chunks (local_index in spec section
// 3's Chunk type).
type Fragment struct {
	LocalIndex int
	Text       string
}

// Splitter chunks page text per Config.
type Splitter struct {
	cfg      Config
	splitter textsplitter.TextSplitter
}

func New(cfg Config) *Splitter {
	return &Splitter{
		cfg: cfg,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(cfg.TargetLength),
			textsplitter.WithChunkOverlap(cfg.OverlapLength),
			textsplitter.WithSeparators(separatorLadder),
		),
	}
}

// Split breaks pageText into ordered, non-empty fragments no longer than
// cfg.HardCap. Empty and whitespace-only pieces are dropped per spec
// section 4.6.
func (s *Splitter) Split(pageText string) ([]Fragment, error) {
	pieces, err := s.splitter.SplitText(pageText)
	if err != nil {
		return nil, err
	}

	var fragments []Fragment
	for _, p := range pieces {
		for _, bounded := range enforceHardCap(p, s.cfg.HardCap) {
			if strings.TrimSpace(bounded) == "" {
				continue
			}
			fragments = append(fragments, Fragment{LocalIndex: len(fragments), Text: bounded})
		}
	}
	return fragments, nil
}

// enforceHardCap is a backstop against pathological input (e.g. one
// unbroken run of non-whitespace characters longer than the splitter's
// configured chunk size, which RecursiveCharacter's character-level
// fallback separator should already prevent, but which this still
// re-checks since the chunker's correctness invariant is stated
// independently of the splitting library's own guarantees).
func enforceHardCap(text string, hardCap int) []string {
	if hardCap <= 0 || len(text) <= hardCap {
		return []string{text}
	}
	var out []string
	for len(text) > hardCap {
		out = append(out, text[:hardCap])
		text = text[hardCap:]
	}
	if len(text) > 0 {
		out = append(out, text)
	}
	return out
}
