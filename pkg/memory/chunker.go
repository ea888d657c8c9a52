package memory

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var (
	headerPattern    = regexp.MustCompile(`(?m)^(#{1,6})\s+(.+?)$`)
	paragraphPattern = regexp.MustCompile(`\n\s*\n`)
	linkPattern      = regexp.MustCompile(`\[([^\]]+)\]\([^\)]+\)`)
	formatPattern    = regexp.MustCompile("[*_`#]+")
	spacePattern     = regexp.MustCompile(`\s+`)
)

// ChunkerOptions configures MarkdownChunker.
type ChunkerOptions struct {
	// SizeLimit is the maximum section length, in characters, before a split.
	SizeLimit int
	// Overlap is how many trailing characters of a part are repeated at the
	// start of the next one. Zero disables overlap.
	Overlap int
	// FenceAware ignores header-like lines inside fenced or indented code blocks.
	FenceAware bool
}

// DefaultChunkerOptions returns the standard 1500/100 configuration.
func DefaultChunkerOptions() ChunkerOptions {
	return ChunkerOptions{
		SizeLimit: DefaultChunkSizeLimit,
		Overlap:   DefaultChunkOverlap,
	}
}

// MarkdownChunker splits markdown into header-scoped chunks.
type MarkdownChunker struct {
	sizeLimit  int
	overlap    int
	fenceAware bool
	md         goldmark.Markdown
	now        func() time.Time
	newID      func() string
}

// NewMarkdownChunker creates a chunker. A non-positive SizeLimit falls back to
// the default, a negative Overlap is treated as zero.
func NewMarkdownChunker(opts ChunkerOptions) *MarkdownChunker {
	if opts.SizeLimit <= 0 {
		opts.SizeLimit = DefaultChunkSizeLimit
	}
	if opts.Overlap < 0 {
		opts.Overlap = 0
	}

	c := &MarkdownChunker{
		sizeLimit:  opts.SizeLimit,
		overlap:    opts.Overlap,
		fenceAware: opts.FenceAware,
		now:        time.Now,
		newID:      uuid.NewString,
	}
	if opts.FenceAware {
		c.md = goldmark.New()
	}
	return c
}

// SizeLimit returns the configured split threshold.
func (c *MarkdownChunker) SizeLimit() int { return c.sizeLimit }

// Overlap returns the configured overlap length.
func (c *MarkdownChunker) Overlap() int { return c.overlap }

type section struct {
	title   string
	level   int
	path    string
	content string
}

type header struct {
	level int
	title string
}

// Chunk splits content into chunks in document order. It never fails; input
// without headers yields a single "Document" chunk, blank input yields none.
// FileModifiedAt is left zero for the caller to stamp.
func (c *MarkdownChunker) Chunk(content, filePath string) []MemoryChunk {
	now := c.now().UTC()

	var chunks []MemoryChunk
	for _, s := range c.parseSections(content) {
		body := strings.TrimSpace(s.content)
		if body == "" {
			continue
		}

		if utf8.RuneCountInString(body) <= c.sizeLimit {
			chunks = append(chunks, c.newChunk(filePath, s, s.path, body, now))
			continue
		}

		parts := c.splitLargeSection(body)
		for i, part := range parts {
			chunk := c.newChunk(filePath, s, fmt.Sprintf("%s (part %d)", s.path, i+1), part, now)
			chunk.Part = i + 1
			chunk.TotalParts = len(parts)
			chunks = append(chunks, chunk)
		}
	}

	return chunks
}

func (c *MarkdownChunker) newChunk(filePath string, s section, sectionPath, body string, now time.Time) MemoryChunk {
	return MemoryChunk{
		ChunkID:     c.newID(),
		FilePath:    filePath,
		SectionPath: sectionPath,
		Title:       s.title,
		Content:     body,
		Summary:     Summarize(body),
		ContentHash: HashString(body),
		IndexedAt:   now,
		HeaderLevel: s.level,
	}
}

// parseSections walks header lines and assigns each the text up to the next header.
func (c *MarkdownChunker) parseSections(content string) []section {
	matches := headerPattern.FindAllStringSubmatchIndex(content, -1)
	if c.fenceAware && len(matches) > 0 {
		matches = c.dropFencedHeaders(content, matches)
	}

	if len(matches) == 0 {
		return []section{{title: "Document", level: 0, path: "Document", content: content}}
	}

	var sections []section
	if matches[0][0] > 0 {
		if pre := strings.TrimSpace(content[:matches[0][0]]); pre != "" {
			sections = append(sections, section{title: "Introduction", level: 0, path: "Introduction", content: pre})
		}
	}

	var stack []header
	for i, m := range matches {
		end := len(content)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}

		h := header{level: m[3] - m[2], title: strings.TrimSpace(content[m[4]:m[5]])}
		for len(stack) > 0 && stack[len(stack)-1].level >= h.level {
			stack = stack[:len(stack)-1]
		}
		stack = append(stack, h)

		sections = append(sections, section{
			title:   h.title,
			level:   h.level,
			path:    headerPath(stack),
			content: strings.TrimSpace(content[m[1]:end]),
		})
	}

	return sections
}

func headerPath(stack []header) string {
	parts := make([]string, len(stack))
	for i, h := range stack {
		parts[i] = strings.Repeat("#", h.level) + " " + h.title
	}
	return strings.Join(parts, " > ")
}

// dropFencedHeaders removes matches that start inside a code block.
func (c *MarkdownChunker) dropFencedHeaders(content string, matches [][]int) [][]int {
	src := []byte(content)
	doc := c.md.Parser().Parse(text.NewReader(src))

	var blocks [][2]int
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n.Kind() {
		case ast.KindFencedCodeBlock, ast.KindCodeBlock:
			lines := n.Lines()
			if lines.Len() > 0 {
				blocks = append(blocks, [2]int{lines.At(0).Start, lines.At(lines.Len() - 1).Stop})
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if len(blocks) == 0 {
		return matches
	}

	kept := matches[:0:0]
	for _, m := range matches {
		inside := false
		for _, b := range blocks {
			if m[0] >= b[0] && m[0] < b[1] {
				inside = true
				break
			}
		}
		if !inside {
			kept = append(kept, m)
		}
	}
	return kept
}

// splitLargeSection packs paragraphs (and, for oversized paragraphs,
// sentences) into parts no longer than the size limit, then prefixes every
// part after the first with the tail of its predecessor.
func (c *MarkdownChunker) splitLargeSection(content string) []string {
	var parts []string
	current := ""

	for _, para := range paragraphPattern.Split(content, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		if runeLen(current)+runeLen(para)+2 <= c.sizeLimit {
			if current != "" {
				current = current + "\n\n" + para
			} else {
				current = para
			}
			continue
		}

		if current != "" {
			parts = append(parts, current)
		}

		if runeLen(para) > c.sizeLimit {
			sentences := c.packSentences(para)
			if len(sentences) == 0 {
				current = ""
				continue
			}
			parts = append(parts, sentences[:len(sentences)-1]...)
			current = sentences[len(sentences)-1]
		} else {
			current = para
		}
	}

	if current != "" {
		parts = append(parts, current)
	}

	if len(parts) > 1 && c.overlap > 0 {
		overlapped := make([]string, len(parts))
		overlapped[0] = parts[0]
		for i := 1; i < len(parts); i++ {
			overlapped[i] = "..." + lastRunes(parts[i-1], c.overlap) + "\n\n" + parts[i]
		}
		parts = overlapped
	}

	if len(parts) == 0 {
		return []string{content}
	}
	return parts
}

func (c *MarkdownChunker) packSentences(paragraph string) []string {
	var packed []string
	current := ""

	for _, sentence := range splitSentences(paragraph) {
		if runeLen(current)+runeLen(sentence)+1 <= c.sizeLimit {
			if current != "" {
				current = current + " " + sentence
			} else {
				current = sentence
			}
			continue
		}
		if current != "" {
			packed = append(packed, current)
		}
		current = sentence
	}

	if current != "" {
		packed = append(packed, current)
	}
	return packed
}

// splitSentences breaks text at whitespace runs that follow '.', '!' or '?'.
func splitSentences(s string) []string {
	var sentences []string
	start := 0

	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		i += size
		if r != '.' && r != '!' && r != '?' {
			continue
		}

		j := i
		for j < len(s) {
			next, nsize := utf8.DecodeRuneInString(s[j:])
			if !unicode.IsSpace(next) {
				break
			}
			j += nsize
		}
		if j == i {
			continue
		}

		sentences = append(sentences, s[start:i])
		start = j
		i = j
	}

	if start < len(s) {
		sentences = append(sentences, s[start:])
	}
	return sentences
}

// Summarize strips markdown formatting from content and truncates it to
// SummaryMaxLength characters, preferring a word boundary in the last 30%.
func Summarize(content string) string {
	clean := linkPattern.ReplaceAllString(content, "$1")
	clean = formatPattern.ReplaceAllString(clean, "")
	clean = strings.TrimSpace(spacePattern.ReplaceAllString(clean, " "))

	runes := []rune(clean)
	if len(runes) <= SummaryMaxLength {
		return clean
	}

	truncated := runes[:SummaryMaxLength]
	lastSpace := -1
	for i := len(truncated) - 1; i >= 0; i-- {
		if truncated[i] == ' ' {
			lastSpace = i
			break
		}
	}
	if lastSpace >= SummaryMaxLength*7/10 {
		truncated = truncated[:lastSpace]
	}

	return string(truncated) + "..."
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

func lastRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}
