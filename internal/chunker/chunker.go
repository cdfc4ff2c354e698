package chunker

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"bookdex/internal/config"
	"bookdex/internal/model"
)

// Chunker splits extracted pages into retrieval-ready chunks. It is a pure
// function of its input: the same page always yields the same chunk ids,
// content and ordering, which is what makes re-ingestion idempotent.
type Chunker struct {
	minTokens     int
	maxTokens     int
	overlapTokens int
}

func New(cfg config.ChunkerConfig) *Chunker {
	return &Chunker{
		minTokens:     cfg.MinTokens,
		maxTokens:     cfg.MaxTokens,
		overlapTokens: cfg.OverlapTokens,
	}
}

// Chunk walks the page's markdown-shaped text. ATX headings maintain a heading
// stack seeded from the page's heading hierarchy; a heading boundary always
// closes the current chunk, the token budget closes it at the nearest sentence
// boundary. Budget flushes carry a trailing-token overlap into the next chunk
// so retrieval of a chunk alone still has leading context.
func (c *Chunker) Chunk(page model.DocumentPage) ([]model.Chunk, error) {
	md := goldmark.New()
	reader := text.NewReader([]byte(page.RawText))
	doc := md.Parser().Parse(reader)

	st := &chunkState{
		chunker:  c,
		page:     page,
		headings: append([]string(nil), page.HeadingHierarchy...),
	}

	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		if h, ok := node.(*ast.Heading); ok {
			st.flush(false)
			st.setHeading(h.Level, string(h.Text(reader.Source())))
			continue
		}
		txt := extractText(node, reader.Source())
		if txt == "" {
			continue
		}
		st.addBlock(txt)
	}
	st.flush(false)
	return st.chunks, nil
}

type chunkState struct {
	chunker *Chunker
	page    model.DocumentPage

	headings []string
	chunks   []model.Chunk

	parts       []string
	tokens      int
	openHeading []string
	position    int
	overlap     string
}

// setHeading truncates the stack to the heading's parent level and pushes the
// new title, so the stack always mirrors the nesting active at that offset.
func (s *chunkState) setHeading(level int, title string) {
	base := len(s.page.HeadingHierarchy)
	depth := base + level - 1
	if depth < 0 {
		depth = 0
	}
	if depth > len(s.headings) {
		depth = len(s.headings)
	}
	s.headings = append(s.headings[:depth], strings.TrimSpace(title))
}

func (s *chunkState) addBlock(txt string) {
	blockTokens := EstimateTokens(txt)
	if s.tokens+blockTokens <= s.chunker.maxTokens {
		s.append(txt, blockTokens)
		return
	}
	// The current chunk already has a useful amount of text: close it and try
	// the block whole in the next one before resorting to splitting it.
	if s.tokens >= s.chunker.minTokens {
		s.flush(true)
		if blockTokens <= s.chunker.maxTokens {
			s.append(txt, blockTokens)
			return
		}
	}
	// Budget exceeded mid-paragraph: keep whole sentences together instead of
	// cutting at an arbitrary token.
	for _, sentence := range SplitSentences(txt) {
		n := EstimateTokens(sentence)
		if s.tokens > 0 && s.tokens+n > s.chunker.maxTokens {
			s.flush(true)
		}
		// A single sentence over the budget still goes out whole; content is
		// never dropped.
		s.append(sentence, n)
	}
}

func (s *chunkState) append(txt string, tokens int) {
	if len(s.parts) == 0 {
		s.openHeading = append([]string(nil), s.headings...)
		if s.overlap != "" {
			s.parts = append(s.parts, s.overlap)
			s.tokens += EstimateTokens(s.overlap)
			s.overlap = ""
		}
	}
	s.parts = append(s.parts, txt)
	s.tokens += tokens
}

func (s *chunkState) flush(withOverlap bool) {
	if len(s.parts) == 0 {
		s.overlap = ""
		return
	}
	content := strings.Join(s.parts, "\n\n")
	chapter, section := deriveChapterSection(s.openHeading)
	s.chunks = append(s.chunks, model.Chunk{
		ID:          ChunkID(s.page.URL, s.position),
		Content:     content,
		SourceURL:   s.page.URL,
		Chapter:     chapter,
		Section:     section,
		HeadingPath: append([]string(nil), s.openHeading...),
		Position:    s.position,
		TokenCount:  EstimateTokens(content),
	})
	s.position++
	s.parts = nil
	s.tokens = 0
	if withOverlap && s.chunker.overlapTokens > 0 {
		s.overlap = TailTokens(content, s.chunker.overlapTokens)
	} else {
		s.overlap = ""
	}
}

// ChunkID derives a stable id from the source URL and chunk position. SHA-1
// UUIDs are deterministic and a legal point id for every supported index.
func ChunkID(sourceURL string, position int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(sourceURL+"#"+strconv.Itoa(position))).String()
}

func deriveChapterSection(headingPath []string) (string, string) {
	var chapter, section string
	if len(headingPath) > 0 {
		chapter = headingPath[0]
	}
	if len(headingPath) > 1 {
		section = headingPath[1]
	}
	return chapter, section
}

// EstimateTokens counts words plus one token per non-ASCII rune. The same
// heuristic backs the chunk budget, the overlap window and the validation
// harness token math.
func EstimateTokens(text string) int {
	count := 0
	for _, r := range text {
		if r > 127 {
			count++
		}
	}
	count += len(strings.Fields(text))
	if count == 0 && len(text) > 0 {
		return 1
	}
	return count
}

// SplitSentences splits on terminal punctuation followed by whitespace. Text
// without terminal punctuation comes back as a single sentence.
func SplitSentences(text string) []string {
	var sentences []string
	var cur strings.Builder
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		cur.WriteRune(runes[i])
		if runes[i] == '.' || runes[i] == '!' || runes[i] == '?' {
			if i+1 == len(runes) || runes[i+1] == ' ' || runes[i+1] == '\n' || runes[i+1] == '\t' {
				if s := strings.TrimSpace(cur.String()); s != "" {
					sentences = append(sentences, s)
				}
				cur.Reset()
			}
		}
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// TailTokens returns roughly the last n tokens of text, on word boundaries.
func TailTokens(text string, n int) string {
	fields := strings.Fields(text)
	if len(fields) == 0 || n <= 0 {
		return ""
	}
	if n > len(fields) {
		n = len(fields)
	}
	return strings.Join(fields[len(fields)-n:], " ")
}

func extractText(n ast.Node, source []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := node.(type) {
		case *ast.Text:
			sb.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				sb.WriteByte(' ')
			}
		case *ast.FencedCodeBlock:
			for i := 0; i < t.Lines().Len(); i++ {
				line := t.Lines().At(i)
				sb.Write(line.Value(source))
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}
