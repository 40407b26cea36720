package processor

import (
	"regexp"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
	"github.com/xhad/glov/internal/models"
)

type ProcessorConfig struct {
	ChunkSize    int // in words
	ChunkOverlap int // in words
	Separators   []string
}

// DefaultSeparators go from paragraph to line, sentence, word and finally
// a hard cut between characters.
var DefaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

type Processor struct {
	config   ProcessorConfig
	splitter textsplitter.RecursiveCharacter
}

func NewWithConfig(config ProcessorConfig) Processor {
	if config.ChunkSize <= 0 {
		config.ChunkSize = 100
	}
	if config.ChunkOverlap < 0 {
		config.ChunkOverlap = 0
	}
	if config.ChunkOverlap >= config.ChunkSize {
		config.ChunkOverlap = config.ChunkSize - 1
	}
	if len(config.Separators) == 0 {
		config.Separators = DefaultSeparators
	}

	return Processor{
		config: config,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(config.ChunkSize),
			textsplitter.WithChunkOverlap(config.ChunkOverlap),
			textsplitter.WithSeparators(config.Separators),
			textsplitter.WithLenFunc(WordCount),
			textsplitter.WithKeepSeparator(false),
		),
	}
}

func New() Processor {
	return NewWithConfig(ProcessorConfig{})
}

// WordCount is the length measure used for chunk budgets.
func WordCount(s string) int {
	return len(strings.Fields(s))
}

// Split breaks every page into chunks of at most ChunkSize words. Chunks
// keep their page metadata and are numbered in document order. The same
// input always yields the same output.
func (p *Processor) Split(docs []models.Document) ([]models.Chunk, error) {
	var chunks []models.Chunk

	for _, doc := range docs {
		texts, err := p.splitter.SplitText(cleanText(doc.PageContent))
		if err != nil {
			return nil, err
		}

		for _, text := range texts {
			text = strings.TrimSpace(text)
			if text == "" {
				continue
			}

			metadata := make(map[string]interface{}, len(doc.Metadata)+1)
			for k, v := range doc.Metadata {
				metadata[k] = v
			}
			metadata["sequence_index"] = len(chunks)

			chunks = append(chunks, models.Chunk{
				Content:       text,
				Metadata:      metadata,
				SequenceIndex: len(chunks),
			})
		}
	}

	return chunks, nil
}

var (
	horizontalSpace = regexp.MustCompile(`[ \t\f\v\x{00A0}]+`)
	blankLines      = regexp.MustCompile(`\n[ \t]*\n(\s*\n)*`)
)

// cleanText drops bytes PostgreSQL refuses to store and collapses runs of
// horizontal whitespace. Line structure is kept for the splitter.
func cleanText(text string) string {
	text = strings.ToValidUTF8(text, "")
	text = strings.ReplaceAll(text, "\x00", "")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = horizontalSpace.ReplaceAllString(text, " ")
	text = blankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
