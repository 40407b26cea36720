package models

// Document is the text of one PDF page together with its provenance.
type Document struct {
	PageContent string
	Metadata    map[string]interface{}
}

// Chunk is a bounded slice of a Document. SequenceIndex is the position of
// the chunk across the whole document, starting at zero.
type Chunk struct {
	Content       string
	Metadata      map[string]interface{}
	SequenceIndex int
}

type VectorRecord struct {
	ID        string
	Content   string
	Embedding []float32
	Metadata  map[string]interface{}
}

// QueryResult is a stored chunk ranked against a query. Higher Score means
// more similar.
type QueryResult struct {
	ID       string
	Content  string
	Metadata map[string]interface{}
	Score    float64
}
