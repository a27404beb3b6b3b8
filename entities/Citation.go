package entities

// CitationLink is a source the oracle used for the most recent analysis.
type CitationLink struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

// GroundingSource is the uri/title pair carried by a grounding chunk.
type GroundingSource struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

// GroundingChunk is one citation object returned next to an oracle reply.
// At most one of Web or Maps is expected to be set.
type GroundingChunk struct {
	Web  *GroundingSource `json:"web,omitempty"`
	Maps *GroundingSource `json:"maps,omitempty"`
}
