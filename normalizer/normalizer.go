// Package normalizer converts raw oracle replies into validated price records.
//
// The oracle is not asked for structured output, so its reply may wrap the JSON
// payload in prose or markdown fences. The normalizer locates the outermost
// brace-delimited object, decodes it as a PriceRecord and maps the grounding
// chunks that came with the reply into citation links.
package normalizer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/giygas/pharmaprice-api/entities"
)

// MalformedResponseError reports a reply that holds no decodable price record.
type MalformedResponseError struct {
	Reason  string
	Payload string
	Err     error
}

func (e *MalformedResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed oracle response: %s: %v", e.Reason, e.Err)
	}
	return "malformed oracle response: " + e.Reason
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

// Result is the successful outcome of Normalize.
type Result struct {
	Record    entities.PriceRecord
	Citations []entities.CitationLink
}

// ExtractPayload returns the text between the first '{' and the last '}'
// inclusive. Without a usable pair of braces the whole text is returned.
func ExtractPayload(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")

	if start == -1 || end == -1 || end < start {
		return text
	}

	return text[start : end+1]
}

// Normalize decodes the reply text into a PriceRecord. Any decoding failure is
// a *MalformedResponseError; no field-by-field recovery is attempted.
func Normalize(text string, chunks []entities.GroundingChunk) (*Result, error) {
	payload := ExtractPayload(text)
	if strings.TrimSpace(payload) == "" {
		return nil, &MalformedResponseError{Reason: "empty reply"}
	}

	var record entities.PriceRecord
	if err := json.Unmarshal([]byte(payload), &record); err != nil {
		return nil, &MalformedResponseError{
			Reason:  "payload is not a price record",
			Payload: payload,
			Err:     err,
		}
	}

	// Every collection keys on the medication name.
	if strings.TrimSpace(record.MedicationName) == "" {
		return nil, &MalformedResponseError{
			Reason:  "missing medicationName",
			Payload: payload,
		}
	}

	return &Result{
		Record:    record,
		Citations: MapCitations(chunks),
	}, nil
}

// MapCitations keeps web and map grounding chunks, in order, and silently drops
// chunks carrying neither.
func MapCitations(chunks []entities.GroundingChunk) []entities.CitationLink {
	links := make([]entities.CitationLink, 0, len(chunks))
	for _, chunk := range chunks {
		switch {
		case chunk.Web != nil:
			links = append(links, entities.CitationLink{URI: chunk.Web.URI, Title: chunk.Web.Title})
		case chunk.Maps != nil:
			links = append(links, entities.CitationLink{URI: chunk.Maps.URI, Title: chunk.Maps.Title})
		}
	}
	return links
}
