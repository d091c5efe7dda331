package scan

import (
	"net/url"
	"strings"
)

// idSegment is the index of the identifier in the split URL path ("/x/<id>/..." -> ["", "x", "<id>", ...]).
const idSegment = 2

// Payload is the content of a decoded QR symbol.
type Payload struct {
	RawText     string `json:"raw_text"`
	ExtractedID string `json:"extracted_id,omitempty"`
}

func NewPayload(rawText string) Payload {
	return Payload{RawText: rawText, ExtractedID: ExtractID(rawText)}
}

// HasID reports whether the payload carries a usable identifier.
func (p Payload) HasID() bool {
	return p.ExtractedID != ""
}

// ExtractID returns the identifier carried by a QR URL, or "" when rawText is not
// an absolute URL or its path is too short.
func ExtractID(rawText string) string {
	rawText = strings.TrimSpace(rawText)
	if rawText == "" {
		return ""
	}
	u, err := url.Parse(rawText)
	if err != nil || !u.IsAbs() || u.Opaque != "" {
		return ""
	}
	segments := strings.Split(u.Path, "/")
	if len(segments) <= idSegment {
		return ""
	}
	return segments[idSegment]
}
