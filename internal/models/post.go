package models

import "time"

// DateLayout is the calendar-day layout used for every date field.
const DateLayout = "2006-01-02"

// PostDocument represents the canonical structure stored in Elasticsearch.
type PostDocument struct {
	ID          string    `json:"id"`
	AgentID     string    `json:"agent_id"`
	Timestamp   time.Time `json:"timestamp"`
	Text        string    `json:"text"`
	Normalized  string    `json:"normalized"`
	ContentHash string    `json:"content_hash"`
	ContentType string    `json:"content_type,omitempty"`
	Keywords    []string  `json:"keywords"`
	URLs        []string  `json:"urls"`
}

// Post is one agent's piece of content on one calendar day. It is not
// modified after the fingerprint is attached.
type Post struct {
	ID          string      `json:"id"`
	AgentID     string      `json:"agent_id"`
	Timestamp   time.Time   `json:"timestamp"`
	Date        string      `json:"date"`
	RawText     string      `json:"raw_text"`
	Normalized  string      `json:"normalized_text"`
	ContentHash string      `json:"content_hash,omitempty"`
	ContentType string      `json:"content_type,omitempty"`
	Fingerprint Fingerprint `json:"-"`
}

// Empty reports whether the post normalized to the empty marker.
func (p Post) Empty() bool {
	return p.Normalized == ""
}

// Fingerprint is either a dense vector (Dim > 0, Values holds every
// coordinate) or a sparse one (Indices sorted ascending, parallel to Values).
// The zero value is the empty fingerprint and never matches anything.
type Fingerprint struct {
	Dim     int       `json:"dim,omitempty"`
	Indices []int     `json:"indices,omitempty"`
	Values  []float64 `json:"values,omitempty"`
}

// EmptyFingerprint is attached to posts without comparable text.
func EmptyFingerprint() Fingerprint {
	return Fingerprint{}
}

// IsEmpty reports whether f carries no coordinates.
func (f Fingerprint) IsEmpty() bool {
	return len(f.Values) == 0
}

// Dense reports whether Values is indexed by position.
func (f Fingerprint) Dense() bool {
	return f.Dim > 0 && len(f.Indices) == 0
}
