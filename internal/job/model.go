package job

import "time"

// Record is the persisted state of one upload-to-notification lifecycle.
type Record struct {
	FileID        string    `json:"fileid"`
	CallbackURL   string    `json:"callback_url"`
	ExtractedText *string   `json:"extracted_text,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Text returns the extracted text and whether it has been set.
func (r *Record) Text() (string, bool) {
	if r == nil || r.ExtractedText == nil {
		return "", false
	}
	return *r.ExtractedText, true
}

// HasText reports whether extraction has produced non-empty text for r.
func (r *Record) HasText() bool {
	text, ok := r.Text()
	return ok && text != ""
}

// Clone returns a deep copy so change images never alias store state.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	if r.ExtractedText != nil {
		t := *r.ExtractedText
		c.ExtractedText = &t
	}
	return &c
}

// Change is one entry of the store's change feed. Before is nil when the
// write created the record.
type Change struct {
	Before *Record `json:"before"`
	After  *Record `json:"after"`
}

// FileID returns the id of the record the change refers to.
func (c Change) FileID() string {
	if c.After != nil {
		return c.After.FileID
	}
	if c.Before != nil {
		return c.Before.FileID
	}
	return ""
}
