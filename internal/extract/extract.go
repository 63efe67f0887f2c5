// Package extract turns stored objects into ordered, typed text fragments.
package extract

import (
	"context"
	"strings"

	"github.com/scanhook/scanhook/internal/blob"
)

// Fragment types produced by extractors.
const (
	TypeLine = "LINE"
	TypeWord = "WORD"
)

// Fragment is one unit of extracted text, in document reading order.
type Fragment struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Extractor is the text-extraction capability.
type Extractor interface {
	Extract(ctx context.Context, ref blob.ObjectRef) ([]Fragment, error)
}

// Func adapts a function to Extractor.
type Func func(ctx context.Context, ref blob.ObjectRef) ([]Fragment, error)

func (f Func) Extract(ctx context.Context, ref blob.ObjectRef) ([]Fragment, error) {
	return f(ctx, ref)
}

// Normalize joins the text of line fragments, in order, with newlines.
// Line fragments without text contribute an empty segment.
func Normalize(frags []Fragment) string {
	lines := make([]string, 0, len(frags))
	for _, f := range frags {
		if strings.EqualFold(f.Type, TypeLine) {
			lines = append(lines, f.Text)
		}
	}
	return strings.Join(lines, "\n")
}
