package render

import (
	"context"
	"strconv"
	"unicode"

	"github.com/timmy/pagepipe/internal/domain"
)

// Document is an uploaded source waiting to be decomposed into pages.
type Document struct {
	JobID string
	// Name is the original file or directory name, used in errors and logs.
	Name string
	// Path is the local file (PDF) or directory (page images) to render.
	Path string
}

// Renderer decomposes a document into ordered page inputs numbered 1..N.
// Every failure is a *domain.RenderError.
type Renderer interface {
	RenderPages(ctx context.Context, doc Document) ([]domain.PageInput, error)
}

// DefaultMaxPages caps the number of pages taken from one document.
const DefaultMaxPages = 100

func renderError(doc Document, err error) error {
	return &domain.RenderError{Source: doc.Name, Err: err}
}

// naturalLess orders names so that "page2" sorts before "page10".
func naturalLess(a, b string) bool {
	ar, br := []rune(a), []rune(b)
	i, j := 0, 0
	for i < len(ar) && j < len(br) {
		if unicode.IsDigit(ar[i]) && unicode.IsDigit(br[j]) {
			si := i
			for i < len(ar) && unicode.IsDigit(ar[i]) {
				i++
			}
			sj := j
			for j < len(br) && unicode.IsDigit(br[j]) {
				j++
			}
			na, errA := strconv.Atoi(string(ar[si:i]))
			nb, errB := strconv.Atoi(string(br[sj:j]))
			if errA == nil && errB == nil && na != nb {
				return na < nb
			}
			if da, db := string(ar[si:i]), string(br[sj:j]); da != db {
				return da < db
			}
			continue
		}
		ca, cb := unicode.ToLower(ar[i]), unicode.ToLower(br[j])
		if ca != cb {
			return ca < cb
		}
		i++
		j++
	}
	return len(ar)-i < len(br)-j
}
