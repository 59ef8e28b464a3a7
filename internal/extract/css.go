package extract

import (
	"bytes"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/rotisserie/eris"
)

// cssEngine extracts node text via CSS selectors over a goquery document.
type cssEngine struct {
	doc *goquery.Document
}

func newCSSEngine(raw []byte) (*cssEngine, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, eris.Wrapf(ErrParse, "css: %v", err)
	}
	return &cssEngine{doc: doc}, nil
}

// Extract returns the text content of every node matching each selector, in
// document order. Selectors are compiled up front so a malformed selector
// surfaces as an error rather than a panic inside goquery.
func (e *cssEngine) Extract(queries ...string) ([][]string, error) {
	out := make([][]string, 0, len(queries))
	for _, q := range queries {
		sel, err := cascadia.Compile(q)
		if err != nil {
			return nil, eris.Wrapf(err, "css: compile selector %q", q)
		}
		values := []string{}
		e.doc.FindMatcher(sel).Each(func(_ int, s *goquery.Selection) {
			values = append(values, s.Text())
		})
		out = append(out, values)
	}
	return out, nil
}
