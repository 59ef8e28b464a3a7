// Package extract answers structured queries against a parsed HTML/XML
// document. Two backends are available: CSS selectors and XPath paths. Both
// parse the document exactly once at construction; queries are repeatable,
// side-effect-free reads against the same tree.
package extract

import (
	"github.com/rotisserie/eris"
)

// ErrParse is returned when the source document cannot be parsed.
var ErrParse = eris.New("extract: unparsable document")

// Backend selects the extraction strategy.
type Backend string

const (
	// BackendCSS queries with CSS selector strings.
	BackendCSS Backend = "css"
	// BackendXPath queries with XPath expressions.
	BackendXPath Backend = "xpath"
)

// Engine is a parsed document that answers queries. Extract returns exactly
// one sub-list per query, in query order; a query with no matches yields an
// empty sub-list, never an error.
type Engine interface {
	Extract(queries ...string) ([][]string, error)
}

// New parses doc with the chosen backend. It fails fast with ErrParse before
// any query is attempted if the document is unparsable.
func New(backend Backend, doc []byte) (Engine, error) {
	switch backend {
	case BackendCSS:
		return newCSSEngine(doc)
	case BackendXPath:
		return newXPathEngine(doc)
	default:
		return nil, eris.Errorf("extract: unknown backend %q", backend)
	}
}
