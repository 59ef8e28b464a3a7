package extract

import (
	"bytes"

	"github.com/antchfx/htmlquery"
	"github.com/rotisserie/eris"
	"golang.org/x/net/html"
)

// xpathEngine extracts values via XPath expressions over an html.Node tree.
type xpathEngine struct {
	root *html.Node
}

func newXPathEngine(raw []byte) (*xpathEngine, error) {
	root, err := htmlquery.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, eris.Wrapf(ErrParse, "xpath: %v", err)
	}
	return &xpathEngine{root: root}, nil
}

// Extract returns one value list per expression. Element matches yield their
// text content; attribute and text matches yield the raw matched value.
func (e *xpathEngine) Extract(queries ...string) ([][]string, error) {
	out := make([][]string, 0, len(queries))
	for _, q := range queries {
		nodes, err := htmlquery.QueryAll(e.root, q)
		if err != nil {
			return nil, eris.Wrapf(err, "xpath: query %q", q)
		}
		values := []string{}
		for _, n := range nodes {
			values = append(values, nodeValue(n))
		}
		out = append(out, values)
	}
	return out, nil
}

func nodeValue(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	return htmlquery.InnerText(n)
}
