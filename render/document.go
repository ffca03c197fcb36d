package render

import (
	"regexp"
	"strings"

	"github.com/gorilla/css/scanner"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/lvillar/railpass/tplstore"
)

// Document is a parsed template fragment. Slots are located by class name;
// a slot that is not present is simply skipped by every mutator.
type Document struct {
	nodes []*html.Node
}

var bodyContext = &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}

// Parse parses an HTML fragment as it would appear inside <body>.
func Parse(markup string) (*Document, error) {
	nodes, err := html.ParseFragment(strings.NewReader(markup), bodyContext)
	if err != nil {
		return nil, err
	}
	return &Document{nodes: nodes}, nil
}

// String renders the document back to markup.
func (d *Document) String() (string, error) {
	var b strings.Builder
	for _, n := range d.nodes {
		if err := html.Render(&b, n); err != nil {
			return "", err
		}
	}
	return b.String(), nil
}

// Find returns the first element, in document order, whose class list
// contains class.
func (d *Document) Find(class string) *html.Node {
	var found *html.Node
	d.walk(func(n *html.Node) bool {
		if n.Type == html.ElementNode && HasClass(n, class) {
			found = n
			return false
		}
		return true
	})
	return found
}

// SetText replaces the content of the class slot with a single text node.
// It reports whether the slot exists.
func (d *Document) SetText(class, text string) bool {
	n := d.Find(class)
	if n == nil {
		return false
	}
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
	if text != "" {
		n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	}
	return true
}

// SetStyle sets one inline style property on the class slot, keeping the
// other declarations. It reports whether the slot exists.
func (d *Document) SetStyle(class, prop, value string) bool {
	n := d.Find(class)
	if n == nil {
		return false
	}
	decls := ParseStyle(Attr(n, "style"))
	replaced := false
	for i := range decls {
		if decls[i].Prop == prop {
			decls[i].Value = value
			replaced = true
		}
	}
	if !replaced {
		decls = append(decls, Declaration{Prop: prop, Value: value})
	}
	setAttr(n, "style", FormatStyle(decls))
	return true
}

// RewriteAssets points every "./"-relative asset reference at base: src,
// href and poster attributes, inline styles, and <style> sheets.
func (d *Document) RewriteAssets(base string) {
	d.walk(func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return true
		}
		for i, a := range n.Attr {
			switch a.Key {
			case "src", "href", "poster":
				n.Attr[i].Val = tplstore.JoinAsset(base, a.Val)
			case "style":
				n.Attr[i].Val = rewriteCSS(a.Val, base)
			}
		}
		if n.DataAtom == atom.Style {
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.TextNode {
					c.Data = rewriteCSS(c.Data, base)
				}
			}
		}
		return true
	})
}

// walk visits nodes depth-first until fn returns false.
func (d *Document) walk(fn func(*html.Node) bool) {
	var visit func(*html.Node) bool
	visit = func(n *html.Node) bool {
		if !fn(n) {
			return false
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if !visit(c) {
				return false
			}
		}
		return true
	}
	for _, n := range d.nodes {
		if !visit(n) {
			return
		}
	}
}

var cssURL = regexp.MustCompile(`url\(\s*(['"]?)\./`)

func rewriteCSS(css, base string) string {
	base = strings.TrimSuffix(base, "/") + "/"
	return cssURL.ReplaceAllStringFunc(css, func(m string) string {
		return "url(" + cssURL.FindStringSubmatch(m)[1] + base
	})
}

// HasClass reports whether n's class attribute contains class.
func HasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(Attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

// Attr returns the value of n's key attribute, or "".
func Attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// Text returns the concatenated text content of n.
func Text(n *html.Node) string {
	if n == nil {
		return ""
	}
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(Text(c))
	}
	return b.String()
}

// Declaration is one inline CSS declaration.
type Declaration struct {
	Prop  string
	Value string
}

// ParseStyle splits an inline style attribute into declarations, in order.
// Semicolons inside strings, url() and other functions do not end a
// declaration.
func ParseStyle(style string) []Declaration {
	var (
		out   []Declaration
		cur   strings.Builder
		depth int
	)
	flush := func() {
		prop, val, ok := strings.Cut(cur.String(), ":")
		cur.Reset()
		if !ok {
			return
		}
		prop = strings.ToLower(strings.TrimSpace(prop))
		if prop == "" {
			return
		}
		out = append(out, Declaration{Prop: prop, Value: strings.TrimSpace(val)})
	}
	s := scanner.New(style)
	for {
		tok := s.Next()
		switch tok.Type {
		case scanner.TokenEOF, scanner.TokenError:
			flush()
			return out
		case scanner.TokenComment:
			continue
		case scanner.TokenFunction:
			depth++
		case scanner.TokenChar:
			switch tok.Value {
			case "(":
				depth++
			case ")":
				if depth > 0 {
					depth--
				}
			case ";":
				if depth == 0 {
					flush()
					continue
				}
			}
		}
		cur.WriteString(tok.Value)
	}
}

// FormatStyle joins declarations into an inline style attribute value.
func FormatStyle(decls []Declaration) string {
	parts := make([]string, len(decls))
	for i, d := range decls {
		parts[i] = d.Prop + ": " + d.Value + ";"
	}
	return strings.Join(parts, " ")
}
