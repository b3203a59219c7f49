package evidence

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"evidencebot/internal/domain"
)

// Document is a parsed report.
type Document struct {
	root  *html.Node
	order map[*html.Node]int
}

func ParseDocument(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse report: %w", err)
	}
	d := &Document{root: root, order: make(map[*html.Node]int)}
	i := 0
	walk(root, func(n *html.Node) bool {
		d.order[n] = i
		i++
		return true
	})
	return d, nil
}

// strategy finds candidate entry nodes in a document.
type strategy struct {
	name string
	find func(d *Document) []*html.Node
}

var discoveryChain = []strategy{
	{name: "report-structure", find: findStructuredTests},
	{name: "test-result", find: findTestResultDivs},
	{name: "test-pass-fail", find: findPassFailDivs},
	{name: "ticket-codes", find: textParents(regexp.MustCompile(`(?i)BC-|PROJ-|TEST-|BUG-|FEATURE-`))},
	{name: "status-glyphs", find: textParents(
		regexp.MustCompile(`(?i)✅|✓|PASS|SUCCESS|SUCESSO`),
		regexp.MustCompile(`(?i)❌|✗|FAIL|ERROR|FALHA`),
	)},
	{name: "test-phrases", find: textParents(
		regexp.MustCompile(`(?i)teste.*passed|test.*passed|teste.*failed|test.*failed`),
		regexp.MustCompile(`(?i)test.*success|test.*error|teste.*sucesso|teste.*falha`),
		regexp.MustCompile(`(?i)execution.*passed|execution.*failed`),
		regexp.MustCompile(`(?i)result.*passed|result.*failed`),
	)},
	{name: "test-headers", find: findHeaderSiblings},
	{name: "any-div", find: findKeywordDivs},
}

// Entries runs the discovery chain and returns the entries of the first
// strategy that finds any, in document order, plus that strategy's name.
func (d *Document) Entries() ([]domain.ReportEntry, string) {
	for _, s := range discoveryChain {
		nodes := d.unique(s.find(d))
		if len(nodes) == 0 {
			continue
		}
		entries := make([]domain.ReportEntry, 0, len(nodes))
		for i, n := range nodes {
			entries = append(entries, buildEntry(n, i+1))
		}
		return entries, s.name
	}
	return nil, ""
}

// unique drops repeated nodes and sorts by document order.
func (d *Document) unique(nodes []*html.Node) []*html.Node {
	seen := make(map[*html.Node]bool, len(nodes))
	out := nodes[:0:0]
	for _, n := range nodes {
		if n == nil || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	sort.SliceStable(out, func(i, j int) bool { return d.order[out[i]] < d.order[out[j]] })
	return out
}

func findStructuredTests(d *Document) []*html.Node {
	var out []*html.Node
	walk(d.root, func(n *html.Node) bool {
		if isElement(n, atom.Div) && hasClass(n, "test") && n.Parent != nil &&
			hasClass(n.Parent, "children") && hasClass(n.Parent, "populated") {
			out = append(out, n)
		}
		if n.Type == html.ElementNode && (hasClass(n, "name") || hasClass(n, "label")) &&
			closest(n.Parent, func(p *html.Node) bool { return hasClass(p, "element-header-left") }) != nil {
			if t := closest(n.Parent, isTestDiv); t != nil {
				out = append(out, t)
			}
		}
		return true
	})
	return out
}

func isTestDiv(n *html.Node) bool { return isElement(n, atom.Div) && hasClass(n, "test") }

func findTestResultDivs(d *Document) []*html.Node {
	var out []*html.Node
	walk(d.root, func(n *html.Node) bool {
		if isElement(n, atom.Div) && hasClass(n, "test-result") {
			out = append(out, n)
		}
		return true
	})
	return out
}

var passFailClassRe = regexp.MustCompile(`(?i)test-pass|test-fail`)

func findPassFailDivs(d *Document) []*html.Node {
	var out []*html.Node
	walk(d.root, func(n *html.Node) bool {
		if !isElement(n, atom.Div) {
			return true
		}
		for _, c := range classList(n) {
			if passFailClassRe.MatchString(c) {
				out = append(out, n)
				break
			}
		}
		return true
	})
	return out
}

// textParents returns a strategy collecting the parent elements of text
// nodes matching any of the patterns.
func textParents(patterns ...*regexp.Regexp) func(*Document) []*html.Node {
	return func(d *Document) []*html.Node {
		var out []*html.Node
		walk(d.root, func(n *html.Node) bool {
			if isSkipped(n) {
				return false
			}
			if n.Type != html.TextNode || n.Parent == nil || n.Parent.Type != html.ElementNode {
				return true
			}
			for _, re := range patterns {
				if re.MatchString(n.Data) {
					out = append(out, n.Parent)
					break
				}
			}
			return true
		})
		return out
	}
}

var headerTestRe = regexp.MustCompile(`(?i)test|teste`)

func findHeaderSiblings(d *Document) []*html.Node {
	var out []*html.Node
	walk(d.root, func(n *html.Node) bool {
		switch {
		case isElement(n, atom.H1), isElement(n, atom.H2), isElement(n, atom.H3),
			isElement(n, atom.H4), isElement(n, atom.H5), isElement(n, atom.H6):
			if headerTestRe.MatchString(textContent(n)) {
				if sib := nextElementSibling(n); sib != nil {
					out = append(out, sib)
				}
			}
			return false
		}
		return true
	})
	return out
}

var anyDivKeywords = []string{"test", "teste", "passed", "failed", "sucesso", "falha"}

func findKeywordDivs(d *Document) []*html.Node {
	var out []*html.Node
	walk(d.root, func(n *html.Node) bool {
		if isElement(n, atom.Div) && containsAny(strings.ToLower(textContent(n)), anyDivKeywords) {
			out = append(out, n)
		}
		return true
	})
	return out
}

func buildEntry(n *html.Node, index int) domain.ReportEntry {
	e := domain.ReportEntry{
		Index:   index,
		Text:    textContent(n),
		Markup:  renderMarkup(n),
		Classes: classList(n),
		Context: contextPath(n),
	}
	if name := findDescendant(n, func(c *html.Node) bool {
		return hasClass(c, "name") && closest(c.Parent, func(p *html.Node) bool { return hasClass(p, "element-header-left") }) != nil
	}); name != nil {
		e.Label = textContent(name)
	}
	if label := findDescendant(n, func(c *html.Node) bool {
		return hasClass(c, "label") && closest(c.Parent, func(p *html.Node) bool { return hasClass(p, "element-header-left") }) != nil
	}); label != nil {
		e.LabelClasses = classList(label)
	}
	return e
}

// walk visits n and its descendants in document order. Returning false from
// fn skips the node's children.
func walk(n *html.Node, fn func(*html.Node) bool) {
	if !fn(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func isElement(n *html.Node, a atom.Atom) bool {
	return n != nil && n.Type == html.ElementNode && n.DataAtom == a
}

func isSkipped(n *html.Node) bool {
	return isElement(n, atom.Script) || isElement(n, atom.Style) || isElement(n, atom.Noscript)
}

func getAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func classList(n *html.Node) []string {
	if n == nil || n.Type != html.ElementNode {
		return nil
	}
	return strings.Fields(getAttr(n, "class"))
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range classList(n) {
		if c == class {
			return true
		}
	}
	return false
}

// closest returns n or the nearest ancestor element matching pred.
func closest(n *html.Node, pred func(*html.Node) bool) *html.Node {
	for p := n; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && pred(p) {
			return p
		}
	}
	return nil
}

func findDescendant(n *html.Node, pred func(*html.Node) bool) *html.Node {
	var found *html.Node
	walk(n, func(c *html.Node) bool {
		if found != nil {
			return false
		}
		if c != n && c.Type == html.ElementNode && pred(c) {
			found = c
			return false
		}
		return true
	})
	return found
}

func nextElementSibling(n *html.Node) *html.Node {
	for s := n.NextSibling; s != nil; s = s.NextSibling {
		if s.Type == html.ElementNode {
			return s
		}
	}
	return nil
}

// textContent joins the visible text under n with single spaces.
func textContent(n *html.Node) string {
	var sb strings.Builder
	walk(n, func(c *html.Node) bool {
		if isSkipped(c) {
			return false
		}
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
			sb.WriteByte(' ')
		}
		return true
	})
	return strings.Join(strings.Fields(sb.String()), " ")
}

// renderMarkup serialises n without active content: scripts, embedded
// documents, event handlers and script URLs are dropped.
func renderMarkup(n *html.Node) string {
	var buf bytes.Buffer
	if err := html.Render(&buf, sanitizedClone(n)); err != nil {
		return ""
	}
	return buf.String()
}

var unsafeMarkupElements = map[atom.Atom]bool{
	atom.Iframe:   true,
	atom.Frame:    true,
	atom.Frameset: true,
	atom.Object:   true,
	atom.Embed:    true,
	atom.Applet:   true,
	atom.Meta:     true,
	atom.Link:     true,
	atom.Base:     true,
	atom.Template: true,
}

var urlAttrs = map[string]bool{
	"href": true, "src": true, "action": true, "formaction": true,
	"xlink:href": true, "data": true, "poster": true, "background": true,
}

func unsafeElement(n *html.Node) bool {
	return isSkipped(n) || (n.Type == html.ElementNode && unsafeMarkupElements[n.DataAtom])
}

func unsafeAttr(a html.Attribute) bool {
	key := strings.ToLower(a.Key)
	if a.Namespace != "" {
		key = strings.ToLower(a.Namespace) + ":" + key
	}
	switch {
	case strings.HasPrefix(key, "on"), key == "srcdoc":
		return true
	case urlAttrs[key]:
		v := strings.ToLower(strings.Join(strings.Fields(a.Val), ""))
		return strings.HasPrefix(v, "javascript:") || strings.HasPrefix(v, "vbscript:") ||
			(strings.HasPrefix(v, "data:") && !strings.HasPrefix(v, "data:image/"))
	}
	return false
}

func sanitizedClone(n *html.Node) *html.Node {
	c := &html.Node{Type: n.Type, DataAtom: n.DataAtom, Data: n.Data, Namespace: n.Namespace}
	for _, a := range n.Attr {
		if unsafeAttr(a) {
			continue
		}
		c.Attr = append(c.Attr, a)
	}
	for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
		if unsafeElement(ch) {
			continue
		}
		c.AppendChild(sanitizedClone(ch))
	}
	return c
}

func contextPath(n *html.Node) string {
	var parts []string
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type != html.ElementNode {
			continue
		}
		part := p.Data
		if cls := classList(p); len(cls) > 0 {
			part += "." + cls[0]
		}
		parts = append(parts, part)
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, ">")
}
