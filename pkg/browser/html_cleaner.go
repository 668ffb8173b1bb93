package browser

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// CleanedHTML is a page reduced to its semantic structure: scripts, styles
// and other noise removed, targeting attributes preserved.
type CleanedHTML struct {
	HTML        string
	Title       string
	Description string
	Truncated   bool
}

// Affordance is one interactable element found on the page, in the shape
// the context store records as a visible element.
type Affordance struct {
	Role        string
	Description string
	Selector    string
}

var skippedTags = map[string]bool{
	"script": true, "style": true, "noscript": true,
	"iframe": true, "embed": true, "object": true, "svg": true,
}

var blockTags = map[string]bool{
	"div": true, "p": true, "section": true, "article": true,
	"header": true, "footer": true, "nav": true, "main": true,
	"aside": true, "h1": true, "h2": true, "h3": true, "h4": true,
	"h5": true, "h6": true, "ul": true, "ol": true, "li": true,
	"table": true, "tr": true, "td": true, "th": true, "form": true,
	"fieldset": true, "blockquote": true, "pre": true,
}

var voidTags = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}

var globalAttrs = map[string]bool{
	"id": true, "class": true, "role": true,
	"aria-label": true, "aria-describedby": true,
}

// cleanHTML parses raw page HTML and rebuilds it keeping only semantic
// structure and the attributes useful for element targeting, capped at
// maxLength characters of emitted text.
func cleanHTML(rawHTML string, maxLength int) (*CleanedHTML, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	result := &CleanedHTML{
		Title:       findTitle(doc),
		Description: findMetaDescription(doc),
	}

	var b strings.Builder
	var written int
	result.Truncated = emitNode(doc, &b, &written, maxLength, 0)
	result.HTML = b.String()
	return result, nil
}

// emitNode walks the tree depth-first, skipping noise elements. Returns
// true once the length cap is hit.
func emitNode(n *html.Node, b *strings.Builder, written *int, maxLength, depth int) bool {
	if *written >= maxLength {
		return true
	}

	switch n.Type {
	case html.CommentNode:
		return false
	case html.TextNode:
		return emitText(n, b, written, maxLength)
	case html.ElementNode:
		if skippedTags[strings.ToLower(n.Data)] {
			return false
		}
		return emitElement(n, b, written, maxLength, depth)
	default:
		return emitChildren(n, b, written, maxLength, depth)
	}
}

func emitText(n *html.Node, b *strings.Builder, written *int, maxLength int) bool {
	text := strings.TrimSpace(n.Data)
	if text == "" {
		return false
	}
	if *written+len(text) > maxLength {
		b.WriteString(text[:maxLength-*written] + "...")
		*written = maxLength
		return true
	}
	b.WriteString(text)
	*written += len(text)
	return false
}

func emitElement(n *html.Node, b *strings.Builder, written *int, maxLength, depth int) bool {
	tag := strings.ToLower(n.Data)

	if depth > 0 && blockTags[tag] {
		b.WriteString("\n")
		b.WriteString(strings.Repeat("  ", depth))
	}

	b.WriteString("<")
	b.WriteString(tag)
	for _, attr := range n.Attr {
		if keepAttribute(tag, attr.Key) {
			fmt.Fprintf(b, ` %s="%s"`, attr.Key, html.EscapeString(attr.Val))
		}
	}
	b.WriteString(">")
	*written += len(tag) + 2

	truncated := emitChildren(n, b, written, maxLength, depth+1)

	if !voidTags[tag] {
		if blockTags[tag] {
			b.WriteString("\n")
			b.WriteString(strings.Repeat("  ", depth))
		}
		b.WriteString("</")
		b.WriteString(tag)
		b.WriteString(">")
		*written += len(tag) + 3
	}
	return truncated
}

func emitChildren(n *html.Node, b *strings.Builder, written *int, maxLength, depth int) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if emitNode(c, b, written, maxLength, depth) {
			return true
		}
	}
	return false
}

// keepAttribute keeps global targeting attributes, data-* hooks, and a
// small tag-specific set.
func keepAttribute(tag, attr string) bool {
	attr = strings.ToLower(attr)
	if globalAttrs[attr] || strings.HasPrefix(attr, "data-") {
		return true
	}
	switch tag {
	case "a":
		return attr == "href" || attr == "target"
	case "img":
		return attr == "src" || attr == "alt"
	case "input", "textarea", "select":
		return attr == "name" || attr == "type" || attr == "placeholder" || attr == "value"
	case "button":
		return attr == "type" || attr == "name"
	case "form":
		return attr == "action" || attr == "method"
	}
	return false
}

func findTitle(doc *html.Node) string {
	var title string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "title" {
			if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
				title = strings.TrimSpace(n.FirstChild.Data)
			}
			return
		}
		for c := n.FirstChild; c != nil && title == ""; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return title
}

func findMetaDescription(doc *html.Node) string {
	var description string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "meta" {
			var isDescription bool
			var content string
			for _, attr := range n.Attr {
				if attr.Key == "name" && attr.Val == "description" {
					isDescription = true
				}
				if attr.Key == "content" {
					content = attr.Val
				}
			}
			if isDescription && content != "" {
				description = strings.TrimSpace(content)
				return
			}
		}
		for c := n.FirstChild; c != nil && description == ""; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return description
}

var affordanceTags = map[string]string{
	"a": "link", "button": "button", "input": "input",
	"select": "select", "textarea": "input", "form": "form",
}

// extractAffordances lists the interactable elements in raw page HTML, up
// to limit entries. Used to refresh the context store's visible elements
// after navigation.
func extractAffordances(rawHTML string, limit int) ([]Affordance, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var found []Affordance
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if limit > 0 && len(found) >= limit {
			return
		}
		if n.Type == html.ElementNode {
			tag := strings.ToLower(n.Data)
			if role, ok := affordanceTags[tag]; ok {
				if a, ok := describeElement(n, tag, role); ok {
					found = append(found, a)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return found, nil
}

// describeElement builds an affordance from an element's text and
// attributes, preferring the most specific selector available.
func describeElement(n *html.Node, tag, role string) (Affordance, bool) {
	var id, name, placeholder, inputType, ariaLabel string
	for _, attr := range n.Attr {
		switch strings.ToLower(attr.Key) {
		case "id":
			id = attr.Val
		case "name":
			name = attr.Val
		case "placeholder":
			placeholder = attr.Val
		case "type":
			inputType = attr.Val
		case "aria-label":
			ariaLabel = attr.Val
		}
	}

	if tag == "input" && inputType == "hidden" {
		return Affordance{}, false
	}

	description := strings.TrimSpace(nodeText(n))
	if description == "" {
		description = ariaLabel
	}
	if description == "" {
		description = placeholder
	}
	if description == "" {
		description = name
	}
	if description == "" {
		return Affordance{}, false
	}

	selector := ""
	switch {
	case id != "":
		selector = "#" + id
	case name != "":
		selector = fmt.Sprintf("%s[name=%q]", tag, name)
	default:
		selector = fmt.Sprintf("text=%s", description)
	}

	return Affordance{Role: role, Description: description, Selector: selector}, true
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}
