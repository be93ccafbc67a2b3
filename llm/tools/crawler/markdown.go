package crawler

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var (
	multiNewlinePattern = regexp.MustCompile(`\n{3,}`)
	multiSpacePattern   = regexp.MustCompile(`[ \t]{2,}`)
)

const maxDepth = 200

// HTMLToMarkdown converts a page to simplified markdown, dropping chrome
// such as scripts, navigation, headers and footers.
func HTMLToMarkdown(page string) (string, error) {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return "", err
	}

	var sb bytes.Buffer
	writeNode(doc, &sb, 0)
	return cleanMarkdown(sb.String()), nil
}

func writeNode(n *html.Node, sb *bytes.Buffer, depth int) {
	if depth > maxDepth {
		return
	}

	switch n.Type {
	case html.TextNode:
		if text := strings.TrimSpace(n.Data); text != "" {
			sb.WriteString(text)
			sb.WriteString(" ")
		}
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "noscript", "iframe", "svg", "nav", "footer", "header", "form":
			return
		case "title":
			sb.WriteString("# ")
			writeChildren(n, sb, depth)
			sb.WriteString("\n\n")
			return
		case "h1", "h2", "h3", "h4", "h5", "h6":
			level := int(n.Data[1] - '0')
			sb.WriteString("\n\n" + strings.Repeat("#", level) + " ")
		case "p", "div", "section", "article", "table":
			sb.WriteString("\n\n")
		case "br", "tr":
			sb.WriteString("\n")
		case "li":
			sb.WriteString("\n- ")
		case "code":
			if !insidePre(n) {
				sb.WriteString("`")
			}
		case "pre":
			sb.WriteString("\n\n```\n")
			sb.WriteString(rawText(n))
			sb.WriteString("\n```\n\n")
			return
		case "strong", "b":
			sb.WriteString("**")
		case "em", "i":
			sb.WriteString("*")
		case "a":
			if linkable(n) {
				sb.WriteString("[")
			}
		case "img":
			if alt := attr(n, "alt"); alt != "" {
				sb.WriteString(fmt.Sprintf("[Image: %s]", alt))
			}
			return
		}
	}

	writeChildren(n, sb, depth)

	if n.Type == html.ElementNode {
		switch n.Data {
		case "h1", "h2", "h3", "h4", "h5", "h6":
			sb.WriteString("\n\n")
		case "code":
			if !insidePre(n) {
				closeInline(sb, "` ")
			}
		case "strong", "b":
			closeInline(sb, "** ")
		case "em", "i":
			closeInline(sb, "* ")
		case "a":
			if linkable(n) {
				closeInline(sb, fmt.Sprintf("](%s) ", attr(n, "href")))
			}
		}
	}
}

// closeInline ends an inline span so the marker hugs the preceding text.
func closeInline(sb *bytes.Buffer, marker string) {
	for sb.Len() > 0 && sb.Bytes()[sb.Len()-1] == ' ' {
		sb.Truncate(sb.Len() - 1)
	}
	sb.WriteString(marker)
}

func writeChildren(n *html.Node, sb *bytes.Buffer, depth int) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeNode(c, sb, depth+1)
	}
}

func linkable(n *html.Node) bool {
	href := attr(n, "href")
	return href != "" && !strings.HasPrefix(href, "#") && !strings.HasPrefix(href, "javascript:")
}

func insidePre(n *html.Node) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && p.Data == "pre" {
			return true
		}
	}
	return false
}

// rawText keeps whitespace, for preformatted blocks.
func rawText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Trim(sb.String(), "\n")
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func cleanMarkdown(s string) string {
	inFence := false
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			lines[i] = strings.TrimSpace(line)
			continue
		}
		if inFence {
			continue
		}
		lines[i] = strings.TrimSpace(multiSpacePattern.ReplaceAllString(line, " "))
	}
	s = strings.Join(lines, "\n")
	s = multiNewlinePattern.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
