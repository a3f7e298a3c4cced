package renderer

import (
	"encoding/xml"
	"slices"
	"strings"

	"github.com/dshills/storyline/internal/tree"
)

// Markup serializes the children of root as XHTML. Overlay wrappers keep
// their data attributes so the output can be imported again.
func Markup(root *tree.Node) string {
	var b strings.Builder
	for _, c := range root.Children() {
		writeMarkup(&b, c)
	}
	return b.String()
}

func writeMarkup(b *strings.Builder, n *tree.Node) {
	switch n.Type {
	case tree.NodeText:
		_ = xml.EscapeText(b, []byte(n.Text()))
		return
	case tree.NodeEmbed, tree.NodeMarker:
		b.WriteString("<" + n.Tag)
		writeAttrs(b, n)
		b.WriteString("/>")
		return
	}

	b.WriteString("<" + n.Tag)
	writeAttrs(b, n)
	b.WriteString(">")
	for _, c := range n.Children() {
		writeMarkup(b, c)
	}
	b.WriteString("</" + n.Tag + ">")
}

func writeAttrs(b *strings.Builder, n *tree.Node) {
	attrs := n.Attrs()
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		b.WriteString(" " + k + `="`)
		_ = xml.EscapeText(b, []byte(attrs[k]))
		b.WriteString(`"`)
	}
}
