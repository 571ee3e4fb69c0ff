package cfg

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// PrintDot writes the graph in GraphViz format. label returns extra text
// shown under each block; edgeLabel returns text for each edge. Either may
// be nil.
func (p *Procedure) PrintDot(w io.Writer, label func(*Block) string, edgeLabel func(Edge) string) {
	back := p.BackEdges()

	fmt.Fprintf(w, "digraph %q {\n", p.Name)
	fmt.Fprintf(w, "\tnode [shape=box fontname=\"monospace\"];\n")
	for _, b := range p.Blocks {
		var sb strings.Builder
		sb.WriteString(b.Label)
		sb.WriteString("\\l")
		for _, s := range b.Stmts {
			sb.WriteString(escapeDot(s.String()))
			sb.WriteString("\\l")
		}
		if label != nil {
			if extra := label(b); extra != "" {
				sb.WriteString(escapeDot(extra))
				sb.WriteString("\\l")
			}
		}
		fmt.Fprintf(w, "\tn%d [label=\"%s\"];\n", b.ID, sb.String())
	}
	for _, e := range p.Edges() {
		attrs := []string{}
		if back[e] {
			attrs = append(attrs, "style=dashed")
		}
		if edgeLabel != nil {
			if text := edgeLabel(e); text != "" {
				attrs = append(attrs, fmt.Sprintf("label=\"%s\"", escapeDot(text)))
			}
		}
		if len(attrs) > 0 {
			fmt.Fprintf(w, "\tn%d -> n%d [%s];\n", e.From, e.To, strings.Join(attrs, " "))
		} else {
			fmt.Fprintf(w, "\tn%d -> n%d;\n", e.From, e.To)
		}
	}
	fmt.Fprintf(w, "}\n")
}

func escapeDot(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	return strings.ReplaceAll(s, "\n", "\\l")
}

// RenderToGraphVizFile renders dot source with the GraphViz `dot` binary.
// The output format follows the file extension and defaults to svg.
func RenderToGraphVizFile(dot []byte, output string) error {
	format := strings.TrimPrefix(filepath.Ext(output), ".")
	if format == "" {
		format = "svg"
	}
	if format == "dot" || format == "gv" {
		return os.WriteFile(output, dot, 0o644)
	}

	cmd := exec.Command("dot", "-T"+format, "-o", output)
	cmd.Stdin = strings.NewReader(string(dot))
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("running dot: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}
