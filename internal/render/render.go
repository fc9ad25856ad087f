// Package render formats selected tags into a compact tree-like text view,
// grouped by file, with elided regions marked.
package render

import (
	"sort"
	"strings"

	"github.com/phobologic/repomap/internal/model"
)

// gapMerge is the largest gap between two lines of interest that is shown
// in full rather than collapsed behind an ellipsis.
const gapMerge = 3

const ellipsis = "⋮..."

// Source reads a repository file's text by repo-relative path. Read failures
// degrade to signature-only rendering for that file.
type Source func(path string) ([]byte, error)

// Map renders the selected tags grouped by file. Files are ordered by their
// best tag score descending (path ascending on ties); lines within a file
// ascend. chatFiles always contribute a bare header, selected or not, so the
// map signals their presence even when none of their tags made the cut.
func Map(tags []model.RankedTag, chatFiles []string, readFile Source) string {
	type fileGroup struct {
		path  string
		best  float64
		lines []int
	}

	groups := make(map[string]*fileGroup)
	var order []*fileGroup
	for _, rt := range tags {
		g, ok := groups[rt.Tag.File]
		if !ok {
			g = &fileGroup{path: rt.Tag.File, best: rt.Score}
			groups[rt.Tag.File] = g
			order = append(order, g)
		}
		if rt.Score > g.best {
			g.best = rt.Score
		}
		g.lines = append(g.lines, rt.Tag.Line)
	}

	sort.SliceStable(order, func(i, j int) bool {
		if order[i].best != order[j].best {
			return order[i].best > order[j].best
		}
		return order[i].path < order[j].path
	})

	var b strings.Builder
	for _, g := range order {
		b.WriteString("\n")
		b.WriteString(g.path)
		b.WriteString(":\n")
		renderFile(&b, g.lines, g.path, tags, readFile)
	}

	// Bare headers for chat files that rendered nothing above.
	sortedChat := append([]string(nil), chatFiles...)
	sort.Strings(sortedChat)
	for _, path := range sortedChat {
		if _, shown := groups[path]; shown {
			continue
		}
		b.WriteString("\n")
		b.WriteString(path)
		b.WriteString("\n")
	}

	return b.String()
}

// renderFile writes the collapsed view of one file: each line of interest,
// with gaps of up to gapMerge lines shown in full and larger gaps elided.
func renderFile(b *strings.Builder, lines []int, path string, tags []model.RankedTag, readFile Source) {
	sort.Ints(lines)
	lines = dedupInts(lines)

	src := sourceLines(path, tags, readFile)

	prev := 0 // last rendered line, 0 = start of file
	for _, ln := range lines {
		if ln < 1 || ln > len(src) {
			continue
		}
		switch {
		case ln == prev:
			continue
		case prev == 0 && ln > 1, ln-prev > gapMerge+1:
			b.WriteString(ellipsis)
			b.WriteString("\n")
			writeLine(b, src[ln-1])
		default:
			// Small gap: show the intervening lines too.
			for i := prev + 1; i < ln; i++ {
				writeLine(b, src[i-1])
			}
			writeLine(b, src[ln-1])
		}
		prev = ln
	}
	if prev > 0 && prev < len(src) {
		b.WriteString(ellipsis)
		b.WriteString("\n")
	}
}

func writeLine(b *strings.Builder, text string) {
	b.WriteString("│")
	b.WriteString(text)
	b.WriteString("\n")
}

// sourceLines returns the file's lines, or a synthetic view built from tag
// signatures when the file cannot be read.
func sourceLines(path string, tags []model.RankedTag, readFile Source) []string {
	if readFile != nil {
		if data, err := readFile(path); err == nil {
			return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
		}
	}

	// Fallback: place each tag's signature at its line number.
	maxLine := 0
	for _, rt := range tags {
		if rt.Tag.File == path && rt.Tag.Line > maxLine {
			maxLine = rt.Tag.Line
		}
	}
	lines := make([]string, maxLine)
	for _, rt := range tags {
		if rt.Tag.File == path && rt.Tag.Line >= 1 {
			lines[rt.Tag.Line-1] = rt.Tag.Signature
		}
	}
	return lines
}

func dedupInts(in []int) []int {
	out := in[:0]
	for i, v := range in {
		if i == 0 || v != in[i-1] {
			out = append(out, v)
		}
	}
	return out
}
