// Package toon implements TOON (Token-Oriented Object Notation) encoding
// of the ranked repository map.
package toon

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/phobologic/repomap/internal/model"
)

var (
	needsQuoting = regexp.MustCompile(`[,:"\\{}\[\]]`)
	looksNumeric = regexp.MustCompile(`^-?(?:0|[1-9]\d*)(?:\.\d+)?$`)
	keywords     = map[string]struct{}{
		"true":  {},
		"false": {},
		"null":  {},
	}
)

// Encode converts a RepoMap into TOON format. Rows follow the map's own
// ordering (files by rank, tags by score), so identical inputs encode to
// identical output.
func Encode(rm *model.RepoMap) string {
	var parts []string

	parts = append(parts, fmt.Sprintf("repo: %s", encodeValue(rm.RepoName)))
	parts = append(parts, fmt.Sprintf("root: %s", encodeValue(rm.Root)))

	var fileRows [][]string
	for i := range rm.Files {
		f := &rm.Files[i]
		fileRows = append(fileRows, []string{
			f.Path,
			fmt.Sprintf("%.4f", f.Rank),
		})
	}
	parts = append(parts, formatTabular("files", []string{"path", "rank"}, fileRows))

	var symbolRows [][]string
	for i := range rm.Tags {
		rt := &rm.Tags[i]
		symbolRows = append(symbolRows, []string{
			rt.Tag.File,
			rt.Tag.Name,
			string(rt.Tag.SymbolKind),
			fmt.Sprintf("%d", rt.Tag.Line),
			rt.Tag.Signature,
			fmt.Sprintf("%.4f", rt.Score),
		})
	}
	parts = append(parts, formatTabular("symbols", []string{"file", "name", "kind", "line", "signature", "score"}, symbolRows))

	var depRows [][]string
	for i := range rm.Dependencies {
		d := &rm.Dependencies[i]
		depRows = append(depRows, []string{
			d.From,
			d.To,
			d.Ident,
			fmt.Sprintf("%.2f", d.Weight),
		})
	}
	parts = append(parts, formatTabular("dependencies", []string{"source", "target", "symbol", "weight"}, depRows))

	return strings.Join(parts, "\n")
}

func formatTabular(name string, columns []string, rows [][]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s[%d]{%s}:", name, len(rows), strings.Join(columns, ","))
	for _, row := range rows {
		encoded := make([]string, len(row))
		for i, cell := range row {
			encoded[i] = encodeValue(cell)
		}
		fmt.Fprintf(&b, "\n  %s", strings.Join(encoded, ","))
	}
	return b.String()
}

func encodeValue(value string) string {
	if value == "" {
		return `""`
	}

	if value != strings.TrimSpace(value) {
		return quote(value)
	}

	if strings.ContainsAny(value, "\n\r\t") {
		return quote(value)
	}

	if _, ok := keywords[strings.ToLower(value)]; ok {
		return quote(value)
	}

	if looksNumeric.MatchString(value) {
		return value
	}

	if needsQuoting.MatchString(value) {
		return quote(value)
	}

	if strings.HasPrefix(value, "-") {
		return quote(value)
	}

	return value
}

func quote(value string) string {
	escaped := strings.ReplaceAll(value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	escaped = strings.ReplaceAll(escaped, "\n", `\n`)
	escaped = strings.ReplaceAll(escaped, "\r", `\r`)
	escaped = strings.ReplaceAll(escaped, "\t", `\t`)
	return `"` + escaped + `"`
}
