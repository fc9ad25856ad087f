// Package graph builds the weighted cross-file relevance graph: an edge
// records that one file references a symbol name another file defines.
package graph

import (
	"sort"
	"strings"
	"unicode"

	"github.com/phobologic/repomap/internal/model"
)

const (
	mentionedBoost     = 10.0
	distinctiveBoost   = 10.0
	privatePenalty     = 0.1
	commonPenalty      = 0.1
	commonDefThreshold = 5
	distinctiveLength  = 8
)

// Graph is a directed multigraph over files. Nodes and Edges are held in
// sorted construction order so every traversal is deterministic.
type Graph struct {
	Nodes []string     // all file paths, sorted
	Edges []model.Edge // sorted by (From, To, Ident); weights always > 0

	// Defines maps each symbol name to the sorted list of files defining it.
	Defines map[string][]string
}

// Build constructs the relevance graph from all files' tags. mentionedIdents
// are names the caller flagged as explicitly mentioned; references to them
// get a fixed large boost regardless of their natural specialness. Files
// defining no symbols still appear as nodes.
func Build(records []model.FileRecord, mentionedIdents map[string]struct{}) *Graph {
	g := &Graph{Defines: make(map[string][]string)}

	// Definition index: symbol name → defining files. Definitions are matched
	// by their unqualified name so a call site `helper()` reaches a
	// definition tagged `Config.helper`.
	defSets := make(map[string]map[string]struct{})
	for i := range records {
		rec := &records[i]
		g.Nodes = append(g.Nodes, rec.Path)
		for j := range rec.Tags {
			tag := &rec.Tags[j]
			if tag.Kind != model.Definition {
				continue
			}
			name := unqualified(tag.Name)
			if defSets[name] == nil {
				defSets[name] = make(map[string]struct{})
			}
			defSets[name][rec.Path] = struct{}{}
		}
	}
	sort.Strings(g.Nodes)
	for name, set := range defSets {
		g.Defines[name] = sortedKeys(set)
	}

	// Count references per (file, name).
	type refKey struct{ file, name string }
	refCounts := make(map[refKey]int)
	for i := range records {
		rec := &records[i]
		for j := range rec.Tags {
			tag := &rec.Tags[j]
			if tag.Kind != model.Reference {
				continue
			}
			if _, defined := g.Defines[tag.Name]; !defined {
				continue
			}
			refCounts[refKey{rec.Path, tag.Name}]++
		}
	}

	// Accumulate edges. A file referencing its own definition contributes no
	// cross-file scoring mass, so self-edges are dropped here.
	for key, count := range refCounts {
		w := specialness(key.name, len(g.Defines[key.name]), mentionedIdents) * float64(count)
		for _, defFile := range g.Defines[key.name] {
			if defFile == key.file {
				continue
			}
			g.Edges = append(g.Edges, model.Edge{
				From:   key.file,
				To:     defFile,
				Ident:  key.name,
				Weight: w,
			})
		}
	}

	sort.Slice(g.Edges, func(i, j int) bool {
		a, b := &g.Edges[i], &g.Edges[j]
		if a.From != b.From {
			return a.From < b.From
		}
		if a.To != b.To {
			return a.To < b.To
		}
		return a.Ident < b.Ident
	})

	return g
}

// specialness weighs an identifier name: rarer and more distinctive names
// count for more than short or widely defined ones. Monotone in
// length/uniqueness; mentioned identifiers override everything else.
func specialness(name string, defFileCount int, mentioned map[string]struct{}) float64 {
	if _, ok := mentioned[name]; ok {
		return mentionedBoost
	}
	if strings.HasPrefix(name, "_") {
		return privatePenalty
	}
	if defFileCount >= commonDefThreshold {
		return commonPenalty
	}
	if len(name) >= distinctiveLength && (isSnake(name) || isCamel(name)) {
		return distinctiveBoost
	}
	return 1.0
}

func isSnake(name string) bool {
	return strings.Contains(name, "_")
}

func isCamel(name string) bool {
	var hasLower, hasUpper bool
	for _, r := range name {
		if unicode.IsLower(r) {
			hasLower = true
		}
		if unicode.IsUpper(r) {
			hasUpper = true
		}
	}
	return hasLower && hasUpper
}

// unqualified strips a "Class." or "Type." prefix from a definition name.
func unqualified(name string) string {
	if dot := strings.LastIndex(name, "."); dot >= 0 {
		return name[dot+1:]
	}
	return name
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
