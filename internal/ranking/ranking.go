// Package ranking computes personalized PageRank over the relevance graph
// and distributes each file's converged score down to its definition tags.
package ranking

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/phobologic/repomap/internal/graph"
	"github.com/phobologic/repomap/internal/model"
)

const (
	defaultDamping   = 0.85
	defaultMaxIter   = 100
	defaultTolerance = 1e-6

	chatWeight      = 100.0
	mentionedWeight = 20.0
	otherWeight     = 1.0
)

// Config tunes the power iteration. Zero values select the defaults; a
// negative iteration cap is an invalid configuration and is surfaced as an
// error rather than degraded.
type Config struct {
	Damping       float64
	MaxIterations int
	Tolerance     float64
}

// RankTags runs personalized PageRank over g and returns every definition
// tag scored by its file's rank times the definition's share of the file's
// incoming reference weight. Files currently in the chat seed the iteration
// with the highest personalization mass, mentioned files an elevated mass,
// and all remaining files a baseline, so isolated files still hold rank.
//
// The result is deterministic for identical inputs: nodes and edges are
// traversed in the graph's sorted construction order and ties in score break
// on (file path, line).
func RankTags(g *graph.Graph, records []model.FileRecord, cfg Config) ([]model.RankedTag, []model.FileRank, error) {
	damping := cfg.Damping
	if damping == 0 {
		damping = defaultDamping
	}
	maxIter := cfg.MaxIterations
	if maxIter == 0 {
		maxIter = defaultMaxIter
	}
	if maxIter < 0 {
		return nil, nil, fmt.Errorf("iteration cap must be positive, got %d", maxIter)
	}
	tolerance := cfg.Tolerance
	if tolerance == 0 {
		tolerance = defaultTolerance
	}

	n := len(g.Nodes)
	if n == 0 {
		return nil, nil, nil
	}

	idx := make(map[string]int, n)
	for i, node := range g.Nodes {
		idx[node] = i
	}

	roles := make(map[string]model.Role, len(records))
	for i := range records {
		roles[records[i].Path] = records[i].Role
	}

	// Personalization vector from caller-supplied roles, normalized to sum 1.
	personalization := make([]float64, n)
	total := 0.0
	for i, node := range g.Nodes {
		switch roles[node] {
		case model.RoleChat:
			personalization[i] = chatWeight
		case model.RoleMentioned:
			personalization[i] = mentionedWeight
		default:
			personalization[i] = otherWeight
		}
		total += personalization[i]
	}
	for i := range personalization {
		personalization[i] /= total
	}

	// Sparse adjacency in edge-list order.
	type outEdge struct {
		to     int
		weight float64
	}
	outEdges := make([][]outEdge, n)
	outWeight := make([]float64, n)
	for _, e := range g.Edges {
		from, to := idx[e.From], idx[e.To]
		outEdges[from] = append(outEdges[from], outEdge{to: to, weight: e.Weight})
		outWeight[from] += e.Weight
	}

	// Power iteration: rank ← (1−d)·personalization + d·(links + dangling).
	rank := make([]float64, n)
	for i := range rank {
		rank[i] = 1.0 / float64(n)
	}
	newRank := make([]float64, n)
	for iter := 0; iter < maxIter; iter++ {
		for i := range newRank {
			newRank[i] = (1.0 - damping) * personalization[i]
		}
		for i := 0; i < n; i++ {
			if outWeight[i] == 0 {
				// Dangling node: its mass teleports along the
				// personalization vector.
				for j := range newRank {
					newRank[j] += damping * rank[i] * personalization[j]
				}
				continue
			}
			for _, e := range outEdges[i] {
				newRank[e.to] += damping * rank[i] * (e.weight / outWeight[i])
			}
		}

		diff := 0.0
		for i := range rank {
			diff += math.Abs(newRank[i] - rank[i])
		}
		copy(rank, newRank)
		if diff < tolerance {
			break
		}
	}

	// Distribute each source file's rank across its outgoing edges onto the
	// (target file, symbol) pairs they reach. This yields, per target file,
	// the incoming reference weight attributed to each defined name.
	inbound := make([]map[string]float64, n)
	inboundTotal := make([]float64, n)
	for _, e := range g.Edges {
		from, to := idx[e.From], idx[e.To]
		if outWeight[from] == 0 {
			continue
		}
		share := rank[from] * (e.Weight / outWeight[from])
		if inbound[to] == nil {
			inbound[to] = make(map[string]float64)
		}
		inbound[to][e.Ident] += share
		inboundTotal[to] += share
	}

	var ranked []model.RankedTag
	for i := range records {
		rec := &records[i]
		fileIdx := idx[rec.Path]
		fileRank := rank[fileIdx]

		var defs []*model.Tag
		for j := range rec.Tags {
			if rec.Tags[j].Kind == model.Definition {
				defs = append(defs, &rec.Tags[j])
			}
		}
		if len(defs) == 0 {
			continue
		}

		for _, d := range defs {
			var score float64
			if inboundTotal[fileIdx] > 0 {
				score = fileRank * inbound[fileIdx][unqualified(d.Name)] / inboundTotal[fileIdx]
			} else {
				// No inbound references: the file's rank is split evenly.
				score = fileRank / float64(len(defs))
			}
			ranked = append(ranked, model.RankedTag{Tag: *d, Score: score})
		}
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		if ranked[i].Tag.File != ranked[j].Tag.File {
			return ranked[i].Tag.File < ranked[j].Tag.File
		}
		return ranked[i].Tag.Line < ranked[j].Tag.Line
	})

	fileRanks := make([]model.FileRank, n)
	for i, node := range g.Nodes {
		fileRanks[i] = model.FileRank{Path: node, Rank: rank[i]}
	}
	sort.Slice(fileRanks, func(i, j int) bool {
		if fileRanks[i].Rank != fileRanks[j].Rank {
			return fileRanks[i].Rank > fileRanks[j].Rank
		}
		return fileRanks[i].Path < fileRanks[j].Path
	})

	return ranked, fileRanks, nil
}

func unqualified(name string) string {
	if dot := strings.LastIndex(name, "."); dot >= 0 {
		return name[dot+1:]
	}
	return name
}
