// Package repomap is the ranking-and-selection engine: it turns a set of
// repository files into a token-budgeted, relevance-ranked map of the
// definitions most useful as context for the files currently being edited.
package repomap

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/repomap/internal/cache"
	"github.com/phobologic/repomap/internal/graph"
	"github.com/phobologic/repomap/internal/lang"
	"github.com/phobologic/repomap/internal/model"
	"github.com/phobologic/repomap/internal/parse"
	"github.com/phobologic/repomap/internal/ranking"
)

// TokenCounterFunc measures the token length of text. It is supplied by the
// caller; the engine knows nothing about any particular tokenizer. A failing
// counter degrades to a character-length approximation, never a failed run.
type TokenCounterFunc func(text string) (int, error)

// Options configures a RepoMap engine instance.
type Options struct {
	Root         string // repository root; must be an existing directory
	MapTokens    int    // token budget for the rendered map
	TokenCounter TokenCounterFunc
	CacheDir     string // "" = in-memory tag cache
	ForceRefresh bool   // bypass cache lookups, always re-extract
	Ranking      ranking.Config
	Logger       *slog.Logger
	Verbose      bool
}

// RepoMap generates repository maps. Safe for sequential reuse across
// invocations; the tag cache persists between them.
type RepoMap struct {
	root         string
	mapTokens    int
	counter      TokenCounterFunc
	cache        *cache.TagCache
	forceRefresh bool
	rankCfg      ranking.Config
	logger       *slog.Logger
	verbose      bool

	degradedOnce sync.Once
}

// New validates the options and opens the tag cache. The only fatal
// conditions at this point are an inaccessible root and an invalid ranking
// configuration; everything later degrades toward a less complete map.
func New(opts Options) (*RepoMap, error) {
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("resolving root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("root path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s: not a directory", root)
	}
	if opts.Ranking.MaxIterations < 0 {
		return nil, fmt.Errorf("iteration cap must be positive, got %d", opts.Ranking.MaxIterations)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	tc, err := cache.Open(opts.CacheDir, logger)
	if err != nil {
		return nil, err
	}

	return &RepoMap{
		root:         root,
		mapTokens:    opts.MapTokens,
		counter:      opts.TokenCounter,
		cache:        tc,
		forceRefresh: opts.ForceRefresh,
		rankCfg:      opts.Ranking,
		logger:       logger,
		verbose:      opts.Verbose,
	}, nil
}

// Close releases the tag cache.
func (rm *RepoMap) Close() error {
	return rm.cache.Close()
}

// Root returns the absolute repository root.
func (rm *RepoMap) Root() string {
	return rm.root
}

// GetRepoMap produces the rendered map for this invocation's file sets.
// chatFiles are the files currently being edited; their definitions are not
// repeated in the map but their presence seeds the ranking and they always
// appear as headers. A nil or empty result means nothing qualified or the
// budget admitted nothing; per-file problems are never surfaced as errors.
func (rm *RepoMap) GetRepoMap(ctx context.Context, chatFiles, otherFiles, mentionedFnames []string, mentionedIdents map[string]struct{}, forceRefresh bool) (string, error) {
	if rm.mapTokens <= 0 {
		return "", nil
	}

	a, err := rm.analyze(ctx, chatFiles, otherFiles, mentionedFnames, mentionedIdents, forceRefresh)
	if err != nil || a == nil {
		return "", err
	}

	text := rm.selectBudget(a.selectable, a.chatPaths)
	if rm.verbose && text != "" {
		rm.logger.Info("map generated", "chars", len(text), "tokens", rm.tokenCount(text))
	}
	return text, nil
}

// GetRepoMapData runs the same pipeline as GetRepoMap but returns the full
// ranked structure instead of the budget-limited text, for callers that
// serialize the map themselves (e.g. the TOON encoder).
func (rm *RepoMap) GetRepoMapData(ctx context.Context, chatFiles, otherFiles, mentionedFnames []string, mentionedIdents map[string]struct{}, forceRefresh bool) (*model.RepoMap, error) {
	a, err := rm.analyze(ctx, chatFiles, otherFiles, mentionedFnames, mentionedIdents, forceRefresh)
	if err != nil || a == nil {
		return nil, err
	}
	return &model.RepoMap{
		RepoName:     filepath.Base(rm.root),
		Root:         filepath.Base(rm.root),
		Files:        a.fileRanks,
		Tags:         a.ranked,
		Dependencies: a.graph.Edges,
	}, nil
}

// analysis is the immutable snapshot the selection stage works from.
type analysis struct {
	records    []model.FileRecord
	graph      *graph.Graph
	ranked     []model.RankedTag
	fileRanks  []model.FileRank
	selectable []model.RankedTag // ranked minus chat-file tags
	chatPaths  []string
}

func (rm *RepoMap) analyze(ctx context.Context, chatFiles, otherFiles, mentionedFnames []string, mentionedIdents map[string]struct{}, forceRefresh bool) (*analysis, error) {
	records := rm.collectRecords(chatFiles, otherFiles, mentionedFnames)
	if len(records) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rm.extractAll(ctx, records, forceRefresh || rm.forceRefresh)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g := graph.Build(records, mentionedIdents)
	ranked, fileRanks, err := ranking.RankTags(g, records, rm.rankCfg)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var chatPaths []string
	chatSet := make(map[string]struct{})
	for i := range records {
		if records[i].Role == model.RoleChat {
			chatPaths = append(chatPaths, records[i].Path)
			chatSet[records[i].Path] = struct{}{}
		}
	}

	// Chat files are already in the caller's context; their tags seed the
	// ranking but are not re-rendered.
	var selectable []model.RankedTag
	for _, rt := range ranked {
		if _, isChat := chatSet[rt.Tag.File]; !isChat {
			selectable = append(selectable, rt)
		}
	}

	return &analysis{
		records:    records,
		graph:      g,
		ranked:     ranked,
		fileRanks:  fileRanks,
		selectable: selectable,
		chatPaths:  chatPaths,
	}, nil
}

// collectRecords merges the caller's file sets into one deduplicated record
// list. Role precedence: chat over mentioned over other. Files that cannot
// be stat'd are dropped with a warning.
func (rm *RepoMap) collectRecords(chatFiles, otherFiles, mentionedFnames []string) []model.FileRecord {
	byPath := make(map[string]*model.FileRecord)
	var order []string

	add := func(paths []string, role model.Role) {
		for _, p := range paths {
			rel := rm.relPath(p)
			if rel == "" {
				continue
			}
			if rec, ok := byPath[rel]; ok {
				if roleWeight(role) > roleWeight(rec.Role) {
					rec.Role = role
				}
				continue
			}
			info, err := os.Stat(filepath.Join(rm.root, rel))
			if err != nil || info.IsDir() {
				if err != nil {
					rm.logger.Warn("skipping file", "path", rel, "err", err)
				}
				continue
			}
			byPath[rel] = &model.FileRecord{
				Path:     rel,
				Language: lang.ForExtension(filepath.Ext(rel)),
				Mtime:    info.ModTime().UnixNano(),
				Size:     info.Size(),
				Role:     role,
			}
			order = append(order, rel)
		}
	}

	add(chatFiles, model.RoleChat)
	add(mentionedFnames, model.RoleMentioned)
	add(otherFiles, model.RoleOther)

	sort.Strings(order)
	records := make([]model.FileRecord, 0, len(order))
	for _, p := range order {
		records = append(records, *byPath[p])
	}
	return records
}

func (rm *RepoMap) relPath(p string) string {
	if !filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	rel, err := filepath.Rel(rm.root, p)
	if err != nil {
		rm.logger.Warn("path outside root", "path", p)
		return ""
	}
	return rel
}

func roleWeight(r model.Role) int {
	switch r {
	case model.RoleChat:
		return 2
	case model.RoleMentioned:
		return 1
	default:
		return 0
	}
}

// parserPair bundles a per-goroutine parser with its shared compiled query.
type parserPair struct {
	lang   *lang.Language
	parser *sitter.Parser
	query  *sitter.Query
}

// extractAll fills each record's tags, through the cache where fresh.
// Extraction across files is embarrassingly parallel; each worker owns its
// parsers and each cache write is independently atomic, so abandoning the
// run mid-extraction leaves the cache consistent.
func (rm *RepoMap) extractAll(ctx context.Context, records []model.FileRecord, forceRefresh bool) {
	numWorkers := runtime.GOMAXPROCS(0)
	if numWorkers > len(records) {
		numWorkers = len(records)
	}

	work := make(chan int, len(records))
	var wg sync.WaitGroup

	for range numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			parsers := make(map[string]*parserPair)

			for idx := range work {
				if ctx.Err() != nil {
					continue
				}
				rec := &records[idx]
				rec.Tags = rm.extractOne(rec, parsers, forceRefresh)
			}
		}()
	}

	for i := range records {
		work <- i
	}
	close(work)
	wg.Wait()
}

func (rm *RepoMap) extractOne(rec *model.FileRecord, parsers map[string]*parserPair, forceRefresh bool) []model.Tag {
	absPath := filepath.Join(rm.root, rec.Path)

	if !forceRefresh {
		if tags, ok := rm.cache.Get(absPath, rec.Mtime, rec.Size); ok {
			return tags
		}
	}

	source, err := os.ReadFile(absPath)
	if err != nil {
		rm.logger.Warn("reading file failed", "path", rec.Path, "err", err)
		return nil
	}

	var tags []model.Tag
	if rec.Language == "" {
		tags = parse.FallbackTags(source, rec.Path)
	} else {
		pp, ok := parsers[rec.Language]
		if !ok {
			l := lang.Languages[rec.Language]
			q, err := l.GetTagQuery()
			if err != nil {
				rm.logger.Warn("compiling tag query failed", "language", rec.Language, "err", err)
				parsers[rec.Language] = nil
			} else {
				pp = &parserPair{lang: l, parser: l.NewParser(), query: q}
				parsers[rec.Language] = pp
			}
		}
		if pp == nil {
			tags = parse.FallbackTags(source, rec.Path)
		} else {
			tags = parse.ExtractTags(pp.lang, pp.parser, pp.query, source, rec.Path)
		}
	}

	rm.cache.Put(absPath, rec.Mtime, rec.Size, tags)
	return tags
}

// readSource is the render.Source for this repository.
func (rm *RepoMap) readSource(path string) ([]byte, error) {
	return os.ReadFile(filepath.Join(rm.root, path))
}

// tokenCount measures text with the caller's counter, falling back to a
// character-length approximation if the counter fails or panics. The
// degradation is logged once per engine instance.
func (rm *RepoMap) tokenCount(text string) (n int) {
	if rm.counter == nil {
		return len(text) / 4
	}

	defer func() {
		if r := recover(); r != nil {
			rm.noteDegraded(fmt.Errorf("panic: %v", r))
			n = len(text) / 4
		}
	}()

	n, err := rm.counter(text)
	if err != nil {
		rm.noteDegraded(err)
		return len(text) / 4
	}
	return n
}

func (rm *RepoMap) noteDegraded(err error) {
	rm.degradedOnce.Do(func() {
		rm.logger.Warn("token counter failed, using character approximation", "err", err)
	})
}
