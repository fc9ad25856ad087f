// repomap generates a token-budgeted, relevance-ranked map of a repository,
// surfacing the definitions most useful as context for the files currently
// being edited.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/phobologic/repomap/internal/discover"
	"github.com/phobologic/repomap/internal/ranking"
	"github.com/phobologic/repomap/internal/repomap"
	"github.com/phobologic/repomap/internal/toon"
)

var version = "dev"

const defaultMapTokens = 1024

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	if len(args) > 0 && args[0] == "init" {
		return runInit(args[1:], stdout, stderr)
	}

	fs := flag.NewFlagSet("repomap", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		root            string
		mapTokens       int
		chatFiles       string
		otherFiles      string
		mentionedFiles  string
		mentionedIdents string
		cacheDir        string
		format          string
		modelName       string
		maxIterations   int
		forceRefresh    bool
		verbose         bool
		showVersion     bool
	)

	fs.StringVar(&root, "root", ".", "repository root directory")
	fs.IntVar(&mapTokens, "map-tokens", defaultMapTokens, "maximum tokens for the generated map")
	fs.StringVar(&chatFiles, "chat-files", "", "comma-separated files currently being edited (highest priority)")
	fs.StringVar(&otherFiles, "other-files", "", "comma-separated other files to consider for the map")
	fs.StringVar(&mentionedFiles, "mentioned-files", "", "comma-separated files explicitly mentioned (elevated priority)")
	fs.StringVar(&mentionedIdents, "mentioned-idents", "", "comma-separated identifiers explicitly mentioned (boosted)")
	fs.StringVar(&cacheDir, "cache-dir", "", "tag cache directory (default: in-memory, no persistence)")
	fs.StringVar(&format, "format", "tree", "output format: tree or toon")
	fs.StringVar(&modelName, "model", "gpt-4", "model name for token counting")
	fs.IntVar(&maxIterations, "max-iterations", 0, "ranking iteration cap (0 = default)")
	fs.BoolVar(&forceRefresh, "force-refresh", false, "bypass the tag cache, always re-extract")
	fs.BoolVar(&verbose, "verbose", false, "enable verbose output")
	fs.BoolVar(&showVersion, "V", false, "show version and exit")
	fs.BoolVar(&showVersion, "version", false, "show version and exit")

	if err := fs.Parse(reorderArgs(args)); err != nil {
		return err
	}

	if showVersion {
		_, _ = fmt.Fprintf(stdout, "repomap %s\n", version)
		return nil
	}

	if format != "tree" && format != "toon" {
		return fmt.Errorf("unsupported format %q", format)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolving root: %w", err)
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	chat := splitList(chatFiles)
	other := splitList(otherFiles)
	mentioned := splitList(mentionedFiles)

	// Positional paths become other-files when no explicit sets were given;
	// bare invocations map the whole repository.
	if len(chat) == 0 && len(other) == 0 {
		paths := fs.Args()
		if len(paths) == 0 {
			paths = []string{absRoot}
		}
		for _, p := range paths {
			p, err := filepath.Abs(p)
			if err != nil {
				return fmt.Errorf("resolving path: %w", err)
			}
			files, err := expandPath(p)
			if err != nil {
				return err
			}
			other = append(other, files...)
		}
	}

	idents := make(map[string]struct{})
	for _, id := range splitList(mentionedIdents) {
		idents[id] = struct{}{}
	}

	rm, err := repomap.New(repomap.Options{
		Root:         absRoot,
		MapTokens:    mapTokens,
		TokenCounter: makeTokenCounter(modelName, logger),
		CacheDir:     cacheDir,
		Ranking:      ranking.Config{MaxIterations: maxIterations},
		Logger:       logger,
		Verbose:      verbose,
	})
	if err != nil {
		return err
	}
	defer func() { _ = rm.Close() }()

	ctx := context.Background()

	if format == "toon" {
		data, err := rm.GetRepoMapData(ctx, chat, other, mentioned, idents, forceRefresh)
		if err != nil {
			return err
		}
		if data == nil {
			_, _ = fmt.Fprintln(stderr, "no repository map generated")
			return nil
		}
		_, _ = fmt.Fprintln(stdout, toon.Encode(data))
		return nil
	}

	output, err := rm.GetRepoMap(ctx, chat, other, mentioned, idents, forceRefresh)
	if err != nil {
		return err
	}
	if output == "" {
		_, _ = fmt.Fprintln(stderr, "no repository map generated")
		return nil
	}
	_, _ = fmt.Fprint(stdout, output)
	return nil
}

// makeTokenCounter builds the token counter for the chosen model. When the
// encoding cannot be loaded the engine's character-length approximation is
// used instead.
func makeTokenCounter(modelName string, logger *slog.Logger) repomap.TokenCounterFunc {
	enc, err := tiktoken.EncodingForModel(modelName)
	if err != nil {
		logger.Warn("loading tokenizer failed, using character approximation", "model", modelName, "err", err)
		return nil
	}
	return func(text string) (int, error) {
		return len(enc.Encode(text, nil, nil)), nil
	}
}

// expandPath turns a file or directory argument into a list of file paths.
func expandPath(p string) ([]string, error) {
	info, err := os.Stat(p)
	if err != nil {
		return nil, fmt.Errorf("path %s: %w", p, err)
	}
	if !info.IsDir() {
		return []string{p}, nil
	}
	entries, err := discover.Files(p)
	if err != nil {
		return nil, fmt.Errorf("discovering files in %s: %w", p, err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		files = append(files, filepath.Join(p, e.Path))
	}
	return files, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// flagsWithValue lists flags that take a value argument.
var flagsWithValue = map[string]bool{
	"-root": true, "--root": true,
	"-map-tokens": true, "--map-tokens": true,
	"-chat-files": true, "--chat-files": true,
	"-other-files": true, "--other-files": true,
	"-mentioned-files": true, "--mentioned-files": true,
	"-mentioned-idents": true, "--mentioned-idents": true,
	"-cache-dir": true, "--cache-dir": true,
	"-format": true, "--format": true,
	"-model": true, "--model": true,
	"-max-iterations": true, "--max-iterations": true,
}

// reorderArgs moves positional arguments after all flags so Go's flag package
// can parse them correctly (it stops at the first non-flag arg).
func reorderArgs(args []string) []string {
	var flags, positional []string
	for i := 0; i < len(args); i++ {
		if args[i] == "--" {
			positional = append(positional, args[i+1:]...)
			break
		}
		if len(args[i]) > 0 && args[i][0] == '-' {
			flags = append(flags, args[i])
			if flagsWithValue[args[i]] && i+1 < len(args) {
				i++
				flags = append(flags, args[i])
			}
		} else {
			positional = append(positional, args[i])
		}
	}
	return append(flags, positional...)
}
