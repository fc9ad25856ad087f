package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	sentinelStart = "<!-- repomap:start -->"
	sentinelEnd   = "<!-- repomap:end -->"
)

// runInit implements the `repomap init` subcommand, which writes (or updates)
// a repomap usage section in a CLAUDE.md file.
func runInit(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("repomap init", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var dryRun bool
	fs.BoolVar(&dryRun, "dry-run", false, "print what would be written without modifying the file")

	fs.Usage = func() {
		fmt.Fprintf(stderr, `Usage: repomap init [flags] [path-to-CLAUDE.md]

Write a repomap usage section to a CLAUDE.md file. The section is wrapped in
sentinel comments so it can be updated in place on subsequent runs without
touching surrounding content. Creates the file if it does not exist.

path-to-CLAUDE.md defaults to ./CLAUDE.md.

Flags:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	section := generateSection()

	// --dry-run with no path: just print the section itself.
	if dryRun && fs.NArg() == 0 {
		_, _ = fmt.Fprintln(stdout, section)
		return nil
	}

	path := "CLAUDE.md"
	if fs.NArg() > 0 {
		path = fs.Arg(0)
	}

	existing, _ := os.ReadFile(path)
	updated := applySection(string(existing), section)

	if dryRun {
		_, _ = fmt.Fprint(stdout, updated)
		return nil
	}

	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	_, _ = fmt.Fprintf(stderr, "wrote repomap section to %s\n", path)
	return nil
}

// generateSection returns the full sentinel-wrapped repomap documentation block.
func generateSection() string {
	body := `## repomap — Ranked Repository Map

Run ` + "`repomap`" + ` via the Bash tool when you need repository context that fits
a token budget. It ranks every definition by relevance to the files being
edited and renders the best subset.

**Availability:** Check with ` + "`repomap --version`" + ` first; skip gracefully if
not found.

**Run it:**
` + "```" + `bash
repomap                                        # map the current directory
repomap --root /path/to/repo                   # explicit repository root
repomap --map-tokens 2048                      # larger token budget
repomap --chat-files main.py --other-files src # prioritize edited files
repomap --mentioned-idents parse,Config        # boost specific identifiers
repomap --cache-dir .repomap-cache             # persist tags across runs
` + "```" + `

**Caching:** Use ` + "`--cache-dir <dir>`" + ` to avoid re-parsing unchanged files on
every call — essential for large repos. Add the directory to ` + "`.gitignore`" + `.

**All flags:** ` + "`repomap --help`" + `

**How to use the output — follow these rules:**

1. **Read files top-down.** Files are ordered by relevance to what is being
   edited; the first files shown are the ones most worth opening.

2. **Pass the files you are editing as ` + "`--chat-files`" + `.** The ranking is
   personalized: edited files pull related definitions to the top.

3. **Boost names you care about with ` + "`--mentioned-idents`" + `.** References to
   those identifiers weigh far more in the ranking.

4. **Only fall back to Glob/Grep for things repomap cannot answer** — e.g.,
   finding every usage of a symbol inside a single file.`

	return sentinelStart + "\n" + body + "\n" + sentinelEnd
}

// applySection inserts section into content, replacing an existing sentinel
// block if present or appending if not. It is a pure function for easy testing.
func applySection(content, section string) string {
	start := strings.Index(content, sentinelStart)
	end := strings.Index(content, sentinelEnd)

	if start >= 0 && end > start {
		return content[:start] + section + content[end+len(sentinelEnd):]
	}

	// Append, ensuring a blank line separator.
	if len(content) > 0 && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return content + "\n" + section + "\n"
}
