// Package parse extracts definition and reference tags from source files
// using tree-sitter, with a name-occurrence fallback for files no grammar
// can handle.
package parse

import (
	"context"
	"regexp"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/repomap/internal/lang"
	"github.com/phobologic/repomap/internal/model"
)

var captureMap = map[string]struct {
	Kind       model.TagKind
	SymbolKind model.SymbolKind
}{
	"definition.class":    {model.Definition, model.Class},
	"definition.function": {model.Definition, model.Function},
	"definition.method":   {model.Definition, model.Method},
	"reference.ident":     {model.Reference, model.Ident},
	"reference.call":      {model.Reference, model.Function},
	"reference.import":    {model.Reference, model.Module},
}

// ExtractTags parses a source file and returns definition and reference tags.
// The parser must be created for the language l, and the query compiled from
// its tag query file. It is a pure function of the source text: re-extracting
// identical text yields identical tags. Unparsable input yields no tags.
// filePath is used only for Tag.File and should be the repo-relative path.
func ExtractTags(l *lang.Language, parser *sitter.Parser, query *sitter.Query, source []byte, filePath string) []model.Tag {
	if len(source) == 0 {
		return nil
	}

	tree, err := parser.ParseCtx(context.Background(), nil, source)
	if err != nil {
		return nil
	}
	defer tree.Close()

	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(query, tree.RootNode())

	var defs []model.Tag
	var refs []model.Tag

	// Definition name occurrences; used to demote duplicate reference captures
	// of the defining identifier itself.
	type nameLine struct {
		name string
		line int
	}
	defSites := make(map[nameLine]struct{})

	for {
		match, ok := qc.NextMatch()
		if !ok {
			break
		}
		match = qc.FilterPredicates(match, source)

		// Find the @name capture and the kind capture.
		var nameNode *sitter.Node
		var captureName string
		var defNode *sitter.Node

		for _, c := range match.Captures {
			cname := query.CaptureNameForId(c.Index)
			if cname == "name" {
				nameNode = c.Node
			} else if _, ok := captureMap[cname]; ok {
				captureName = cname
				defNode = c.Node
			}
		}

		if nameNode == nil || captureName == "" || defNode == nil {
			continue
		}

		cm := captureMap[captureName]
		tagKind := cm.Kind
		symbolKind := cm.SymbolKind
		nameText := lang.NodeText(nameNode, source)
		if nameText == "" {
			continue
		}
		line := int(nameNode.StartPoint().Row) + 1

		if tagKind == model.Reference {
			refs = append(refs, model.Tag{
				Name:       nameText,
				Kind:       model.Reference,
				SymbolKind: symbolKind,
				Line:       line,
				EndLine:    line,
				File:       filePath,
			})
			continue
		}

		effectiveName := nameText

		// Promote plain functions to methods when nested in a class
		// (Python/Ruby), or qualify Go methods by receiver type.
		switch symbolKind {
		case model.Function:
			if l.FindMethodClass != nil {
				if className := l.FindMethodClass(defNode, source); className != "" {
					symbolKind = model.Method
					effectiveName = className + "." + nameText
				}
			}
		case model.Method:
			if l.FindReceiverType != nil {
				if recv := l.FindReceiverType(defNode, source); recv != "" {
					effectiveName = recv + "." + nameText
				}
			}
		}

		var signature string
		if l.ExtractSignature != nil {
			signature = l.ExtractSignature(defNode, symbolKind, source)
		}

		defSites[nameLine{nameText, line}] = struct{}{}
		defs = append(defs, model.Tag{
			Name:       effectiveName,
			Kind:       model.Definition,
			SymbolKind: symbolKind,
			Line:       line,
			EndLine:    int(defNode.EndPoint().Row) + 1,
			File:       filePath,
			Signature:  signature,
		})
	}

	// The broad identifier patterns also capture the name node of every
	// definition. Those occurrences are definitions, not references.
	tags := defs
	for _, r := range refs {
		if _, isDef := defSites[nameLine{r.Name, r.Line}]; isDef {
			continue
		}
		tags = append(tags, r)
	}

	return tags
}

// identRe matches identifier-shaped words, used by the fallback extractor.
var identRe = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

// FallbackTags scans source text for identifier occurrences and emits them
// all as reference tags. It is used for files whose extension no registered
// grammar handles, so the file can still pull rank toward files that define
// the names it mentions. Work is linear in the file size.
func FallbackTags(source []byte, filePath string) []model.Tag {
	if len(source) == 0 {
		return nil
	}

	var tags []model.Tag
	line := 1
	start := 0
	for i := 0; i <= len(source); i++ {
		if i == len(source) || source[i] == '\n' {
			for _, loc := range identRe.FindAllIndex(source[start:i], -1) {
				name := string(source[start+loc[0] : start+loc[1]])
				tags = append(tags, model.Tag{
					Name:       name,
					Kind:       model.Reference,
					SymbolKind: model.Ident,
					Line:       line,
					EndLine:    line,
					File:       filePath,
				})
			}
			line++
			start = i + 1
		}
	}
	return tags
}
