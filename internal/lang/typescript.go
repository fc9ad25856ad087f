package lang

import (
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/phobologic/repomap/internal/model"
)

func init() {
	Languages["typescript"] = &Language{
		Name:             "typescript",
		Extensions:       []string{".ts", ".tsx"},
		lang:             typescript.GetLanguage(),
		FindMethodClass:  jsFindMethodClass,
		ExtractSignature: tsExtractSignature,
	}
}

func tsExtractSignature(defNode *sitter.Node, kind model.SymbolKind, source []byte) string {
	if kind == model.Class {
		for i := 0; i < int(defNode.ChildCount()); i++ {
			child := defNode.Child(i)
			if child.Type() == "identifier" || child.Type() == "type_identifier" {
				return NodeText(child, source)
			}
		}
		return ""
	}

	var name, params, returnType string
	for i := 0; i < int(defNode.ChildCount()); i++ {
		child := defNode.Child(i)
		switch child.Type() {
		case "identifier", "property_identifier":
			name = NodeText(child, source)
		case "formal_parameters":
			params = CollapseWhitespace(NodeText(child, source))
		case "type_annotation":
			returnType = CollapseWhitespace(NodeText(child, source))
		}
	}
	return name + params + returnType
}
