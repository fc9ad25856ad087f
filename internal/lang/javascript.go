package lang

import (
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"

	"github.com/phobologic/repomap/internal/model"
)

func init() {
	Languages["javascript"] = &Language{
		Name:             "javascript",
		Extensions:       []string{".js", ".jsx", ".mjs"},
		lang:             javascript.GetLanguage(),
		FindMethodClass:  jsFindMethodClass,
		ExtractSignature: jsExtractSignature,
	}
}

// jsFindMethodClass returns the enclosing class name for a method_definition
// node. method_definition → class_body → class_declaration.
func jsFindMethodClass(node *sitter.Node, source []byte) string {
	parent := node.Parent()
	if parent == nil || parent.Type() != "class_body" {
		return ""
	}
	classNode := parent.Parent()
	if classNode == nil {
		return ""
	}
	for i := 0; i < int(classNode.ChildCount()); i++ {
		child := classNode.Child(i)
		if child.Type() == "identifier" {
			return NodeText(child, source)
		}
	}
	return ""
}

func jsExtractSignature(defNode *sitter.Node, kind model.SymbolKind, source []byte) string {
	if kind == model.Class {
		for i := 0; i < int(defNode.ChildCount()); i++ {
			child := defNode.Child(i)
			if child.Type() == "identifier" || child.Type() == "type_identifier" {
				return NodeText(child, source)
			}
		}
		return ""
	}

	var name, params string
	for i := 0; i < int(defNode.ChildCount()); i++ {
		child := defNode.Child(i)
		switch child.Type() {
		case "identifier", "property_identifier":
			name = NodeText(child, source)
		case "formal_parameters":
			params = CollapseWhitespace(NodeText(child, source))
		}
	}
	return name + params
}
