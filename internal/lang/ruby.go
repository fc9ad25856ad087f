package lang

import (
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/ruby"

	"github.com/phobologic/repomap/internal/model"
)

func init() {
	Languages["ruby"] = &Language{
		Name:             "ruby",
		Extensions:       []string{".rb"},
		lang:             ruby.GetLanguage(),
		FindMethodClass:  rubyFindMethodClass,
		ExtractSignature: rubyExtractSignature,
	}
}

// rubyFindMethodClass walks the parent chain looking for a class or module node.
func rubyFindMethodClass(funcNode *sitter.Node, source []byte) string {
	node := funcNode.Parent()
	for node != nil {
		if node.Type() == "class" || node.Type() == "module" {
			return rubyClassName(node, source)
		}
		node = node.Parent()
	}
	return ""
}

// rubyClassName returns the constant name of a class or module node.
func rubyClassName(node *sitter.Node, source []byte) string {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() == "constant" {
			return NodeText(child, source)
		}
	}
	return ""
}

func rubyExtractSignature(defNode *sitter.Node, kind model.SymbolKind, source []byte) string {
	if kind == model.Class {
		return rubyClassName(defNode, source)
	}

	var name, params string
	for i := 0; i < int(defNode.ChildCount()); i++ {
		child := defNode.Child(i)
		switch child.Type() {
		case "identifier":
			// def self.foo: the method name is the last identifier.
			name = NodeText(child, source)
		case "method_parameters":
			params = CollapseWhitespace(NodeText(child, source))
		}
	}
	return name + params
}
