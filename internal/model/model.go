// Package model defines core data structures for repomap.
package model

// TagKind indicates whether a tag is a definition or a reference.
type TagKind string

const (
	Definition TagKind = "def"
	Reference  TagKind = "ref"
)

// SymbolKind indicates the syntactic kind of a symbol.
type SymbolKind string

const (
	Class    SymbolKind = "class"
	Function SymbolKind = "function"
	Method   SymbolKind = "method"
	Module   SymbolKind = "module"
	Ident    SymbolKind = "ident"
)

// Role classifies how a file entered the current invocation. It controls the
// personalization weight the ranker assigns to the file and is never persisted.
type Role string

const (
	RoleChat      Role = "chat"
	RoleMentioned Role = "mentioned"
	RoleOther     Role = "other"
)

// Tag represents a single symbol occurrence extracted from source code.
// Tags are immutable once extracted.
type Tag struct {
	Name       string
	Kind       TagKind
	SymbolKind SymbolKind
	Line       int // 1-based first line of the occurrence
	EndLine    int // 1-based last line of the defining construct; == Line for references
	File       string
	Signature  string
}

// FileRecord holds one file's extracted tags plus the per-invocation role.
// Records are rebuilt from the cache on every invocation and discarded after
// the map is produced.
type FileRecord struct {
	Path     string // relative to the repository root
	Language string
	Mtime    int64 // unix nanoseconds, cache key component
	Size     int64
	Tags     []Tag
	Role     Role
}

// Edge is a directed edge in the relevance graph: From references a symbol
// named Ident that To defines. Weight is always positive.
type Edge struct {
	From   string
	To     string
	Ident  string
	Weight float64
}

// RankedTag pairs a definition tag with its PageRank-derived score.
// The canonical ordering is score descending, then file path ascending,
// then line ascending.
type RankedTag struct {
	Tag   Tag
	Score float64
}

// FileRank records a file's converged importance score, used for file
// ordering in rendered output.
type FileRank struct {
	Path string
	Rank float64
}

// RepoMap is the analyzed repository view consumed by the TOON encoder.
type RepoMap struct {
	RepoName     string
	Root         string
	Files        []FileRank
	Tags         []RankedTag
	Dependencies []Edge
}
