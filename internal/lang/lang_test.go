package lang

import (
	"testing"
)

func TestForExtension(t *testing.T) {
	t.Parallel()

	tests := []struct {
		ext  string
		want string
	}{
		{".py", "python"},
		{".go", "go"},
		{".rb", "ruby"},
		{".js", "javascript"},
		{".ts", "typescript"},
		{".tsx", "typescript"},
		{".txt", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.ext, func(t *testing.T) {
			t.Parallel()
			got := ForExtension(tt.ext)
			if got != tt.want {
				t.Errorf("ForExtension(%q) = %q, want %q", tt.ext, got, tt.want)
			}
		})
	}
}

func TestLanguagesRegistered(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"go", "python", "ruby", "javascript", "typescript"} {
		l, ok := Languages[name]
		if !ok {
			t.Fatalf("%s language not registered", name)
		}
		if l.GetLanguage() == nil {
			t.Errorf("%s language is nil", name)
		}
	}
}

func TestNewParser(t *testing.T) {
	t.Parallel()

	py := Languages["python"]
	p := py.NewParser()
	if p == nil {
		t.Fatal("NewParser returned nil")
	}
}

func TestGetTagQuery(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"go", "python", "ruby", "javascript", "typescript"} {
		l := Languages[name]
		q, err := l.GetTagQuery()
		if err != nil {
			t.Fatalf("GetTagQuery(%s): %v", name, err)
		}
		if q == nil {
			t.Fatalf("query is nil for %s", name)
		}
	}
}
