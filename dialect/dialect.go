package dialect

import "fmt"

// Dialect describes how a target database spells the parts of a query the
// compiler has to generate.
type Dialect interface {
	Name() string
	// Placeholder renders the native placeholder for the 1-based index n.
	Placeholder(n int) string
	// Sigil returns the character that starts a native placeholder. When ok is
	// true, templates may not contain it outside of an argument reference.
	Sigil() (sigil rune, ok bool)
	RenderValue(v any) string
	SupportsVector() bool
}

// Lookup returns the dialect registered under name.
func Lookup(name string) (Dialect, error) {
	switch name {
	case "", "postgres", "postgresql", "pgx":
		return NewPostgresDialect(), nil
	default:
		return nil, fmt.Errorf("unknown dialect %q", name)
	}
}
