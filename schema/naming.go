package schema

import (
	"fmt"
	"strings"
	"unicode"

	pluralizer "github.com/gertd/go-pluralize"
)

// pluralizeClient is a singleton instance for consistent pluralization behavior.
var pluralizeClient = pluralizer.NewClient()

// =========================================================================
// Column Naming Strategies
// =========================================================================

// ColumnNamingStrategy defines how Go field names are converted to database column names.
type ColumnNamingStrategy interface {
	// ColumnName converts a Go field name to a database column name.
	// Should return consistent results for the same input.
	ColumnName(fieldName string) string
}

// ColumnNamingType represents different column naming conventions.
type ColumnNamingType int

const (
	ColumnSnakeCase  ColumnNamingType = iota // user_id, first_name, created_at
	ColumnCamelCase                          // userId, firstName, createdAt
	ColumnPascalCase                         // UserId, FirstName, CreatedAt
)

type columnNamingStrategy struct {
	namingType ColumnNamingType
}

// NewColumnNamingStrategy creates a new column naming strategy.
func NewColumnNamingStrategy(namingType ColumnNamingType) ColumnNamingStrategy {
	return &columnNamingStrategy{namingType: namingType}
}

// DefaultNamingStrategy maps fields to snake_case columns.
func DefaultNamingStrategy() ColumnNamingStrategy {
	return NewColumnNamingStrategy(ColumnSnakeCase)
}

// ColumnName converts field names according to the configured strategy.
func (c *columnNamingStrategy) ColumnName(fieldName string) string {
	switch c.namingType {
	case ColumnCamelCase:
		return toCamelCase(fieldName)
	case ColumnPascalCase:
		return toPascalCase(fieldName)
	default:
		return toSnakeCase(fieldName)
	}
}

// =========================================================================
// Enum Label Rules
// =========================================================================

// RenameRule derives enum labels from Go variant names.
type RenameRule string

const (
	RenameNone               RenameRule = ""
	RenameCamelCase          RenameRule = "camelCase"
	RenameKebabCase          RenameRule = "kebab-case"
	RenameLowerCase          RenameRule = "lowercase"
	RenamePascalCase         RenameRule = "PascalCase"
	RenameScreamingKebabCase RenameRule = "SCREAMING-KEBAB-CASE"
	RenameScreamingSnakeCase RenameRule = "SCREAMING_SNAKE_CASE"
	RenameSnakeCase          RenameRule = "snake_case"
	RenameTrainCase          RenameRule = "Train-Case"
	RenameUpperCase          RenameRule = "UPPERCASE"
)

// ParseRenameRule validates a rule name.
func ParseRenameRule(s string) (RenameRule, error) {
	switch r := RenameRule(s); r {
	case RenameNone, RenameCamelCase, RenameKebabCase, RenameLowerCase, RenamePascalCase,
		RenameScreamingKebabCase, RenameScreamingSnakeCase, RenameSnakeCase, RenameTrainCase, RenameUpperCase:
		return r, nil
	}
	return "", fmt.Errorf("invalid case conversion %q", s)
}

// Apply converts a variant name to its label.
func (r RenameRule) Apply(name string) string {
	switch r {
	case RenameCamelCase:
		return toCamelCase(name)
	case RenameKebabCase:
		return joinWords(name, "-", strings.ToLower)
	case RenameLowerCase:
		return strings.ToLower(name)
	case RenamePascalCase:
		return toPascalCase(name)
	case RenameScreamingKebabCase:
		return joinWords(name, "-", strings.ToUpper)
	case RenameScreamingSnakeCase:
		return joinWords(name, "_", strings.ToUpper)
	case RenameSnakeCase:
		return toSnakeCase(name)
	case RenameTrainCase:
		return joinWords(name, "-", title)
	case RenameUpperCase:
		return strings.ToUpper(name)
	default:
		return name
	}
}

// =========================================================================
// Core Conversion Functions
// =========================================================================

// words splits an identifier at separators and case boundaries:
// "HTTPServerID" -> HTTP, Server, ID; "user_id" -> user, id.
func words(name string) []string {
	var out []string
	runes := []rune(name)
	start := 0
	flush := func(end int) {
		if end > start {
			out = append(out, string(runes[start:end]))
		}
	}

	for i, r := range runes {
		if r == '_' || r == '-' || unicode.IsSpace(r) {
			flush(i)
			start = i + 1
			continue
		}
		if i == start || !unicode.IsUpper(r) {
			continue
		}
		prev := runes[i-1]
		// aB -> a|B, a1B -> a1|B, ABc -> A|Bc
		if unicode.IsLower(prev) || unicode.IsDigit(prev) ||
			(unicode.IsUpper(prev) && i+1 < len(runes) && unicode.IsLower(runes[i+1])) {
			flush(i)
			start = i
		}
	}
	flush(len(runes))
	return out
}

func joinWords(name, sep string, fn func(string) string) string {
	ws := words(name)
	for i, w := range ws {
		ws[i] = fn(w)
	}
	return strings.Join(ws, sep)
}

func title(w string) string {
	if w == "" {
		return ""
	}
	r := []rune(strings.ToLower(w))
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// toSnakeCase converts any naming convention to snake_case.
func toSnakeCase(name string) string {
	return joinWords(name, "_", strings.ToLower)
}

// toCamelCase converts any naming convention to camelCase.
func toCamelCase(name string) string {
	ws := words(name)
	for i, w := range ws {
		if i == 0 {
			ws[i] = strings.ToLower(w)
		} else {
			ws[i] = title(w)
		}
	}
	return strings.Join(ws, "")
}

// toPascalCase converts any naming convention to PascalCase.
func toPascalCase(name string) string {
	return joinWords(name, "", title)
}

// ExportedName turns a column name into a Go field name, keeping common
// initialisms upper case: user_id -> UserID.
func ExportedName(column string) string {
	ws := words(column)
	for i, w := range ws {
		if initialisms[strings.ToUpper(w)] {
			ws[i] = strings.ToUpper(w)
		} else {
			ws[i] = title(w)
		}
	}
	name := strings.Join(ws, "")
	if name == "" || unicode.IsDigit([]rune(name)[0]) {
		name = "C" + name
	}
	return name
}

var initialisms = map[string]bool{
	"ID": true, "UUID": true, "URL": true, "URI": true, "HTTP": true, "HTTPS": true,
	"API": true, "JSON": true, "XML": true, "SQL": true, "HTML": true, "IP": true,
}

// =========================================================================
// Inflection Functions
// =========================================================================

// Singular returns the singular form of an identifier's last word:
// ActivePosts -> ActivePost.
func Singular(name string) string {
	return inflectLast(name, pluralizeClient.Singular)
}

func inflectLast(name string, fn func(string) string) string {
	ws := words(name)
	if len(ws) == 0 {
		return name
	}
	last := ws[len(ws)-1]
	if !strings.HasSuffix(name, last) {
		return name
	}
	prefix := name[:len(name)-len(last)]
	return prefix + preserveCase(last, fn(strings.ToLower(last)))
}

// preserveCase preserves the case pattern of the original string in the result.
func preserveCase(original, result string) string {
	if original == "" || result == "" {
		return result
	}

	if strings.ToLower(original) == original {
		return strings.ToLower(result)
	}
	if strings.ToUpper(original) == original {
		return strings.ToUpper(result)
	}
	if unicode.IsUpper(rune(original[0])) {
		return title(result)
	}
	return strings.ToLower(result)
}
