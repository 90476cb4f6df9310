package schema

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// ParsedTag is the column mapping declared on a record field.
type ParsedTag struct {
	ColumnName string // explicit or derived from the field name
	Skip       bool   // db:"-"
	Default    string // Go expression used when the column is absent or NULL
	HasDefault bool
}

// TagParser parses and caches `db` struct tags.
//
// Supported tag syntax:
//
//	`db:"column_name"`                  // Basic column mapping
//	`db:"column:custom_name"`           // Explicit column name
//	`db:"name;default:RoleUser"`        // Column with a default
//	`db:"default:\"Unnamed\""`          // Default only, column from naming strategy
//	`db:"-"`                            // Skip field entirely
type TagParser struct {
	namingStrategy ColumnNamingStrategy
	cache          map[string]*ParsedTag
	cacheMu        sync.RWMutex
}

// NewTagParser creates a tag parser deriving missing column names with strategy.
func NewTagParser(strategy ColumnNamingStrategy) *TagParser {
	if strategy == nil {
		strategy = DefaultNamingStrategy()
	}
	return &TagParser{
		namingStrategy: strategy,
		cache:          make(map[string]*ParsedTag, 64),
	}
}

// ParseTag parses the `db` entry of a struct tag.
func (p *TagParser) ParseTag(fieldName string, tag reflect.StructTag) (*ParsedTag, error) {
	return p.Parse(fieldName, tag.Get("db"))
}

// Parse parses a raw tag value such as "column:role;default:RoleUser".
func (p *TagParser) Parse(fieldName, tagValue string) (*ParsedTag, error) {
	if tagValue == "" {
		return &ParsedTag{ColumnName: p.namingStrategy.ColumnName(fieldName)}, nil
	}

	cacheKey := fieldName + ":" + tagValue
	p.cacheMu.RLock()
	if cached, ok := p.cache[cacheKey]; ok {
		p.cacheMu.RUnlock()
		return cached, nil
	}
	p.cacheMu.RUnlock()

	parsed, err := p.parseTagValue(fieldName, tagValue)
	if err != nil {
		return nil, fmt.Errorf("field %s: %w", fieldName, err)
	}

	p.cacheMu.Lock()
	p.cache[cacheKey] = parsed
	p.cacheMu.Unlock()
	return parsed, nil
}

func (p *TagParser) parseTagValue(fieldName, tagValue string) (*ParsedTag, error) {
	if tagValue == "-" {
		return &ParsedTag{Skip: true}, nil
	}

	parsed := &ParsedTag{ColumnName: p.namingStrategy.ColumnName(fieldName)}
	for i, option := range splitOptions(tagValue) {
		option = strings.TrimSpace(option)
		if option == "" {
			continue
		}
		key, value, hasValue := strings.Cut(option, ":")
		if !hasValue {
			if i != 0 {
				return nil, fmt.Errorf("unknown tag option %q", option)
			}
			parsed.ColumnName = option
			continue
		}
		switch strings.TrimSpace(key) {
		case "column", "name":
			parsed.ColumnName = strings.TrimSpace(value)
		case "default":
			parsed.Default = strings.TrimSpace(value)
			parsed.HasDefault = true
			if parsed.Default == "" {
				return nil, fmt.Errorf("empty default")
			}
		default:
			// unknown key:value pairs are left for other tools
		}
	}
	if parsed.ColumnName == "" {
		return nil, fmt.Errorf("empty column name")
	}
	return parsed, nil
}

// splitOptions splits on ';' outside of double quotes, so that defaults
// like `default:"a;b"` survive.
func splitOptions(s string) []string {
	var out []string
	inQuote, escaped := false, false
	start := 0
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case escaped:
			escaped = false
		case c == '\\':
			escaped = true
		case c == '"':
			inQuote = !inQuote
		case c == ';' && !inQuote:
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return append(out, s[start:])
}
