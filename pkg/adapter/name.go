package adapter

import (
	"reflect"
	"strings"
	"unicode"
)

// Name derives the canonical short name of a concrete adapter from its type:
// package path and pointers stripped, camel case converted to snake case, a
// trailing "_adapter" token removed. MemoryAdapter yields "memory" and
// SQLAdapter yields "sql". Pure and deterministic, no I/O.
func Name(a any) string {
	t := reflect.TypeOf(a)
	if t == nil {
		return ""
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	n := t.Name()
	if n == "" {
		n = t.String()
	}
	return strings.TrimSuffix(camelToSnake(n), "_adapter")
}

// camelToSnake lowercases a CamelCase name, keeping acronym runs together:
// "SQLAdapter" becomes "sql_adapter", "MongoDBAdapter" "mongo_db_adapter".
func camelToSnake(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		if !unicode.IsUpper(r) {
			b.WriteRune(r)
			continue
		}
		startsWord := i > 0 && !unicode.IsUpper(runes[i-1])
		endsAcronym := i > 0 && unicode.IsUpper(runes[i-1]) && i+1 < len(runes) && unicode.IsLower(runes[i+1])
		if startsWord || endsAcronym {
			b.WriteRune('_')
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
