package discovery

import (
	"strconv"
	"strings"
)

// FieldTemplate returns a value template extracting path from the JSON state
// payload, optionally piped through a filter such as "int".
//
// Path segments are separated by dots and may carry index suffixes:
//
//	FieldTemplate("drift.co", "int") == "{{ value_json.drift.co | int }}"
//	FieldTemplate("drift[0]", "")    == "{{ value_json.drift[0] }}"
//	FieldTemplate("[0]", "")         == "{{ value_json[0] }}"
//
// Keys that are not plain identifiers use bracket notation.
func FieldTemplate(path, filter string) string {
	expr := "value_json" + fieldExpr(path)
	if filter != "" {
		expr += " | " + filter
	}
	return "{{ " + expr + " }}"
}

// IndexTemplate extracts element idx of a top-level JSON array.
func IndexTemplate(idx int) string {
	return "{{ value_json[" + strconv.Itoa(idx) + "] }}"
}

// KeyTemplate extracts a single top-level key, whatever characters it holds.
func KeyTemplate(key string) string {
	return "{{ value_json" + keyExpr(key) + " }}"
}

func fieldExpr(path string) string {
	var b strings.Builder
	for _, seg := range strings.Split(path, ".") {
		name, indexes := splitIndexes(seg)
		if name != "" {
			b.WriteString(keyExpr(name))
		}
		b.WriteString(indexes)
	}
	return b.String()
}

// splitIndexes separates "drift[0][1]" into "drift" and "[0][1]".
// Malformed brackets are treated as part of the key.
func splitIndexes(seg string) (name, indexes string) {
	i := strings.IndexByte(seg, '[')
	if i < 0 || !strings.HasSuffix(seg, "]") {
		return seg, ""
	}
	rest := seg[i:]
	for _, part := range strings.Split(strings.Trim(rest, "[]"), "][") {
		if _, err := strconv.Atoi(part); err != nil {
			return seg, ""
		}
	}
	return seg[:i], rest
}

func keyExpr(key string) string {
	if isIdentifier(key) {
		return "." + key
	}
	return "['" + strings.ReplaceAll(key, "'", "\\'") + "']"
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
