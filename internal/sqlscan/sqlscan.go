// Package sqlscan pulls table references and statement kind out of raw SQL
// text without building a syntax tree.
package sqlscan

import (
	"regexp"
	"strings"
)

// MutationKeywords are matched as plain substrings of the uppercased query,
// in this order. A column named created_at therefore reads as CREATE.
var MutationKeywords = []string{"INSERT", "UPDATE", "DELETE", "DROP", "CREATE", "ALTER", "TRUNCATE"}

// tableRefPattern matches a table-introducing keyword, whitespace, an optional
// opening quote and the identifier that follows.
var tableRefPattern = regexp.MustCompile("(?i)(?:FROM|JOIN|INTO|UPDATE|TABLE)\\s+[`\"']?([a-zA-Z0-9_.]+)[`\"']?")

// Classification is everything the guard needs to know about one statement.
type Classification struct {
	Tables          []string // lowercase, deduplicated, first-appearance order
	Mutation        bool
	MutationKeyword string // first keyword hit, empty when Mutation is false
	Read            bool   // statement starts with SELECT
	HasComments     bool
}

// Classifier turns raw SQL into a Classification.
type Classifier interface {
	Classify(query string) Classification
}

// KeywordClassifier is the substring/regex based Classifier.
type KeywordClassifier struct{}

// NewKeywordClassifier returns the default classifier.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{}
}

func (KeywordClassifier) Classify(query string) Classification {
	keyword, mutation := DetectMutation(query)
	return Classification{
		Tables:          ExtractTables(query),
		Mutation:        mutation,
		MutationKeyword: keyword,
		Read:            IsRead(query),
		HasComments:     strings.Contains(query, "--") || strings.Contains(query, "/*"),
	}
}

// ExtractTables returns the lowercase set of identifiers following FROM, JOIN,
// INTO, UPDATE or TABLE. Comments, string literals, aliases and CTE names are
// not special-cased.
func ExtractTables(query string) []string {
	matches := tableRefPattern.FindAllStringSubmatch(query, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	tables := make([]string, 0, len(matches))
	for _, m := range matches {
		name := strings.ToLower(m[1])
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		tables = append(tables, name)
	}
	return tables
}

// DetectMutation reports the first mutation keyword found anywhere in the query.
func DetectMutation(query string) (string, bool) {
	upper := strings.ToUpper(query)
	for _, kw := range MutationKeywords {
		if strings.Contains(upper, kw) {
			return kw, true
		}
	}
	return "", false
}

// IsMutation is DetectMutation without the keyword.
func IsMutation(query string) bool {
	_, ok := DetectMutation(query)
	return ok
}

// IsRead reports whether the statement text starts with SELECT.
func IsRead(query string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(query)), "SELECT")
}

// FirstKeyword returns the first whitespace-delimited word of the query, uppercased.
func FirstKeyword(query string) string {
	fields := strings.Fields(strings.ToUpper(query))
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
