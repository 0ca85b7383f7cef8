package classify

import (
	"strings"
	"unicode"
)

// stopwords are question scaffolding that never indicates a backend.
var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "of": true, "in": true,
	"on": true, "for": true, "to": true, "with": true, "and": true,
	"or": true, "not": true, "by": true, "from": true, "at": true,
	"is": true, "are": true, "was": true, "were": true, "be": true,
	"who": true, "what": true, "which": true, "where": true,
	"when": true, "how": true, "many": true, "much": true,
	"all": true, "any": true, "me": true, "my": true, "our": true,
	"find": true, "show": true, "list": true, "get": true,
	"give": true, "tell": true, "have": true, "has": true,
	"over": true, "under": true, "than": true, "more": true,
	"less": true, "that": true, "this": true, "these": true,
	"those": true, "do": true, "does": true, "did": true,
}

// Tokenize splits a question into lowercase tokens with edge
// punctuation trimmed, dropping stopwords and bare numbers. Internal
// hyphens and underscores are kept so identifier-like terms survive.
func Tokenize(question string) []string {
	var (
		tokens []string
		seen   = make(map[string]bool)
	)

	for _, word := range strings.Fields(question) {
		token := normalizeToken(word)
		if token == "" || stopwords[token] || isNumeric(token) {
			continue
		}

		if !seen[token] {
			tokens = append(tokens, token)
			seen[token] = true
		}
	}

	return tokens
}

func normalizeToken(token string) string {
	token = strings.ToLower(token)

	return strings.TrimFunc(token, func(r rune) bool {
		return unicode.IsPunct(r) && r != '-' && r != '_'
	})
}

func isNumeric(token string) bool {
	for _, r := range token {
		if !unicode.IsDigit(r) && r != '.' && r != ',' {
			return false
		}
	}

	return true
}

// identifierWords splits a schema identifier into its words:
// "customer_id" -> ["customer", "id"], "order-items" -> ["order", "items"].
func identifierWords(name string) []string {
	return strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return r == '_' || r == '-' || r == '.' || r == ' '
	})
}

// prefixMatch reports whether one term is a prefix of the other, so
// "customer" matches "customers" and vice versa. Short prefixes are
// too ambiguous to count.
const minPrefixLen = 4

func prefixMatch(a, b string) bool {
	if len(a) < minPrefixLen || len(b) < minPrefixLen {
		return a == b
	}

	return strings.HasPrefix(a, b) || strings.HasPrefix(b, a)
}
