// Package recipients parses, normalizes and validates recipient address lists.
package recipients

import (
	"regexp"
	"strings"
)

// addressPattern requires a local part, an "@", a domain and a dot-separated
// suffix, none of which may contain whitespace or another "@".
var addressPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// importSeparators are the delimiters accepted in imported list files.
var importSeparators = regexp.MustCompile(`[\n,]`)

// ValidationError reports every entry of a recipient list that is not a
// syntactically valid address.
type ValidationError struct {
	Invalid []string
}

func (e *ValidationError) Error() string {
	return "Invalid email(s): " + strings.Join(e.Invalid, ", ")
}

// IsValid reports whether addr looks like an email address.
func IsValid(addr string) bool {
	return addressPattern.MatchString(addr)
}

// Normalize turns the content of an imported list file into recipient text.
// Entries may be separated by newlines or commas; blank entries are dropped
// and the rest are joined with ", ".
func Normalize(content string) string {
	return strings.Join(Import(content), ", ")
}

// Import splits imported file content into trimmed, non-empty entries.
func Import(content string) []string {
	tokens := importSeparators.Split(content, -1)
	list := make([]string, 0, len(tokens))
	for _, token := range tokens {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		list = append(list, token)
	}
	return list
}

// Parse splits manually entered recipient text on commas and trims each
// entry. Empty entries are kept so that validation can report them.
func Parse(text string) []string {
	tokens := strings.Split(text, ",")
	for i, token := range tokens {
		tokens[i] = strings.TrimSpace(token)
	}
	return tokens
}

// Validate returns a *ValidationError listing every invalid entry, in input
// order, or nil when all entries are valid.
func Validate(list []string) error {
	var invalid []string
	for _, addr := range list {
		if !IsValid(addr) {
			invalid = append(invalid, addr)
		}
	}
	if len(invalid) > 0 {
		return &ValidationError{Invalid: invalid}
	}
	return nil
}
