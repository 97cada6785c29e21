package textutil

import (
	"strings"
	"sync"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	strictOnce   sync.Once
	strictPolicy *bluemonday.Policy
)

func policy() *bluemonday.Policy {
	strictOnce.Do(func() {
		strictPolicy = bluemonday.StrictPolicy()
	})
	return strictPolicy
}

// Plain strips every HTML tag from user supplied text and trims the result.
func Plain(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	return strings.TrimSpace(policy().Sanitize(value))
}

// NormalizeCode trims and upper-cases identifiers such as voucher codes and variant colors.
func NormalizeCode(value string) string {
	return strings.ToUpper(strings.TrimSpace(value))
}

var lower = cases.Lower(language.Vietnamese)

// SearchKey folds a display string into the key stored for prefix search: lower-cased, with
// Vietnamese diacritics removed and whitespace collapsed.
func SearchKey(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	folder := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(folder, value)
	if err != nil {
		folded = value
	}
	folded = strings.NewReplacer("đ", "d", "Đ", "D").Replace(folded)
	folded = lower.String(folded)
	return strings.Join(strings.Fields(folded), " ")
}

// PrefixEnd returns the exclusive upper bound for a Firestore range query that matches every
// string starting with prefix.
func PrefixEnd(prefix string) string {
	return prefix + "\uf8ff"
}

var vnd = message.NewPrinter(language.Vietnamese)

// FormatVND renders an amount with Vietnamese digit grouping, e.g. 1.000.000.
func FormatVND(amount int64) string {
	return vnd.Sprintf("%d", amount)
}
