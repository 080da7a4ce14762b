package directory

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	dErrors "onboard/pkg/domain-errors"
)

// Default country calling codes for phone normalization. Extend as
// offices open; unknown countries reject rather than guess.
var dialCodes = map[string]string{
	"US": "1",
	"CA": "1",
	"GB": "44",
	"DE": "49",
	"FR": "33",
	"NL": "31",
	"PL": "48",
	"VN": "84",
	"IN": "91",
	"AU": "61",
	"SG": "65",
	"JP": "81",
}

var stripDiacritics = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NameSlug folds a display name to a diacritics-insensitive lowercase
// slug so "Nguyễn Thị Minh Anh" and "Nguyen Thi Minh Anh" compare equal.
func NameSlug(name string) string {
	folded, _, err := transform.String(stripDiacritics, name)
	if err != nil {
		folded = name
	}
	folded = strings.ToLower(strings.TrimSpace(folded))
	// Vietnamese đ/Đ decomposes to itself, fold it by hand.
	folded = strings.ReplaceAll(folded, "đ", "d")
	fields := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.Join(fields, "-")
}

// NormalizeEmail lowercases and trims. An empty result is a validation
// error; email is half of the uniqueness invariant.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", dErrors.Validation("email", "email must not be empty")
	}
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 || strings.Count(email, "@") != 1 {
		return "", dErrors.Validation("email", "email must contain exactly one @ with text on both sides")
	}
	return email, nil
}

// NormalizeDevicePrefs trims entries and drops blanks and repeats so a
// preference list like ["Laptop", " laptop ", ""] nominates each device
// once. First occurrence wins; order is the employee's ranking.
func NormalizeDevicePrefs(prefs []string) []string {
	if len(prefs) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(prefs))
	out := make([]string, 0, len(prefs))
	for _, p := range prefs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		key := strings.ToLower(p)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// NormalizePhone converts a raw phone number to E.164. A missing country
// code is defaulted from the employee's location country; an unknown
// country is rejected rather than guessed.
func NormalizePhone(raw, country string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsDigit(r):
			return r
		case r == '+':
			return r
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
			return -1
		default:
			return 'x'
		}
	}, strings.TrimSpace(raw))
	if strings.ContainsRune(cleaned, 'x') {
		return "", dErrors.Validation("phone", "phone contains invalid characters")
	}
	if cleaned == "" {
		return "", dErrors.Validation("phone", "phone must not be empty")
	}

	var digits string
	switch {
	case strings.HasPrefix(cleaned, "+"):
		digits = cleaned[1:]
	case strings.HasPrefix(cleaned, "00"):
		digits = cleaned[2:]
	default:
		code, ok := dialCodes[strings.ToUpper(strings.TrimSpace(country))]
		if !ok {
			return "", dErrors.Validation("phone", "phone has no country code and location country is unknown")
		}
		digits = code + strings.TrimPrefix(cleaned, "0")
	}

	if strings.Contains(digits, "+") {
		return "", dErrors.Validation("phone", "phone has a misplaced plus sign")
	}
	if len(digits) < 6 || len(digits) > 15 {
		return "", dErrors.Validation("phone", "phone must have 6 to 15 digits in E.164 form")
	}
	return "+" + digits, nil
}
