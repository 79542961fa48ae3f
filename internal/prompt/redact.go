package prompt

import (
	"regexp"
	"strings"
)

// PIIType represents a kind of personal data redacted before persistence.
type PIIType string

const (
	PIITypeEmail      PIIType = "email"
	PIITypePhone      PIIType = "phone"
	PIITypeFiscalCode PIIType = "fiscal_code"
	PIITypeIBAN       PIIType = "iban"
	PIITypeCreditCard PIIType = "credit_card"
	PIITypeAPIKey     PIIType = "api_key"
	PIITypeJWT        PIIType = "jwt"
)

type piiPattern struct {
	kind    PIIType
	pattern *regexp.Regexp
	valid   func(string) bool
}

// Ordered so longer structured identifiers win over the generic phone match.
var piiPatterns = []piiPattern{
	{kind: PIITypeJWT, pattern: regexp.MustCompile(`\beyJ[A-Za-z0-9_\-]+\.eyJ[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]+\b`)},
	{kind: PIITypeAPIKey, pattern: regexp.MustCompile(`\b(?:sk-(?:proj-)?[A-Za-z0-9_\-]{20,}|AKIA[0-9A-Z]{16}|AIza[0-9A-Za-z\-_]{35})\b`)},
	{kind: PIITypeEmail, pattern: regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`)},
	{kind: PIITypeIBAN, pattern: regexp.MustCompile(`\b[A-Z]{2}[0-9]{2}(?:\s?[A-Z0-9]{4}){2,7}(?:\s?[A-Z0-9]{1,4})?\b`)},
	{kind: PIITypeFiscalCode, pattern: regexp.MustCompile(`(?i)\b[A-Z]{6}[0-9LMNPQRSTUV]{2}[ABCDEHLMPRST][0-9LMNPQRSTUV]{2}[A-Z][0-9LMNPQRSTUV]{3}[A-Z]\b`)},
	{kind: PIITypeCreditCard, pattern: regexp.MustCompile(`\b(?:[0-9]{4}[ -]?){3}[0-9]{1,7}\b`), valid: luhnCheck},
	{kind: PIITypePhone, pattern: regexp.MustCompile(`(?:\+|\b00)?\b[0-9]{2,4}[ .\-]?[0-9]{3,4}[ .\-]?[0-9]{3,4}\b`)},
}

// RedactPII replaces personal identifiers in text with typed placeholders.
func RedactPII(text string) string {
	for _, p := range piiPatterns {
		text = p.pattern.ReplaceAllStringFunc(text, func(match string) string {
			if p.valid != nil && !p.valid(match) {
				return match
			}
			return redactionString(p.kind)
		})
	}
	return text
}

// ContainsPII reports whether RedactPII would change text.
func ContainsPII(text string) bool {
	return RedactPII(text) != text
}

func redactionString(kind PIIType) string {
	return "[" + strings.ToUpper(string(kind)) + "_REDACTED]"
}

// luhnCheck validates a card number using the Luhn algorithm
func luhnCheck(cardNumber string) bool {
	cardNumber = strings.ReplaceAll(cardNumber, " ", "")
	cardNumber = strings.ReplaceAll(cardNumber, "-", "")

	if len(cardNumber) < 13 || len(cardNumber) > 19 {
		return false
	}

	sum := 0
	isSecond := false
	for i := len(cardNumber) - 1; i >= 0; i-- {
		digit := int(cardNumber[i] - '0')
		if isSecond {
			digit *= 2
			if digit > 9 {
				digit -= 9
			}
		}
		sum += digit
		isSecond = !isSecond
	}

	return sum%10 == 0
}
