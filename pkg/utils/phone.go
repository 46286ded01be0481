package utils

import "strings"

// DigitsOnly strips everything except ASCII digits from a phone number.
// Telephony providers accept digits-only numbers; queue dedupe and the
// duplicate-contact rule compare numbers in this normalized form.
func DigitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
