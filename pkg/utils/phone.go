package utils

import "strings"

// NormalizePhone strips a WhatsApp JID suffix, device part and every non-digit.
// "5511999999999@s.whatsapp.net", "+55 11 99999-9999" and "5511999999999:12@c.us"
// all become "5511999999999".
func NormalizePhone(raw string) string {
	s := strings.TrimSpace(raw)
	if i := strings.IndexByte(s, '@'); i >= 0 {
		s = s[:i]
	}
	if i := strings.IndexByte(s, ':'); i >= 0 {
		s = s[:i]
	}
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SamePhone compares two numbers after normalization. Empty values never match.
func SamePhone(a, b string) bool {
	na, nb := NormalizePhone(a), NormalizePhone(b)
	return na != "" && na == nb
}
