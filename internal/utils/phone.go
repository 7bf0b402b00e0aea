package utils

import "strings"

// NormalizePhone reduces a phone number to the bare digits WhatsApp uses as
// the sender id: no "whatsapp:" prefix, no "+", no separators.
func NormalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	phone = strings.TrimPrefix(phone, "whatsapp:")

	var b strings.Builder
	b.Grow(len(phone))
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
