package discovery

import "strings"

// Slug lower-cases s and replaces every run of characters outside [a-z0-9]
// with a single underscore, trimming underscores at either end.
//
//	Slug("consumption/counter_0") == "consumption_counter_0"
//	Slug("Room Temp")             == "room_temp"
func Slug(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	pendingSep := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	return b.String()
}

// Humanize turns a key into a display name: "smoke_temp" becomes "Smoke temp".
func Humanize(key string) string {
	words := strings.FieldsFunc(key, func(r rune) bool {
		return r == '_' || r == '-' || r == '.' || r == '/' || r == ' '
	})
	if len(words) == 0 {
		return key
	}
	s := strings.ToLower(strings.Join(words, " "))
	return strings.ToUpper(s[:1]) + s[1:]
}
