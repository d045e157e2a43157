package capture

import (
	"fmt"
	"strings"
	"time"
)

// windowsIllegal are the characters Windows rejects in file names.
const windowsIllegal = `<>:"/\|?*`

// FormatFilename builds image_<base>_pc<DDMMYY>T<HHMMSS><±HH>.jpg from the
// local time t. With windows set the time uses '-' instead of ':'. An empty
// base yields image_pc<DDMMYY>T<HHMMSS><±HH>.jpg.
func FormatFilename(base string, t time.Time, windows bool) string {
	timePart := t.Format("15:04:05")
	if windows {
		timePart = strings.ReplaceAll(timePart, ":", "-")
	}
	stamp := fmt.Sprintf("pc%sT%s%s", t.Format("020106"), timePart, OffsetLabel(t))

	base = SanitizeBase(base, windows)
	if base == "" {
		return "image_" + stamp + ".jpg"
	}
	return "image_" + base + "_" + stamp + ".jpg"
}

// SanitizeBase replaces characters the target filesystem cannot store with
// '-' and trims surrounding whitespace and dots. Everything else is kept.
func SanitizeBase(base string, windows bool) string {
	base = strings.TrimSpace(base)
	base = strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == 0:
			return '-'
		case windows && (r < 0x20 || strings.ContainsRune(windowsIllegal, r)):
			return '-'
		}
		return r
	}, base)
	return strings.Trim(base, ".")
}

// OffsetLabel renders the UTC offset of t as a sign and whole hours, e.g.
// +02 or -05 for -05:30.
func OffsetLabel(t time.Time) string {
	_, offset := t.Zone()
	sign := '+'
	if offset < 0 {
		sign = '-'
		offset = -offset
	}
	return fmt.Sprintf("%c%02d", sign, offset/3600)
}
