package util

import "github.com/dustin/go-humanize"

// FormatHz renders a frequency with an SI prefix, e.g. "2.44 GHz".
func FormatHz(hz float64) string {
	return humanize.SIWithDigits(hz, 3, "Hz")
}

// FormatBytes renders a byte count, e.g. "4.1 MB".
func FormatBytes(n int) string {
	if n < 0 {
		n = 0
	}
	return humanize.Bytes(uint64(n))
}
