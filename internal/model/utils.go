package model

// TruncateString caps a string at maxLength bytes so it fits the
// column it is written to.
func TruncateString(s string, maxLength int) string {
	if len(s) <= maxLength {
		return s
	}
	return s[:maxLength]
}
