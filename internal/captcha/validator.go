package captcha

// IsAcceptable reports whether recognized text may be written into the field.
// The whole string must be within [minLen, maxLen] and contain only ASCII letters
// and digits; nothing is trimmed or partially accepted.
func IsAcceptable(text string, minLen, maxLen int) bool {
	if text == "" {
		return false
	}
	if len(text) < minLen || len(text) > maxLen {
		return false
	}
	for i := 0; i < len(text); i++ {
		if !isAlnum(text[i]) {
			return false
		}
	}
	return true
}

func isAlnum(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
