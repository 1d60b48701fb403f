package textextract

import "strings"

// CleanScriptNoise filters OCR output down to the Kannada Unicode
// block, ASCII letters/digits, and a small punctuation allow-list,
// dropping whatever tesseract hallucinates around the document's mixed
// English/Kannada script (box-drawing noise, stray control characters).
func CleanScriptNoise(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case r >= 0x0C80 && r <= 0x0CFF: // Kannada block
			b.WriteRune(r)
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ',' || r == '.' || r == '-' || r == ' ' || r == '\n' || r == '\r' || r == '\f':
			b.WriteRune(r)
		}
	}
	return b.String()
}
