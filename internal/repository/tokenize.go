package repository

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// TokenizeOCRTolerant lowercases, normalizes to NFC then NFD, drops
// combining marks, splits on non-alphanumeric runs, and keeps tokens longer
// than 2 characters. Two OCR-specific substitutions are applied before
// splitting: U+0131 (dotless i) maps to 'i', and a digit '1' surrounded by
// letters maps to 'i' (a common OCR confusion for scanned text).
func TokenizeOCRTolerant(text string) []string {
	lower := strings.ToLower(text)
	nfc := norm.NFC.String(lower)
	nfd := norm.NFD.String(nfc)

	var stripped strings.Builder
	runes := []rune(nfd)
	for i, r := range runes {
		if unicode.Is(unicode.Mn, r) { // combining mark
			continue
		}
		switch r {
		case 'ı': // dotless i
			stripped.WriteRune('i')
		case '1':
			if isOCRDigitLetterBoundary(runes, i) {
				stripped.WriteRune('i')
			} else {
				stripped.WriteRune(r)
			}
		default:
			stripped.WriteRune(r)
		}
	}

	var tokens []string
	var cur strings.Builder
	flush := func() {
		if utf8.RuneCountInString(cur.String()) > 2 {
			tokens = append(tokens, cur.String())
		}
		cur.Reset()
	}
	for _, r := range stripped.String() {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			cur.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}

// isOCRDigitLetterBoundary reports whether runes[i] == '1' sits directly
// between two letters, the shape OCR engines commonly mis-render 'i' as.
func isOCRDigitLetterBoundary(runes []rune, i int) bool {
	if i == 0 || i == len(runes)-1 {
		return false
	}
	return unicode.IsLetter(runes[i-1]) && unicode.IsLetter(runes[i+1])
}
