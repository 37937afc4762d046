package guideline

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"golang.org/x/text/cases"
)

const fingerprintSeparator = "\x1f"

// Fingerprint identifies a guideline across runs. It depends only on the
// source, the case-folded title and the link.
func Fingerprint(draft Draft) string {
	return FingerprintOf(draft.Source, draft.Title, draft.Link)
}

func FingerprintOf(source Source, title, link string) string {
	folded := cases.Fold().String(NormalizeTitle(title))

	var b strings.Builder
	b.WriteString(string(source))
	b.WriteString(fingerprintSeparator)
	b.WriteString(folded)
	b.WriteString(fingerprintSeparator)
	b.WriteString(strings.TrimSpace(link))

	hash := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(hash[:])
}
