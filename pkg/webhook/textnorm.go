package webhook

import "golang.org/x/text/unicode/norm"

// normalizeText applies NFC normalization to extracted text and attachment
// descriptions so visually-identical messages from different clients (some
// platforms send combining-character sequences, others precomposed) don't
// fork a session's conversationHistory with decomposed/composed variants
// of the same string.
func normalizeText(s string) string {
	return norm.NFC.String(s)
}
