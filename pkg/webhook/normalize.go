package webhook

// Platform identifies which provider variant a webhook event came from.
type Platform string

const (
	PlatformPage  Platform = "page"
	PlatformPhoto Platform = "photo"
)

// Normalize dispatches raw to the variant-specific normalizer. It returns
// ErrEcho for a page-variant echo of the bridge's own outbound message —
// callers must treat that as "nothing to enqueue", not a failure.
func Normalize(platform Platform, raw []byte) (*NormalizedMessage, error) {
	switch platform {
	case PlatformPage:
		return normalizePage(raw)
	case PlatformPhoto:
		return normalizePhoto(raw)
	default:
		return nil, ErrUnrecognizedPayload
	}
}

// ExtractSender returns the (sender, recipient) participant ids so the
// Worker can resolve the owning SocialConnection before full normalization.
func ExtractSender(platform Platform, raw []byte) (senderID, recipientID string, err error) {
	switch platform {
	case PlatformPage:
		sender, recipient, _, err := ParsePageSender(raw)
		return sender, recipient, err
	case PlatformPhoto:
		return ParsePhotoSender(raw)
	default:
		return "", "", ErrUnrecognizedPayload
	}
}
