package webhook

import "fmt"

// mapAttachment renders a provider attachment into its canonical
// description, per the provider-type → canonical-type table: image/audio/
// video/file attachments keep their type and show the URL, location
// attachments show lat/long, and anything else renders unsupported.
func mapAttachment(providerType, url string, lat, long float64, hasCoords bool) Attachment {
	switch providerType {
	case "image", "audio", "video", "file":
		return Attachment{
			Type:        providerType,
			Description: fmt.Sprintf("[%s: %s]", capitalize(providerType), url),
		}
	case "location":
		if hasCoords {
			return Attachment{
				Type:        "location",
				Description: fmt.Sprintf("[Location: %g,%g]", lat, long),
			}
		}
		return Attachment{Type: "location", Description: "[Location: unknown]"}
	default:
		return Attachment{
			Type:        TypeUnsupported,
			Description: fmt.Sprintf("[Unsupported attachment: %s]", providerType),
		}
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] >= 'a' && b[0] <= 'z' {
		b[0] -= 'a' - 'A'
	}
	return string(b)
}
