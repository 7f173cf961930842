package webhook

import (
	"encoding/json"
	"fmt"
)

// ExtractMessageID returns the provider-assigned message id for the first
// message in raw, so the Worker can stamp Message.ExternalID without a
// second full normalization pass. It mirrors ParsePageSender/ParsePhotoSender
// and returns ErrUnrecognizedPayload for anything without one, such as a
// postback; a quick-reply tap returns the mid of the message carrying it.
func ExtractMessageID(platform Platform, raw []byte) (string, error) {
	switch platform {
	case PlatformPage:
		var env pageEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return "", fmt.Errorf("%w: %v", ErrUnrecognizedPayload, err)
		}
		if len(env.Entry) == 0 || len(env.Entry[0].Messaging) == 0 {
			return "", ErrUnrecognizedPayload
		}
		msg := env.Entry[0].Messaging[0].Message
		if msg == nil || msg.MID == "" {
			return "", ErrUnrecognizedPayload
		}
		return msg.MID, nil
	case PlatformPhoto:
		var env photoEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return "", fmt.Errorf("%w: %v", ErrUnrecognizedPayload, err)
		}
		value, ok := findMessagesChange(env)
		if !ok || len(value.Messages) == 0 {
			return "", ErrUnrecognizedPayload
		}
		if value.Messages[0].ID == "" {
			return "", ErrUnrecognizedPayload
		}
		return value.Messages[0].ID, nil
	default:
		return "", ErrUnrecognizedPayload
	}
}
