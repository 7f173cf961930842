package webhook

import (
	"encoding/json"
	"fmt"
)

type photoEnvelope struct {
	Object string       `json:"object"`
	Entry  []photoEntry `json:"entry"`
}

type photoEntry struct {
	Changes []photoChange `json:"changes"`
}

type photoChange struct {
	Field string     `json:"field"`
	Value photoValue `json:"value"`
}

type photoValue struct {
	Sender    pageParticipant `json:"sender"`
	Recipient pageParticipant `json:"recipient"`
	Messages  []photoMessage  `json:"messages"`
}

type photoMessage struct {
	ID   string `json:"id"`
	Text struct {
		Body string `json:"body"`
	} `json:"text"`
	Attachments []pageAttachmentJSON `json:"attachments,omitempty"`
}

func findMessagesChange(env photoEnvelope) (*photoValue, bool) {
	if len(env.Entry) == 0 {
		return nil, false
	}
	for _, change := range env.Entry[0].Changes {
		if change.Field == "messages" {
			return &change.Value, true
		}
	}
	return nil, false
}

// ParsePhotoSender mirrors ParsePageSender for the photo-sharing variant.
func ParsePhotoSender(raw []byte) (senderID, recipientID string, err error) {
	var env photoEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrUnrecognizedPayload, err)
	}
	value, ok := findMessagesChange(env)
	if !ok {
		return "", "", ErrUnrecognizedPayload
	}
	return value.Sender.ID, value.Recipient.ID, nil
}

func normalizePhoto(raw []byte) (*NormalizedMessage, error) {
	var env photoEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnrecognizedPayload, err)
	}

	value, ok := findMessagesChange(env)
	if !ok || len(value.Messages) == 0 {
		return nil, ErrUnrecognizedPayload
	}

	msg := value.Messages[0]

	attachments := make([]Attachment, 0, len(msg.Attachments))
	for _, a := range msg.Attachments {
		hasCoords := a.Type == "location"
		attachments = append(attachments, mapAttachment(a.Type, a.Payload.URL, a.Payload.Latitude, a.Payload.Longitude, hasCoords))
	}

	text := normalizeText(msg.Text.Body)
	if text == "" && len(attachments) > 0 {
		text = attachments[0].Description
	}
	if text == "" {
		text = "[Unsupported photo message type]"
	}

	return &NormalizedMessage{
		Text:        text,
		Type:        TypeText,
		Attachments: attachments,
	}, nil
}
