package webhook

import (
	"encoding/json"
	"fmt"
)

type pageEnvelope struct {
	Object string     `json:"object"`
	Entry  []pageEntry `json:"entry"`
}

type pageEntry struct {
	Messaging []pageMessagingEvent `json:"messaging"`
}

type pageMessagingEvent struct {
	Sender    pageParticipant `json:"sender"`
	Recipient pageParticipant `json:"recipient"`
	Timestamp int64           `json:"timestamp"`
	Message   *pageMessage    `json:"message,omitempty"`
	Postback  *pagePostback   `json:"postback,omitempty"`
}

type pageParticipant struct {
	ID string `json:"id"`
}

type pageMessage struct {
	MID         string               `json:"mid"`
	Text        string               `json:"text"`
	IsEcho      bool                 `json:"is_echo"`
	QuickReply  *pageQuickReply      `json:"quick_reply,omitempty"`
	Attachments []pageAttachmentJSON `json:"attachments,omitempty"`
}

type pageQuickReply struct {
	Payload string `json:"payload"`
}

type pagePostback struct {
	Payload string `json:"payload"`
	Title   string `json:"title"`
}

type pageAttachmentJSON struct {
	Type    string `json:"type"`
	Payload struct {
		URL       string  `json:"url"`
		Latitude  float64 `json:"lat"`
		Longitude float64 `json:"long"`
	} `json:"payload"`
}

// ParsePageSender extracts the first messaging event's sender/recipient ids
// without fully normalizing — the Worker's connection-resolution stage
// needs these before it has loaded the SocialConnection row.
func ParsePageSender(raw []byte) (senderID, recipientID string, eventTS int64, err error) {
	var env pageEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", "", 0, fmt.Errorf("%w: %v", ErrUnrecognizedPayload, err)
	}
	if len(env.Entry) == 0 || len(env.Entry[0].Messaging) == 0 {
		return "", "", 0, ErrUnrecognizedPayload
	}
	evt := env.Entry[0].Messaging[0]
	return evt.Sender.ID, evt.Recipient.ID, evt.Timestamp, nil
}

func normalizePage(raw []byte) (*NormalizedMessage, error) {
	var env pageEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnrecognizedPayload, err)
	}
	if len(env.Entry) == 0 || len(env.Entry[0].Messaging) == 0 {
		return nil, ErrUnrecognizedPayload
	}

	evt := env.Entry[0].Messaging[0]

	if evt.Message != nil && evt.Message.IsEcho {
		return nil, ErrEcho
	}

	if evt.Message != nil && evt.Message.QuickReply != nil {
		return &NormalizedMessage{
			Text: evt.Message.QuickReply.Payload,
			Type: TypeQuickReply,
		}, nil
	}

	if evt.Postback != nil {
		text := evt.Postback.Payload
		if text == "" {
			text = evt.Postback.Title
		}
		return &NormalizedMessage{Text: text, Type: TypePostback}, nil
	}

	if evt.Message != nil {
		attachments := make([]Attachment, 0, len(evt.Message.Attachments))
		for _, a := range evt.Message.Attachments {
			hasCoords := a.Type == "location"
			attachments = append(attachments, mapAttachment(a.Type, a.Payload.URL, a.Payload.Latitude, a.Payload.Longitude, hasCoords))
		}

		text := normalizeText(evt.Message.Text)
		if text == "" && len(attachments) > 0 {
			text = attachments[0].Description
		}
		if text == "" {
			text = "[Unsupported page message type]"
		}

		return &NormalizedMessage{
			Text:        text,
			Type:        TypeText,
			Attachments: attachments,
		}, nil
	}

	return nil, ErrUnrecognizedPayload
}
