package worker

import (
	"regexp"
	"strings"

	"github.com/CRT-AUTO/bridge-core/pkg/aiclient"
)

// setMarker matches an inline [[SET:key=value]] directive the AI runtime
// may embed in a text record instead of (or alongside) a dedicated
// set-variables record.
var setMarker = regexp.MustCompile(`\[\[SET:([A-Za-z0-9_.]+)=([^\]]*)\]\]`)

// extractReply flattens the AI runtime's response array into the text to
// send back, any choice labels to render as quick replies, and the
// variables to merge into session context — both from explicit
// set-variables records and from inline [[SET:...]] markers in text.
func extractReply(items []aiclient.ResponseItem) (text string, choices []string, setVars map[string]any) {
	setVars = map[string]any{}
	var textParts []string

	for _, item := range items {
		switch item.Type {
		case aiclient.ItemText:
			clean, vars := stripSetMarkers(item.Text)
			for k, v := range vars {
				setVars[k] = v
			}
			if clean != "" {
				textParts = append(textParts, clean)
			}
		case aiclient.ItemChoice:
			choices = append(choices, item.Choices...)
		case aiclient.ItemSetVariables:
			for k, v := range item.SetVariables {
				setVars[k] = v
			}
		case aiclient.ItemVisual:
			if item.VisualURL != "" {
				textParts = append(textParts, item.VisualURL)
			}
		}
	}

	text = strings.Join(textParts, "\n")
	if text == "" {
		text = "[No response generated]"
	}
	return text, choices, setVars
}

func stripSetMarkers(text string) (string, map[string]string) {
	vars := map[string]string{}
	clean := setMarker.ReplaceAllStringFunc(text, func(m string) string {
		groups := setMarker.FindStringSubmatch(m)
		if len(groups) == 3 {
			vars[groups[1]] = groups[2]
		}
		return ""
	})
	return strings.TrimSpace(clean), vars
}
