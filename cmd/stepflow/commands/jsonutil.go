package commands

import (
	"encoding/json"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// decodeModelJSON unmarshals a model reply into v, stripping code fences
// and attempting to repair malformed JSON before giving up.
func decodeModelJSON(reply string, v any) error {
	cleaned := stripFence(reply)

	if err := json.Unmarshal([]byte(cleaned), v); err == nil {
		return nil
	}

	fixed, err := jsonrepair.JSONRepair(cleaned)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(fixed), v)
}

// stripFence removes a ```json ... ``` (or plain ```) wrapper if present.
func stripFence(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		// Drop the language tag line.
		trimmed = trimmed[idx+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
