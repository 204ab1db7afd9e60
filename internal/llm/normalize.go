package llm

import (
	"encoding/json"
	"strings"
)

// NoFixText is stored when the model returned no usable fix.
const NoFixText = "No fix suggestion provided."

// normalizeFix coerces the model's suggestedFix field into display text.
// Models return either a string or an array of steps; arrays become a
// bullet list, anything empty becomes NoFixText.
func normalizeFix(raw json.RawMessage) string {
	if len(raw) == 0 {
		return NoFixText
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		if s == "" {
			return NoFixText
		}
		return s
	}

	var steps []string
	if err := json.Unmarshal(raw, &steps); err == nil {
		var kept []string
		for _, step := range steps {
			step = strings.TrimSpace(step)
			if step != "" {
				kept = append(kept, "- "+step)
			}
		}
		if len(kept) == 0 {
			return NoFixText
		}
		return strings.Join(kept, "\n")
	}

	return NoFixText
}
