package privacy

// DefaultMaxPromptChars bounds the total snippet payload sent to a model.
const DefaultMaxPromptChars = 24000

const truncationMarker = "\n[truncated]"

// Budget tracks remaining prompt capacity in characters.
type Budget struct {
	remaining int
}

// NewBudget creates a budget of maxChars (DefaultMaxPromptChars if <= 0).
func NewBudget(maxChars int) *Budget {
	if maxChars <= 0 {
		maxChars = DefaultMaxPromptChars
	}
	return &Budget{remaining: maxChars}
}

// Take consumes up to len(text) characters. When the text does not fit it
// is cut at the remaining capacity and marked as truncated; an exhausted
// budget returns the empty string.
func (b *Budget) Take(text string) string {
	if b.remaining <= 0 {
		return ""
	}
	if len(text) <= b.remaining {
		b.remaining -= len(text)
		return text
	}
	cut := text[:b.remaining]
	b.remaining = 0
	return cut + truncationMarker
}

// Remaining returns the unconsumed capacity.
func (b *Budget) Remaining() int {
	return b.remaining
}
