package core

// BaseInput provides common fields for all tool inputs.
// Tools embed this struct to automatically include ReAct thought support.
type BaseInput struct {
	// Thought is the agent's reasoning for the call. Required for write
	// tools, optional for reads.
	Thought string `json:"thought,omitempty"`
}

// AmountInput is the input of the vault write tools and previews.
//
// Amount is a decimal string ("12.5"), "max" for the whole available
// balance, or a percentage of it ("25%").
type AmountInput struct {
	BaseInput
	Amount string `json:"amount"`
}

// KindInput selects one of deposit, mint, redeem or withdraw.
type KindInput struct {
	BaseInput
	Kind string `json:"kind"`
}

// PreviewInput is the input of preview_vault_operation.
type PreviewInput struct {
	BaseInput
	Kind   string `json:"kind"`
	Amount string `json:"amount"`
}
