package types

// StopReason classifies why a model turn ended.
type StopReason string

const (
	StopEndTurn         StopReason = "end_turn"
	StopMaxTokens       StopReason = "max_tokens"
	StopContentFiltered StopReason = "content_filtered"
	StopToolUse         StopReason = "tool_use"
)

// Usage carries cache-adjusted token accounting for one model round trip.
// InputTokens excludes tokens served from the prompt cache (those are billed
// separately as CacheReadTokens); TotalTokens includes cache writes.
type Usage struct {
	InputTokens      int `json:"input_tokens"`
	OutputTokens     int `json:"output_tokens"`
	TotalTokens      int `json:"total_tokens"`
	CacheReadTokens  int `json:"cache_read_tokens,omitempty"`
	CacheWriteTokens int `json:"cache_write_tokens,omitempty"`
}
