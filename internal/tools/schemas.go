// Package tools defines the request and response shapes shared by the
// HTTP API and the MCP tool.
package tools

const (
	// ToolSummarizeDialogue is the name of the summarize_dialogue MCP tool
	ToolSummarizeDialogue = "summarize_dialogue"

	// StatusSuccess and StatusError are the values of a tool response Status.
	StatusSuccess = "success"
	StatusError   = "error"
)

// SummarizeRequest is the body of POST /summarize/.
// Dialogue is a pointer so that a missing field can be told apart from an
// empty string.
type SummarizeRequest struct {
	Dialogue *string `json:"dialogue"`
}

// SummarizeResponse is the body of a successful POST /summarize/.
type SummarizeResponse struct {
	Summary string `json:"summary"`
}

// SummarizeDialogueRequest defines the input schema for summarize_dialogue tool
type SummarizeDialogueRequest struct {
	// Dialogue is the conversation to summarize
	Dialogue string `json:"dialogue"`
}

// SummarizeDialogueResponse defines the output schema for summarize_dialogue tool
type SummarizeDialogueResponse struct {
	// Status indicates the result of the operation ("success" or "error")
	Status string `json:"status"`

	// Summary is the generated summary
	Summary string `json:"summary"`

	// Error contains an error message if Status is "error"
	Error string `json:"error,omitempty"`
}
