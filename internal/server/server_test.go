package server

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/localrivet/dialoguesum/internal/tools"
)

var testError = errors.New("test error")

// MockSummarizer implements the summarizer.Summarizer interface for testing
type MockSummarizer struct {
	Summaries   map[string]string
	Err         error
	ReturnError bool

	mu    sync.Mutex
	calls []string
}

func (m *MockSummarizer) Initialize(ctx context.Context) error {
	if m.ReturnError {
		return testError
	}
	return nil
}

func (m *MockSummarizer) Summarize(ctx context.Context, dialogue string) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, dialogue)
	m.mu.Unlock()

	if m.Err != nil {
		return "", m.Err
	}
	if m.ReturnError {
		return "", testError
	}

	if summary, exists := m.Summaries[dialogue]; exists {
		return summary, nil
	}

	// Default behavior: first 50 chars
	if len(dialogue) > 50 {
		return dialogue[:50], nil
	}
	return dialogue, nil
}

func (m *MockSummarizer) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func TestSummarizeDialogueTool(t *testing.T) {
	mockSummarizer := &MockSummarizer{
		Summaries: map[string]string{
			"Amanda: I baked cookies. Do you want some?\nJerry: Sure!": "Amanda baked cookies and will bring Jerry some.",
		},
	}

	server := NewMCPToolServer(mockSummarizer, nil, nil)
	if err := server.Initialize(); err != nil {
		t.Fatalf("Failed to initialize server: %v", err)
	}

	req := tools.SummarizeDialogueRequest{
		Dialogue: "Amanda: I baked cookies. Do you want some?\nJerry: Sure!",
	}

	response, err := server.handleSummarizeDialogue(nil, req)
	if err != nil {
		t.Fatalf("Handler returned error: %v", err)
	}

	if response.Status != tools.StatusSuccess {
		t.Errorf("Expected status 'success', got '%s'", response.Status)
	}
	if response.Summary != "Amanda baked cookies and will bring Jerry some." {
		t.Errorf("Unexpected summary '%s'", response.Summary)
	}
	if response.Error != "" {
		t.Errorf("Expected no error, got '%s'", response.Error)
	}
}

func TestSummarizeDialogueToolBlank(t *testing.T) {
	mockSummarizer := &MockSummarizer{}
	server := NewMCPToolServer(mockSummarizer, nil, nil)
	if err := server.Initialize(); err != nil {
		t.Fatalf("Failed to initialize server: %v", err)
	}

	response, err := server.handleSummarizeDialogue(nil, tools.SummarizeDialogueRequest{Dialogue: " \n\t "})
	if err != nil {
		t.Fatalf("Handler returned error: %v", err)
	}

	if response.Status != tools.StatusError {
		t.Errorf("Expected status 'error', got '%s'", response.Status)
	}
	if !strings.Contains(response.Error, "dialogue is empty") {
		t.Errorf("Unexpected error message '%s'", response.Error)
	}
	if len(mockSummarizer.Calls()) != 0 {
		t.Error("Summarizer should not be called for blank dialogue")
	}
}

func TestSummarizeDialogueToolError(t *testing.T) {
	mockSummarizer := &MockSummarizer{ReturnError: true}
	server := NewMCPToolServer(mockSummarizer, nil, nil)
	if err := server.Initialize(); err != nil {
		t.Fatalf("Failed to initialize server: %v", err)
	}

	response, err := server.handleSummarizeDialogue(nil, tools.SummarizeDialogueRequest{Dialogue: "A: hi"})
	if err != nil {
		t.Fatalf("Handler returned error: %v", err)
	}

	if response.Status != tools.StatusError {
		t.Errorf("Expected status 'error', got '%s'", response.Status)
	}
	if response.Error != testError.Error() {
		t.Errorf("Expected error '%s', got '%s'", testError, response.Error)
	}
	if response.Summary != "" {
		t.Errorf("Expected empty summary, got '%s'", response.Summary)
	}
}

// blockingSummarizer waits for its context and reports why it ended.
type blockingSummarizer struct{}

func (blockingSummarizer) Initialize(ctx context.Context) error { return nil }

func (blockingSummarizer) Summarize(ctx context.Context, dialogue string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestSummarizeDialogueToolFollowsRequestCancellation(t *testing.T) {
	server := NewMCPToolServer(blockingSummarizer{}, nil, nil)

	reqCtx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan tools.SummarizeDialogueResponse, 1)
	go func() {
		response, _ := server.summarizeDialogue(reqCtx, tools.SummarizeDialogueRequest{Dialogue: "A: hi\nB: hello"})
		done <- response
	}()

	select {
	case response := <-done:
		if response.Status != tools.StatusError {
			t.Errorf("Expected status %q, got %q", tools.StatusError, response.Status)
		}
		if !strings.Contains(response.Error, context.Canceled.Error()) {
			t.Errorf("Expected cancellation error, got %q", response.Error)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Tool call did not stop after the request was canceled")
	}
}

func TestSummarizeDialogueToolCallTimeout(t *testing.T) {
	server := NewMCPToolServer(blockingSummarizer{}, nil, nil).WithCallTimeout(20 * time.Millisecond)

	response, err := server.handleSummarizeDialogue(nil, tools.SummarizeDialogueRequest{Dialogue: "A: hi"})
	if err != nil {
		t.Fatalf("Handler returned error: %v", err)
	}
	if !strings.Contains(response.Error, context.DeadlineExceeded.Error()) {
		t.Errorf("Expected deadline error, got %q", response.Error)
	}
}

func TestInitializeWithoutSummarizer(t *testing.T) {
	server := NewMCPToolServer(nil, nil, nil)
	if err := server.Initialize(); err == nil {
		t.Error("Expected error when summarizer is nil")
	}
}

func TestStartBeforeInitialize(t *testing.T) {
	server := NewMCPToolServer(&MockSummarizer{}, nil, nil)
	err := server.Start()
	if !errors.Is(err, ErrServerNotInitialized) {
		t.Errorf("Expected ErrServerNotInitialized, got %v", err)
	}
}
