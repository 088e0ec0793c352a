package llm

import "context"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one role-tagged entry of the prompt context.
type Turn struct {
	Role    Role
	Content string
}

type GenParams struct {
	MaxTokens   int
	Temperature float32
	TopP        float32
}

type Completion struct {
	Text       string
	TokensUsed int // 0 when the provider reports no usage
}

type Provider interface {
	Generate(ctx context.Context, turns []Turn, p GenParams) (*Completion, error)
	Close() error
}

// Summarizer compresses a block of text into a short summary. Best-effort:
// callers must tolerate failure.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}
