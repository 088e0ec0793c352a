package llm

import (
	"context"
	"strings"

	vertexgenai "cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/iterator"
)

type VertexGemini struct {
	client    *vertexgenai.Client
	modelName string
}

func NewVertexGemini(ctx context.Context, projectID, location, modelName string) (*VertexGemini, error) {
	c, err := vertexgenai.NewClient(ctx, projectID, location)
	if err != nil {
		return nil, err
	}

	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}
	return &VertexGemini{client: c, modelName: modelName}, nil
}

func (v *VertexGemini) Close() error { return v.client.Close() }

func (v *VertexGemini) Generate(ctx context.Context, turns []Turn, p GenParams) (*Completion, error) {
	// Fresh model handle per call: SystemInstruction and GenerationConfig
	// are per-request here and the handle itself is cheap.
	model := v.client.GenerativeModel(v.modelName)

	if p.MaxTokens > 0 {
		model.GenerationConfig.SetMaxOutputTokens(int32(p.MaxTokens))
	}
	if p.Temperature > 0 {
		model.GenerationConfig.SetTemperature(p.Temperature)
	}
	if p.TopP > 0 {
		model.GenerationConfig.SetTopP(p.TopP)
	}

	var system []string
	var history []*vertexgenai.Content
	for _, t := range turns {
		switch t.Role {
		case RoleSystem:
			system = append(system, t.Content)
		case RoleAssistant:
			history = append(history, &vertexgenai.Content{
				Role:  "model",
				Parts: []vertexgenai.Part{vertexgenai.Text(t.Content)},
			})
		default:
			history = append(history, &vertexgenai.Content{
				Role:  "user",
				Parts: []vertexgenai.Part{vertexgenai.Text(t.Content)},
			})
		}
	}
	if len(system) > 0 {
		model.SystemInstruction = &vertexgenai.Content{
			Parts: []vertexgenai.Part{vertexgenai.Text(strings.Join(system, "\n\n"))},
		}
	}
	if len(history) == 0 {
		history = []*vertexgenai.Content{{
			Role:  "user",
			Parts: []vertexgenai.Part{vertexgenai.Text("")},
		}}
	}

	last := history[len(history)-1]
	cs := model.StartChat()
	cs.History = history[:len(history)-1]

	var sb strings.Builder
	var tokens int

	it := cs.SendMessageStream(ctx, last.Parts...)
	for {
		resp, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}

		if resp.UsageMetadata != nil {
			tokens = int(resp.UsageMetadata.TotalTokenCount)
		}
		for _, cand := range resp.Candidates {
			if cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				if t, ok := part.(vertexgenai.Text); ok {
					sb.WriteString(string(t))
				}
			}
		}
	}

	return &Completion{Text: strings.TrimSpace(sb.String()), TokensUsed: tokens}, nil
}

// Summarize implements Summarizer on the same client.
func (v *VertexGemini) Summarize(ctx context.Context, text string) (string, error) {
	model := v.client.GenerativeModel(v.modelName)
	model.GenerationConfig.SetMaxOutputTokens(150)

	prompt := "Summarize the following conversation in at most four sentences, keeping crop names, prices, and advice already given:\n\n" + text

	resp, err := model.GenerateContent(ctx, vertexgenai.Text(prompt))
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(vertexgenai.Text); ok {
				sb.WriteString(string(t))
			}
		}
	}
	return strings.TrimSpace(sb.String()), nil
}
