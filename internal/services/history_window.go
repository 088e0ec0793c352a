package services

import (
	"context"
	"strings"

	"github.com/fellahtech/agribot/internal/providers/llm"
	"github.com/fellahtech/agribot/internal/utils"
	"github.com/sirupsen/logrus"
)

const (
	defaultTokenBudget = 6000
	keepRecentTurns    = 5
)

// HistoryWindow bounds the conversation memory sent to the model. Overflow
// is compressed into one synthetic system turn; a summarizer failure drops
// the overflow silently rather than blocking the pipeline.
type HistoryWindow struct {
	summarizer llm.Summarizer
	log        *logrus.Logger

	tokenBudget int
}

func NewHistoryWindow(summarizer llm.Summarizer, log *logrus.Logger) *HistoryWindow {
	return &HistoryWindow{
		summarizer:  summarizer,
		log:         log,
		tokenBudget: defaultTokenBudget,
	}
}

func (w *HistoryWindow) Trim(ctx context.Context, turns []llm.Turn) []llm.Turn {
	var total int
	for _, t := range turns {
		total += utils.EstimateTokens(t.Content)
	}
	if total <= w.tokenBudget {
		return turns
	}

	if len(turns) <= keepRecentTurns {
		return turns
	}
	recent := turns[len(turns)-keepRecentTurns:]
	older := turns[:len(turns)-keepRecentTurns]

	if w.summarizer == nil {
		return recent
	}

	var sb strings.Builder
	for _, t := range older {
		sb.WriteString(string(t.Role))
		sb.WriteString(": ")
		sb.WriteString(t.Content)
		sb.WriteString("\n")
	}

	summary, err := w.summarizer.Summarize(ctx, sb.String())
	if err != nil || summary == "" {
		if err != nil {
			w.log.WithError(err).Warn("history summarization failed, dropping older turns")
		}
		return recent
	}

	out := make([]llm.Turn, 0, keepRecentTurns+1)
	out = append(out, llm.Turn{
		Role:    llm.RoleSystem,
		Content: "Previous conversation summary: " + summary,
	})
	return append(out, recent...)
}
