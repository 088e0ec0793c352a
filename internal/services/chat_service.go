package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fellahtech/agribot/internal/models"
	"github.com/fellahtech/agribot/internal/providers/llm"
	"github.com/fellahtech/agribot/internal/providers/search"
	"github.com/fellahtech/agribot/internal/providers/stt"
	mongorepo "github.com/fellahtech/agribot/internal/repositories/mongo"
	pgrepo "github.com/fellahtech/agribot/internal/repositories/postgres"
	"github.com/fellahtech/agribot/internal/utils"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const systemPrompt = `You are AgriBot, an agricultural consultant assistant for Algerian farmers.

Your capabilities:
- Provide personalized crop advice based on the farmer's soil data and past yields
- Answer questions about crop prices, weather, and agricultural best practices
- Communicate in Algerian Darja, French, or Modern Standard Arabic
- Explain agricultural concepts in simple, accessible language

Guidelines:
1. Always reference the farmer's actual field data when giving advice
2. If discussing prices, remind farmers about market volatility
3. For disease questions, give immediate actionable steps and recommend expert consultation
4. Keep responses concise (max 4-5 sentences)
5. When you don't know something, admit it honestly
6. Use metric units (hectares, kg, tons)
7. Prices should be in Algerian Dinar (DZD)
8. Always include practical next steps`

// apologyReply is the only failure text a farmer ever sees; raw errors stay
// in the logs.
const apologyReply = "عذراً، حدث خطأ. (Sorry, an error occurred.) يرجى المحاولة مرة أخرى."

const maxAudioBytes = 10 << 20

type MessageOptions struct {
	SessionID    string
	IsVoice      bool
	AudioURL     string
	DeviceType   string
	UserLocation *models.GeoPoint
}

type ResultMetadata struct {
	ResponseTimeMS int64 `json:"response_time_ms"`
	TokensUsed     int   `json:"tokens_used"`
}

// MessageResult is the envelope returned for every handled message.
// Success=false still carries a bot-shaped reply.
type MessageResult struct {
	Success         bool           `json:"success"`
	SessionID       string         `json:"session_id,omitempty"`
	Response        string         `json:"response"`
	Intent          string         `json:"intent,omitempty"`
	Confidence      float64        `json:"confidence,omitempty"`
	Sources         []search.Hit   `json:"sources"`
	SearchPerformed bool           `json:"search_performed"`
	UserContextUsed bool           `json:"user_context_used"`
	Metadata        ResultMetadata `json:"metadata"`
}

type SessionHistory struct {
	Session  models.ChatSession   `json:"session"`
	Messages []models.ChatMessage `json:"messages"`
}

type ChatService interface {
	// HandleMessage runs the full pipeline for one inbound message. It
	// returns an error only for invalid input or when the message could not
	// be accepted at all; downstream failures come back as a Success=false
	// envelope with the user's turn already persisted.
	HandleMessage(ctx context.Context, userID, text string, opts MessageOptions) (*MessageResult, error)
	ListSessions(ctx context.Context, userID string, limit int, beforeSessionID string) ([]models.ChatSession, error)
	SessionHistory(ctx context.Context, userID, sessionID string, afterSeq int64, limit int) (*SessionHistory, error)
	CloseSession(ctx context.Context, userID, sessionID, summary string) error
	DeleteSession(ctx context.Context, userID, sessionID string) error
}

type ChatDeps struct {
	Sessions mongorepo.SessionRepository
	Messages pgrepo.MessageRepo
	Contexts ContextService
	Searches SearchService
	Window   *HistoryWindow
	Model    llm.Provider
	Speech   stt.Provider // optional; nil disables voice turns
	Log      *logrus.Logger
}

type chatService struct {
	sessions mongorepo.SessionRepository
	messages pgrepo.MessageRepo
	contexts ContextService
	searches SearchService
	window   *HistoryWindow
	model    llm.Provider
	speech   stt.Provider
	log      *logrus.Logger

	audioFetch *http.Client
	now        func() time.Time
}

func NewChatService(d ChatDeps) ChatService {
	return &chatService{
		sessions:   d.Sessions,
		messages:   d.Messages,
		contexts:   d.Contexts,
		searches:   d.Searches,
		window:     d.Window,
		model:      d.Model,
		speech:     d.Speech,
		log:        d.Log,
		audioFetch: &http.Client{Timeout: 20 * time.Second},
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *chatService) HandleMessage(ctx context.Context, userID, text string, opts MessageOptions) (*MessageResult, error) {
	const op = "ChatService.HandleMessage"
	start := s.now()

	text = strings.TrimSpace(text)
	if userID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id is required", nil)
	}
	if text == "" && !(opts.IsVoice && opts.AudioURL != "") {
		return nil, utils.E(utils.CodeInvalidArgument, op, "message is required", nil)
	}

	if text == "" {
		transcript, err := s.transcribeVoice(ctx, opts.AudioURL)
		if err != nil {
			return nil, utils.E(utils.CodeUnavailable, op, "voice message could not be transcribed", err)
		}
		text = transcript
	}

	sess, err := s.resolveSession(ctx, userID, opts)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to resolve session", err)
	}

	// Persist the user's turn before any external call so a downstream
	// failure never loses it. Persistence writes ignore caller abandonment.
	persistCtx := context.WithoutCancel(ctx)
	userTurn := &models.ChatMessage{
		ID:          uuid.NewString(),
		SessionID:   sess.SessionID,
		UserID:      userID,
		SenderType:  models.SenderUser,
		MessageText: text,
		Language:    utils.DetectLanguage(text),
		CreatedAt:   s.now(),
	}
	if opts.AudioURL != "" {
		userTurn.AudioURL = &opts.AudioURL
	}
	if err := s.messages.Insert(persistCtx, userTurn); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to persist message", err)
	}

	res, err := s.respond(ctx, sess, userTurn, start)
	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"user_id":    userID,
			"session_id": sess.SessionID,
		}).Error("message pipeline failed")
		return s.failureEnvelope(sess.SessionID, start), nil
	}
	return res, nil
}

// resolveSession reuses a supplied active session, falls back to the user's
// newest active session, and creates one only when neither exists. Two
// racing first-messages may each create a session; that is accepted rather
// than locked against.
func (s *chatService) resolveSession(ctx context.Context, userID string, opts MessageOptions) (*models.ChatSession, error) {
	if opts.SessionID != "" {
		sess, err := s.sessions.GetBySessionID(ctx, opts.SessionID)
		if err == nil && sess.UserID == userID && sess.Status == models.SessionStatusActive {
			return sess, nil
		}
		if err != nil && !errors.Is(err, utils.ErrNotFound) {
			return nil, err
		}
	}

	sess, err := s.sessions.FindActiveByUser(ctx, userID)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, utils.ErrNotFound) {
		return nil, err
	}

	fresh := &models.ChatSession{
		SessionID:    uuid.NewString(),
		UserID:       userID,
		Status:       models.SessionStatusActive,
		DeviceType:   opts.DeviceType,
		UserLocation: opts.UserLocation,
		StartedAt:    s.now(),
	}
	if err := s.sessions.Create(ctx, fresh); err != nil {
		return nil, err
	}
	return fresh, nil
}

// respond runs steps 3-9 of the pipeline. Every external dependency in here
// degrades gracefully except the language model itself; its failure (and a
// failed bot-turn write) surfaces as an error for the caller to convert.
func (s *chatService) respond(ctx context.Context, sess *models.ChatSession, userTurn *models.ChatMessage, start time.Time) (*MessageResult, error) {
	uc, err := s.contexts.BuildUserContext(ctx, userTurn.UserID)
	if err != nil || uc == nil {
		uc = &models.UserContext{UserRegion: defaultRegion}
	}
	// A session GPS fix beats the country-wide default region.
	if uc.UserRegion == defaultRegion && sess.UserLocation != nil {
		if region := utils.NearestRegion(sess.UserLocation.Latitude, sess.UserLocation.Longitude); region != "" {
			uc.UserRegion = region
		}
	}

	recent, err := s.messages.RecentBySession(ctx, sess.SessionID, historyFetchLimit)
	if err != nil {
		s.log.WithError(err).Warn("history read failed, responding without it")
		recent = nil
	}
	history := make([]llm.Turn, 0, len(recent))
	for _, m := range recent {
		if m.ID == userTurn.ID {
			continue
		}
		role := llm.RoleUser
		if m.SenderType == models.SenderBot {
			role = llm.RoleAssistant
		}
		history = append(history, llm.Turn{Role: role, Content: m.MessageText})
	}
	history = s.window.Trim(ctx, history)

	intent, confidence := ClassifyIntent(userTurn.MessageText)

	var outcome *SearchOutcome
	searchPerformed := false
	if ShouldSearchWeb(intent, uc) {
		query := GenerateSearchQuery(userTurn.MessageText, uc)
		outcome = s.searches.Search(ctx, query)
		searchPerformed = true
	}

	turns := make([]llm.Turn, 0, len(history)+2)
	turns = append(turns, llm.Turn{
		Role:    llm.RoleSystem,
		Content: systemPrompt + "\n\n" + languageDirective(userTurn.Language),
	})
	turns = append(turns, history...)
	turns = append(turns, llm.Turn{
		Role:    llm.RoleUser,
		Content: buildPrompt(userTurn.MessageText, uc, outcome, intent),
	})

	completion, err := s.model.Generate(ctx, turns, llm.GenParams{
		MaxTokens:   500,
		Temperature: 0.7,
		TopP:        0.95,
	})
	if err != nil {
		return nil, fmt.Errorf("generate response: %w", err)
	}

	latency := s.now().Sub(start).Milliseconds()
	tokens := completion.TokensUsed

	botTurn := &models.ChatMessage{
		ID:              uuid.NewString(),
		SessionID:       sess.SessionID,
		UserID:          userTurn.UserID,
		SenderType:      models.SenderBot,
		MessageText:     completion.Text,
		Language:        userTurn.Language,
		CreatedAt:       s.now(),
		Intent:          &intent,
		ConfidenceScore: &confidence,
		UsedWebSearch:   searchPerformed,
		UsedUserHistory: uc.TotalPredictions > 0,
		ResponseTimeMS:  &latency,
		TokensUsed:      &tokens,
	}
	if outcome != nil && len(outcome.Results) > 0 {
		if snapshot, err := json.Marshal(outcome.Results); err == nil {
			botTurn.WebSources = snapshot
		}
	}

	persistCtx := context.WithoutCancel(ctx)
	if err := s.messages.Insert(persistCtx, botTurn); err != nil {
		return nil, fmt.Errorf("persist bot turn: %w", err)
	}

	if err := s.sessions.RecordActivity(persistCtx, sess.SessionID, 2, botTurn.CreatedAt); err != nil {
		s.log.WithError(err).WithField("session_id", sess.SessionID).Warn("session counter update failed")
	}

	sources := []search.Hit{}
	if outcome != nil && outcome.Results != nil {
		sources = outcome.Results
	}

	return &MessageResult{
		Success:         true,
		SessionID:       sess.SessionID,
		Response:        completion.Text,
		Intent:          intent,
		Confidence:      confidence,
		Sources:         sources,
		SearchPerformed: searchPerformed,
		UserContextUsed: uc.TotalPredictions > 0,
		Metadata:        ResultMetadata{ResponseTimeMS: latency, TokensUsed: tokens},
	}, nil
}

func (s *chatService) failureEnvelope(sessionID string, start time.Time) *MessageResult {
	return &MessageResult{
		Success:   false,
		SessionID: sessionID,
		Response:  apologyReply,
		Sources:   []search.Hit{},
		Metadata:  ResultMetadata{ResponseTimeMS: s.now().Sub(start).Milliseconds()},
	}
}

func (s *chatService) transcribeVoice(ctx context.Context, audioURL string) (string, error) {
	if s.speech == nil {
		return "", errors.New("speech provider not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, audioURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := s.audioFetch.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch audio: unexpected status %d", resp.StatusCode)
	}

	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes))
	if err != nil {
		return "", err
	}

	text, _, err := s.speech.Transcribe(ctx, audio, "")
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", errors.New("empty transcript")
	}
	return text, nil
}

func languageDirective(lang string) string {
	switch lang {
	case utils.LangFrench:
		return "The farmer wrote in French. Respond in French."
	case utils.LangArabic:
		return "The farmer wrote in Arabic. Respond in Arabic."
	default:
		return "The farmer wrote in Algerian Darja. Respond in Darja, using Arabic script or Latin transliteration to match the farmer."
	}
}

// buildPrompt merges the profile sentence, history digest, and top search
// results into the final user-role prompt.
func buildPrompt(text string, uc *models.UserContext, outcome *SearchOutcome, intent string) string {
	var sb strings.Builder

	if uc.TotalPredictions > 0 {
		sb.WriteString("Farmer's context:\n")
		sb.WriteString(profileSentence(uc))
		if uc.HistoryDigest != "" {
			sb.WriteString("\nHistory:\n")
			sb.WriteString(uc.HistoryDigest)
		}
		sb.WriteString("\n\n")
	} else {
		sb.WriteString("This farmer is new and has no prediction history yet. Provide general agricultural advice.\n\n")
	}

	if outcome != nil && len(outcome.Results) > 0 {
		sb.WriteString("Recent information from web search:\n")
		top := outcome.Results
		if len(top) > 3 {
			top = top[:3]
		}
		for i, hit := range top {
			snippet := hit.Snippet
			if snippet == "" {
				snippet = hit.Content
			}
			fmt.Fprintf(&sb, "%d. %s\n   %s\n   Source: %s\n", i+1, hit.Title, snippet, hit.URL)
		}
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "Farmer's question (intent: %s):\n%s", intent, text)
	return sb.String()
}

func profileSentence(uc *models.UserContext) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Location: %s\n", orDefault(uc.UserRegion, defaultRegion))
	if uc.PreferredSeason != "" {
		fmt.Fprintf(&sb, "Preferred season: %s\n", uc.PreferredSeason)
	}

	soil := uc.Soil
	if soil.AvgNitrogen != nil || soil.AvgPhosphorus != nil || soil.AvgPotassium != nil || soil.AvgPH != nil {
		sb.WriteString("Soil: ")
		sb.WriteString(orDefault(soilAveragesLine(soil), ""))
		sb.WriteString("\n")
	}

	if len(uc.CropHistory) > 0 {
		recent := uc.CropHistory
		if len(recent) > 3 {
			recent = recent[:3]
		}
		var parts []string
		for _, c := range recent {
			p := c.Crop
			if c.Yield != nil {
				p += fmt.Sprintf(" (%s %s)", fmtNum(*c.Yield, 0), orDefault(c.Unit, "t/ha"))
			}
			parts = append(parts, p)
		}
		fmt.Fprintf(&sb, "Recent crops: %s\n", strings.Join(parts, ", "))
	}
	return sb.String()
}

func (s *chatService) ListSessions(ctx context.Context, userID string, limit int, beforeSessionID string) ([]models.ChatSession, error) {
	const op = "ChatService.ListSessions"

	if userID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id is required", nil)
	}

	var before *time.Time
	if beforeSessionID != "" {
		cursor, err := s.sessions.GetBySessionID(ctx, beforeSessionID)
		if err != nil || cursor.UserID != userID {
			return nil, utils.E(utils.CodeNotFound, op, "cursor session not found", err)
		}
		before = &cursor.StartedAt
	}

	out, err := s.sessions.ListByUser(ctx, userID, limit, before)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list sessions", err)
	}
	return out, nil
}

func (s *chatService) SessionHistory(ctx context.Context, userID, sessionID string, afterSeq int64, limit int) (*SessionHistory, error) {
	const op = "ChatService.SessionHistory"

	sess, err := s.ownedSession(ctx, op, userID, sessionID)
	if err != nil {
		return nil, err
	}

	msgs, err := s.messages.ListBySession(ctx, sessionID, afterSeq, limit)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to load history", err)
	}
	return &SessionHistory{Session: *sess, Messages: msgs}, nil
}

func (s *chatService) CloseSession(ctx context.Context, userID, sessionID, summary string) error {
	const op = "ChatService.CloseSession"

	sess, err := s.ownedSession(ctx, op, userID, sessionID)
	if err != nil {
		return err
	}
	if sess.Status != models.SessionStatusActive {
		return utils.E(utils.CodeConflict, op, "session is not active", nil)
	}

	if err := s.sessions.Close(ctx, sessionID, s.now(), summary); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to close session", err)
	}
	return nil
}

func (s *chatService) DeleteSession(ctx context.Context, userID, sessionID string) error {
	const op = "ChatService.DeleteSession"

	if _, err := s.ownedSession(ctx, op, userID, sessionID); err != nil {
		return err
	}

	// Messages go first so a partial delete never orphans them silently.
	if err := s.messages.DeleteBySession(ctx, sessionID); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to delete session messages", err)
	}
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to delete session", err)
	}
	return nil
}

// ownedSession hides foreign sessions behind not-found rather than
// confirming their existence.
func (s *chatService) ownedSession(ctx context.Context, op, userID, sessionID string) (*models.ChatSession, error) {
	if userID == "" || sessionID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id and session_id are required", nil)
	}

	sess, err := s.sessions.GetBySessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "session not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get session", err)
	}
	if sess.UserID != userID {
		return nil, utils.E(utils.CodeNotFound, op, "session not found", nil)
	}
	return sess, nil
}
