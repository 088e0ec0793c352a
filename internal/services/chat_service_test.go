package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fellahtech/agribot/internal/logger"
	"github.com/fellahtech/agribot/internal/models"
	"github.com/fellahtech/agribot/internal/providers/llm"
	"github.com/fellahtech/agribot/internal/providers/search"
	"github.com/fellahtech/agribot/internal/utils"
)

type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*models.ChatSession
	created  int
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: map[string]*models.ChatSession{}}
}

func (f *fakeSessionRepo) Create(_ context.Context, s *models.ChatSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *s
	f.sessions[s.SessionID] = &cp
	f.created++
	return nil
}

func (f *fakeSessionRepo) GetBySessionID(_ context.Context, sessionID string) (*models.ChatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok {
		return nil, utils.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSessionRepo) FindActiveByUser(_ context.Context, userID string) (*models.ChatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var best *models.ChatSession
	for _, s := range f.sessions {
		if s.UserID != userID || s.Status != models.SessionStatusActive {
			continue
		}
		if best == nil || s.StartedAt.After(best.StartedAt) {
			best = s
		}
	}
	if best == nil {
		return nil, utils.ErrNotFound
	}
	cp := *best
	return &cp, nil
}

func (f *fakeSessionRepo) ListByUser(_ context.Context, userID string, limit int, before *time.Time) ([]models.ChatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ChatSession
	for _, s := range f.sessions {
		if s.UserID != userID {
			continue
		}
		if before != nil && !s.StartedAt.Before(*before) {
			continue
		}
		out = append(out, *s)
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].StartedAt.After(out[i].StartedAt) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeSessionRepo) Close(_ context.Context, sessionID string, endedAt time.Time, summary string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok {
		return utils.ErrNotFound
	}
	s.Status = models.SessionStatusClosed
	s.EndedAt = &endedAt
	s.Summary = summary
	return nil
}

func (f *fakeSessionRepo) Delete(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, sessionID)
	return nil
}

func (f *fakeSessionRepo) RecordActivity(_ context.Context, sessionID string, delta int64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok {
		return utils.ErrNotFound
	}
	s.TotalMessages += delta
	s.LastMessageAt = &at
	return nil
}

type fakeMessageRepo struct {
	mu   sync.Mutex
	msgs []models.ChatMessage
	seq  int64
}

func (f *fakeMessageRepo) Insert(_ context.Context, m *models.ChatMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	m.Seq = f.seq
	f.msgs = append(f.msgs, *m)
	return nil
}

func (f *fakeMessageRepo) RecentBySession(_ context.Context, sessionID string, n int) ([]models.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ChatMessage
	for _, m := range f.msgs {
		if m.SessionID == sessionID {
			out = append(out, m)
		}
	}
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return out, nil
}

func (f *fakeMessageRepo) ListBySession(_ context.Context, sessionID string, afterSeq int64, limit int) ([]models.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ChatMessage
	for _, m := range f.msgs {
		if m.SessionID == sessionID && m.Seq > afterSeq {
			out = append(out, m)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeMessageRepo) DeleteBySession(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.msgs[:0]
	for _, m := range f.msgs {
		if m.SessionID != sessionID {
			kept = append(kept, m)
		}
	}
	f.msgs = kept
	return nil
}

func (f *fakeMessageRepo) bySession(sessionID string) []models.ChatMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ChatMessage
	for _, m := range f.msgs {
		if m.SessionID == sessionID {
			out = append(out, m)
		}
	}
	return out
}

type fakeContextService struct {
	uc  *models.UserContext
	err error
}

func (f *fakeContextService) BuildUserContext(_ context.Context, _ string) (*models.UserContext, error) {
	return f.uc, f.err
}

type fakeSearchService struct {
	outcome *SearchOutcome
	queries []string
}

func (f *fakeSearchService) Search(_ context.Context, query string) *SearchOutcome {
	f.queries = append(f.queries, query)
	if f.outcome != nil {
		return f.outcome
	}
	return &SearchOutcome{Query: query}
}

type fakeLLM struct {
	text   string
	tokens int
	err    error

	turns  []llm.Turn
	params llm.GenParams
}

func (f *fakeLLM) Generate(_ context.Context, turns []llm.Turn, p llm.GenParams) (*llm.Completion, error) {
	f.turns = turns
	f.params = p
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Completion{Text: f.text, TokensUsed: f.tokens}, nil
}

func (f *fakeLLM) Close() error { return nil }

type chatFixture struct {
	svc      *chatService
	sessions *fakeSessionRepo
	messages *fakeMessageRepo
	searches *fakeSearchService
	model    *fakeLLM
}

func newChatFixture(uc *models.UserContext) *chatFixture {
	log := logger.New()
	f := &chatFixture{
		sessions: newFakeSessionRepo(),
		messages: &fakeMessageRepo{},
		searches: &fakeSearchService{outcome: &SearchOutcome{
			Query: "q",
			Results: []search.Hit{
				{Title: "Météo Alger", URL: "https://weather.com/dz", Snippet: "Pluie jeudi"},
			},
		}},
		model: &fakeLLM{text: "Il fera beau cette semaine.", tokens: 321},
	}

	f.svc = NewChatService(ChatDeps{
		Sessions: f.sessions,
		Messages: f.messages,
		Contexts: &fakeContextService{uc: uc},
		Searches: f.searches,
		Window:   NewHistoryWindow(nil, log),
		Model:    f.model,
		Log:      log,
	}).(*chatService)
	return f
}

func TestHandleMessageFrenchWeather(t *testing.T) {
	f := newChatFixture(&models.UserContext{
		UserRegion:       "Tiaret",
		TotalPredictions: 5,
		HistoryDigest:    "- 2026-02-01 | Tiaret | wheat 3 t/ha",
	})

	res, err := f.svc.HandleMessage(context.Background(), "farmer-1",
		"Quel temps fera-t-il cette semaine ?", MessageOptions{})
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	if !res.Success {
		t.Fatal("expected success envelope")
	}
	if res.Intent != IntentWeather || res.Confidence != 1.0 {
		t.Errorf("intent = %q/%v, want weather_query/1.0", res.Intent, res.Confidence)
	}
	if !res.SearchPerformed {
		t.Error("weather questions always search")
	}
	if !res.UserContextUsed {
		t.Error("profile with history must be marked as used")
	}
	if res.Response != "Il fera beau cette semaine." {
		t.Errorf("response = %q", res.Response)
	}
	if res.Metadata.TokensUsed != 321 {
		t.Errorf("tokens = %d, want 321", res.Metadata.TokensUsed)
	}
	if len(res.Sources) != 1 || res.Sources[0].Title != "Météo Alger" {
		t.Errorf("sources = %+v", res.Sources)
	}

	if len(f.searches.queries) != 1 {
		t.Fatalf("search calls = %d, want 1", len(f.searches.queries))
	}
	q := f.searches.queries[0]
	if !strings.Contains(q, "Tiaret") || !strings.Contains(q, "forecast") {
		t.Errorf("search query = %q, want region and forecast qualifier", q)
	}

	// one session created, both turns persisted, counter bumped by 2
	if f.sessions.created != 1 {
		t.Fatalf("sessions created = %d, want 1", f.sessions.created)
	}
	msgs := f.messages.bySession(res.SessionID)
	if len(msgs) != 2 {
		t.Fatalf("persisted messages = %d, want 2", len(msgs))
	}
	user, bot := msgs[0], msgs[1]
	if user.SenderType != models.SenderUser || user.Language != utils.LangFrench {
		t.Errorf("user turn = %+v", user)
	}
	if bot.SenderType != models.SenderBot || bot.Intent == nil || *bot.Intent != IntentWeather {
		t.Errorf("bot turn = %+v", bot)
	}
	if !bot.UsedWebSearch || !bot.UsedUserHistory {
		t.Error("bot turn must record search and history usage")
	}
	if len(bot.WebSources) == 0 {
		t.Error("bot turn must snapshot the sources")
	}
	sess, _ := f.sessions.GetBySessionID(context.Background(), res.SessionID)
	if sess.TotalMessages != 2 {
		t.Errorf("session TotalMessages = %d, want 2", sess.TotalMessages)
	}

	// prompt composition
	if len(f.model.turns) < 2 {
		t.Fatalf("model got %d turns", len(f.model.turns))
	}
	sys := f.model.turns[0]
	if sys.Role != llm.RoleSystem || !strings.Contains(sys.Content, "AgriBot") ||
		!strings.Contains(sys.Content, "Respond in French") {
		t.Errorf("system turn = %q", sys.Content)
	}
	final := f.model.turns[len(f.model.turns)-1]
	if !strings.Contains(final.Content, "Météo Alger") ||
		!strings.Contains(final.Content, "Quel temps fera-t-il") ||
		!strings.Contains(final.Content, "Tiaret") {
		t.Errorf("final prompt missing context:\n%s", final.Content)
	}
	if f.model.params.MaxTokens != 500 {
		t.Errorf("MaxTokens = %d, want 500", f.model.params.MaxTokens)
	}
}

func TestHandleMessageNewUserPrompt(t *testing.T) {
	f := newChatFixture(&models.UserContext{UserRegion: "Algeria"})

	res, err := f.svc.HandleMessage(context.Background(), "farmer-1", "salam", MessageOptions{})
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	if res.Intent != IntentGeneral || res.Confidence != 0.5 {
		t.Errorf("intent = %q/%v, want general_inquiry/0.5", res.Intent, res.Confidence)
	}
	if res.SearchPerformed {
		t.Error("general inquiries never search")
	}
	if len(f.searches.queries) != 0 {
		t.Error("search service must not be called")
	}
	if res.UserContextUsed {
		t.Error("empty profile must not be marked as used")
	}

	final := f.model.turns[len(f.model.turns)-1]
	if !strings.Contains(final.Content, "no prediction history") {
		t.Errorf("new-user prompt missing fallback line:\n%s", final.Content)
	}
}

func TestHandleMessageUsesSessionLocation(t *testing.T) {
	f := newChatFixture(&models.UserContext{UserRegion: "Algeria"})

	res, err := f.svc.HandleMessage(context.Background(), "farmer-1", "will it rain tomorrow", MessageOptions{
		UserLocation: &models.GeoPoint{Latitude: 35.37, Longitude: 1.32},
	})
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if !res.SearchPerformed {
		t.Fatal("weather question must search")
	}
	if q := f.searches.queries[0]; !strings.Contains(q, "Tiaret") {
		t.Errorf("search query = %q, want GPS-derived region Tiaret", q)
	}
}

func TestHandleMessageLLMFailureReturnsApology(t *testing.T) {
	f := newChatFixture(&models.UserContext{UserRegion: "Algeria"})
	f.model.err = errors.New("vertex: deadline exceeded")

	res, err := f.svc.HandleMessage(context.Background(), "farmer-1", "salam", MessageOptions{})
	if err != nil {
		t.Fatalf("pipeline failures must not surface as errors, got %v", err)
	}

	if res.Success {
		t.Fatal("expected failure envelope")
	}
	if res.Response != apologyReply {
		t.Errorf("response = %q, want apology", res.Response)
	}
	if res.SessionID == "" {
		t.Error("failure envelope still names the session")
	}

	// the farmer's turn is already on disk
	msgs := f.messages.bySession(res.SessionID)
	if len(msgs) != 1 || msgs[0].SenderType != models.SenderUser {
		t.Errorf("persisted messages = %+v, want just the user turn", msgs)
	}
}

func TestHandleMessageValidation(t *testing.T) {
	f := newChatFixture(&models.UserContext{})

	if _, err := f.svc.HandleMessage(context.Background(), "", "salam", MessageOptions{}); !utils.IsCode(err, utils.CodeInvalidArgument) {
		t.Errorf("missing user: err = %v", err)
	}
	if _, err := f.svc.HandleMessage(context.Background(), "farmer-1", "   ", MessageOptions{}); !utils.IsCode(err, utils.CodeInvalidArgument) {
		t.Errorf("blank text: err = %v", err)
	}
}

func TestHandleMessageReusesActiveSession(t *testing.T) {
	f := newChatFixture(&models.UserContext{})
	existing := &models.ChatSession{
		SessionID: "sess-1",
		UserID:    "farmer-1",
		Status:    models.SessionStatusActive,
		StartedAt: time.Now().UTC().Add(-time.Hour),
	}
	_ = f.sessions.Create(context.Background(), existing)
	f.sessions.created = 0

	res, err := f.svc.HandleMessage(context.Background(), "farmer-1", "salam", MessageOptions{})
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if res.SessionID != "sess-1" {
		t.Errorf("SessionID = %q, want reused sess-1", res.SessionID)
	}
	if f.sessions.created != 0 {
		t.Errorf("created %d sessions, want 0", f.sessions.created)
	}
}

func TestHandleMessageIgnoresForeignSuppliedSession(t *testing.T) {
	f := newChatFixture(&models.UserContext{})
	_ = f.sessions.Create(context.Background(), &models.ChatSession{
		SessionID: "sess-other",
		UserID:    "farmer-2",
		Status:    models.SessionStatusActive,
		StartedAt: time.Now().UTC(),
	})

	res, err := f.svc.HandleMessage(context.Background(), "farmer-1", "salam", MessageOptions{SessionID: "sess-other"})
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if res.SessionID == "sess-other" {
		t.Error("another farmer's session must never be written to")
	}
}

func TestCloseSession(t *testing.T) {
	f := newChatFixture(&models.UserContext{})
	_ = f.sessions.Create(context.Background(), &models.ChatSession{
		SessionID: "sess-1",
		UserID:    "farmer-1",
		Status:    models.SessionStatusActive,
		StartedAt: time.Now().UTC(),
	})

	if err := f.svc.CloseSession(context.Background(), "farmer-1", "sess-1", "talked about wheat"); err != nil {
		t.Fatalf("CloseSession: %v", err)
	}
	sess, _ := f.sessions.GetBySessionID(context.Background(), "sess-1")
	if sess.Status != models.SessionStatusClosed || sess.Summary != "talked about wheat" || sess.EndedAt == nil {
		t.Errorf("session after close = %+v", sess)
	}

	if err := f.svc.CloseSession(context.Background(), "farmer-1", "sess-1", ""); !utils.IsCode(err, utils.CodeConflict) {
		t.Errorf("second close: err = %v, want conflict", err)
	}
	if err := f.svc.CloseSession(context.Background(), "farmer-2", "sess-1", ""); !utils.IsCode(err, utils.CodeNotFound) {
		t.Errorf("foreign close: err = %v, want not found", err)
	}
}

func TestDeleteSessionRemovesMessages(t *testing.T) {
	f := newChatFixture(&models.UserContext{})
	_ = f.sessions.Create(context.Background(), &models.ChatSession{
		SessionID: "sess-1",
		UserID:    "farmer-1",
		Status:    models.SessionStatusActive,
		StartedAt: time.Now().UTC(),
	})
	_ = f.messages.Insert(context.Background(), &models.ChatMessage{ID: "m1", SessionID: "sess-1", UserID: "farmer-1"})
	_ = f.messages.Insert(context.Background(), &models.ChatMessage{ID: "m2", SessionID: "sess-1", UserID: "farmer-1"})

	if err := f.svc.DeleteSession(context.Background(), "farmer-1", "sess-1"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if got := f.messages.bySession("sess-1"); len(got) != 0 {
		t.Errorf("messages left after delete: %d", len(got))
	}
	if _, err := f.sessions.GetBySessionID(context.Background(), "sess-1"); !errors.Is(err, utils.ErrNotFound) {
		t.Error("session still exists after delete")
	}

	if err := f.svc.DeleteSession(context.Background(), "farmer-1", "sess-1"); !utils.IsCode(err, utils.CodeNotFound) {
		t.Errorf("deleting again: err = %v, want not found", err)
	}
}

func TestSessionHistoryOwnership(t *testing.T) {
	f := newChatFixture(&models.UserContext{})
	_ = f.sessions.Create(context.Background(), &models.ChatSession{
		SessionID: "sess-1",
		UserID:    "farmer-1",
		Status:    models.SessionStatusActive,
		StartedAt: time.Now().UTC(),
	})
	_ = f.messages.Insert(context.Background(), &models.ChatMessage{ID: "m1", SessionID: "sess-1", UserID: "farmer-1", MessageText: "salam"})
	_ = f.messages.Insert(context.Background(), &models.ChatMessage{ID: "m2", SessionID: "sess-1", UserID: "farmer-1", MessageText: "wa alaykum"})

	hist, err := f.svc.SessionHistory(context.Background(), "farmer-1", "sess-1", 0, 50)
	if err != nil {
		t.Fatalf("SessionHistory: %v", err)
	}
	if len(hist.Messages) != 2 || hist.Session.SessionID != "sess-1" {
		t.Errorf("history = %+v", hist)
	}

	after, err := f.svc.SessionHistory(context.Background(), "farmer-1", "sess-1", 1, 50)
	if err != nil {
		t.Fatalf("SessionHistory after seq: %v", err)
	}
	if len(after.Messages) != 1 || after.Messages[0].ID != "m2" {
		t.Errorf("cursor page = %+v", after.Messages)
	}

	if _, err := f.svc.SessionHistory(context.Background(), "farmer-2", "sess-1", 0, 50); !utils.IsCode(err, utils.CodeNotFound) {
		t.Errorf("foreign history: err = %v, want not found", err)
	}
}

func TestListSessionsNewestFirst(t *testing.T) {
	f := newChatFixture(&models.UserContext{})
	base := time.Now().UTC()
	for i, id := range []string{"s1", "s2", "s3"} {
		_ = f.sessions.Create(context.Background(), &models.ChatSession{
			SessionID: id,
			UserID:    "farmer-1",
			Status:    models.SessionStatusClosed,
			StartedAt: base.Add(time.Duration(i) * time.Hour),
		})
	}

	out, err := f.svc.ListSessions(context.Background(), "farmer-1", 10, "")
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(out) != 3 || out[0].SessionID != "s3" {
		t.Errorf("sessions = %+v", out)
	}

	page, err := f.svc.ListSessions(context.Background(), "farmer-1", 10, "s3")
	if err != nil {
		t.Fatalf("ListSessions before cursor: %v", err)
	}
	if len(page) != 2 || page[0].SessionID != "s2" {
		t.Errorf("cursor page = %+v", page)
	}

	if _, err := f.svc.ListSessions(context.Background(), "farmer-1", 10, "nope"); !utils.IsCode(err, utils.CodeNotFound) {
		t.Errorf("bad cursor: err = %v, want not found", err)
	}
}
