package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/fellahtech/agribot/internal/cache"
	"github.com/fellahtech/agribot/internal/providers/search"
	"github.com/fellahtech/agribot/internal/utils"
	"github.com/sirupsen/logrus"
)

// Category TTLs: volatile facts expire fast, general agronomy keeps.
const (
	weatherTTL = 6 * time.Hour
	priceTTL   = 12 * time.Hour
	defaultTTL = 7 * 24 * time.Hour
)

var defaultSearchDomains = []string{
	"agriculture.dz",
	"fao.org",
	"weather.com",
	"accuweather.com",
}

// SearchOutcome is what the orchestrator consumes. A failed provider call is
// an outcome with empty results and Err set, never an error.
type SearchOutcome struct {
	Query   string       `json:"query"`
	Results []search.Hit `json:"results"`
	Answer  string       `json:"answer,omitempty"`
	Cached  bool         `json:"cached,omitempty"`
	Mock    bool         `json:"mock,omitempty"`
	Err     string       `json:"error,omitempty"`
}

// cachedSearch is the cache entry, keyed by the hash of the normalized
// query. ExpiresAt is checked logically even though redis also expires the
// key, so a persisted or clock-skewed entry past expiry reads as a miss.
type cachedSearch struct {
	Query     string       `json:"query"`
	Results   []search.Hit `json:"results"`
	Answer    string       `json:"answer,omitempty"`
	Mock      bool         `json:"mock,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	ExpiresAt time.Time    `json:"expires_at"`
	HitCount  int          `json:"hit_count"`
}

type SearchService interface {
	Search(ctx context.Context, query string) *SearchOutcome
}

type searchService struct {
	cache    cache.Cache
	provider search.Provider
	log      *logrus.Logger

	maxResults int
	domains    []string
	now        func() time.Time
}

func NewSearchService(c cache.Cache, p search.Provider, log *logrus.Logger) SearchService {
	return &searchService{
		cache:      c,
		provider:   p,
		log:        log,
		maxResults: 5,
		domains:    defaultSearchDomains,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *searchService) Search(ctx context.Context, query string) *SearchOutcome {
	norm := utils.NormalizeQuery(query)
	key := "search:" + hashQuery(norm)
	now := s.now()

	var entry cachedSearch
	hit, err := s.cache.GetJSON(ctx, key, &entry)
	if err != nil {
		// cache store down: degrade to a plain provider call
		s.log.WithError(err).Warn("search cache read failed")
		hit = false
	}

	if hit && now.Before(entry.ExpiresAt) {
		entry.HitCount++
		// Rewrite with the remaining TTL so reuse never extends the entry.
		if err := s.cache.SetJSON(ctx, key, entry, entry.ExpiresAt.Sub(now)); err != nil {
			s.log.WithError(err).Warn("search cache hit-count update failed")
		}
		return &SearchOutcome{
			Query:   entry.Query,
			Results: entry.Results,
			Answer:  entry.Answer,
			Mock:    entry.Mock,
			Cached:  true,
		}
	}

	resp, err := s.provider.Search(ctx, query, search.Options{
		Topic:          "agricultural",
		MaxResults:     s.maxResults,
		IncludeDomains: s.domains,
	})
	if err != nil {
		s.log.WithError(err).WithField("query", query).Warn("search provider failed")
		return &SearchOutcome{Query: query, Err: err.Error()}
	}

	if len(resp.Results) > 0 {
		ttl := ttlForQuery(norm)
		fresh := cachedSearch{
			Query:     query,
			Results:   resp.Results,
			Answer:    resp.Answer,
			Mock:      resp.Mock,
			CreatedAt: now,
			ExpiresAt: now.Add(ttl),
		}
		// Upsert: any stale entry under this hash is replaced whole.
		if err := s.cache.SetJSON(ctx, key, fresh, ttl); err != nil {
			s.log.WithError(err).Warn("search cache write failed")
		}
	}

	return &SearchOutcome{
		Query:   query,
		Results: resp.Results,
		Answer:  resp.Answer,
		Mock:    resp.Mock,
	}
}

func hashQuery(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

func ttlForQuery(normalized string) time.Duration {
	switch {
	case weatherFamily.MatchString(normalized):
		return weatherTTL
	case priceFamily.MatchString(normalized):
		return priceTTL
	default:
		return defaultTTL
	}
}
