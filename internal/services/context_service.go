package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fellahtech/agribot/internal/models"
	pgrepo "github.com/fellahtech/agribot/internal/repositories/postgres"
	"github.com/fellahtech/agribot/internal/utils"
	"github.com/sirupsen/logrus"
)

const (
	contextFreshFor     = 24 * time.Hour
	historyFetchLimit   = 10
	digestDetailRecords = 3
	defaultRegion       = "Algeria"
)

// ContextService builds the derived farmer profile injected into prompts.
type ContextService interface {
	BuildUserContext(ctx context.Context, userID string) (*models.UserContext, error)
}

type contextService struct {
	history    pgrepo.HistoryRepo
	cacheRepo  pgrepo.ContextCacheRepo
	log        *logrus.Logger
	now        func() time.Time
	fetchLimit int
}

func NewContextService(history pgrepo.HistoryRepo, cacheRepo pgrepo.ContextCacheRepo, log *logrus.Logger) ContextService {
	return &contextService{
		history:    history,
		cacheRepo:  cacheRepo,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
		fetchLimit: historyFetchLimit,
	}
}

// BuildUserContext returns the cached profile while it is fresh (<24h),
// otherwise rebuilds it from the prediction history. An empty profile is a
// valid terminal state for users with no history, never an error.
func (s *contextService) BuildUserContext(ctx context.Context, userID string) (*models.UserContext, error) {
	const op = "ContextService.BuildUserContext"

	if userID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id is required", nil)
	}

	now := s.now()

	row, err := s.cacheRepo.GetByUserID(ctx, userID)
	if err != nil && !errors.Is(err, utils.ErrNotFound) {
		s.log.WithError(err).WithField("user_id", userID).Warn("context cache read failed")
	}
	if err == nil && now.Sub(row.LastUpdated) < contextFreshFor {
		return s.fromCacheRow(row), nil
	}

	records, err := s.history.RecentOutcomes(ctx, userID, s.fetchLimit)
	if err != nil {
		s.log.WithError(err).WithField("user_id", userID).Error("primary history read failed")
		records = nil
	}
	if len(records) == 0 {
		legacy, err := s.history.LegacyRecent(ctx, userID, s.fetchLimit)
		if err != nil {
			s.log.WithError(err).WithField("user_id", userID).Error("legacy history read failed")
		}
		records = legacy
	}

	if len(records) == 0 {
		return &models.UserContext{UserRegion: defaultRegion}, nil
	}

	uc := aggregateRecords(records)

	// Repopulate the cache off the request path. The row is snapshotted
	// before returning so the goroutine never reads a profile the caller may
	// mutate; the cached row stays a pure recomputation of the history.
	// Last write wins; a failure only costs the next caller a rebuild.
	row, rowErr := buildCacheRow(userID, uc, now)
	if rowErr != nil {
		s.log.WithError(rowErr).WithField("user_id", userID).Error("context cache encode failed")
		return uc, nil
	}
	bg := context.WithoutCancel(ctx)
	go func() {
		if err := s.cacheRepo.Upsert(bg, row); err != nil {
			s.log.WithError(err).WithField("user_id", userID).Error("context cache update failed")
		}
	}()

	return uc, nil
}

func (s *contextService) fromCacheRow(row *models.ContextCache) *models.UserContext {
	uc := &models.UserContext{
		UserRegion:      row.PreferredRegion,
		PreferredSeason: row.PreferredSeason,
		HistoryDigest:   row.HistoryDigest,
		Cached:          true,
	}
	if uc.UserRegion == "" {
		uc.UserRegion = defaultRegion
	}

	if len(row.RecentCrops) > 0 {
		if err := json.Unmarshal(row.RecentCrops, &uc.CropHistory); err != nil {
			s.log.WithError(err).Warn("cached recent_crops unreadable")
		}
	}
	if len(row.AvgSoilMetrics) > 0 {
		if err := json.Unmarshal(row.AvgSoilMetrics, &uc.Soil); err != nil {
			s.log.WithError(err).Warn("cached avg_soil_metrics unreadable")
		}
	}
	uc.TotalPredictions = len(uc.CropHistory)
	return uc
}

// buildCacheRow deep-copies the profile into its persisted form.
func buildCacheRow(userID string, uc *models.UserContext, at time.Time) (*models.ContextCache, error) {
	crops, err := json.Marshal(uc.CropHistory)
	if err != nil {
		return nil, err
	}
	soil, err := json.Marshal(uc.Soil)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(uc.CropHistory))
	for _, c := range uc.CropHistory {
		if c.Crop != "" {
			names = append(names, c.Crop)
		}
	}

	return &models.ContextCache{
		UserID:          userID,
		RecentCrops:     crops,
		AvgSoilMetrics:  soil,
		CropNames:       names,
		PreferredRegion: uc.UserRegion,
		PreferredSeason: uc.PreferredSeason,
		HistoryDigest:   uc.HistoryDigest,
		LastUpdated:     at,
	}, nil
}

func aggregateRecords(records []models.HistoryRecord) *models.UserContext {
	uc := &models.UserContext{
		Soil: models.SoilProfile{
			AvgNitrogen:    meanOf(records, func(r models.HistoryRecord) *float64 { return r.Nitrogen }),
			AvgPhosphorus:  meanOf(records, func(r models.HistoryRecord) *float64 { return r.Phosphorus }),
			AvgPotassium:   meanOf(records, func(r models.HistoryRecord) *float64 { return r.Potassium }),
			AvgPH:          meanOf(records, func(r models.HistoryRecord) *float64 { return r.PH }),
			AvgRainfall:    meanOf(records, func(r models.HistoryRecord) *float64 { return r.Rainfall }),
			AvgTemperature: meanOf(records, func(r models.HistoryRecord) *float64 { return r.Temperature }),
			AvgHumidity:    meanOf(records, func(r models.HistoryRecord) *float64 { return r.Humidity }),
		},
		TotalPredictions: len(records),
	}

	states := make([]string, 0, len(records))
	seasons := make([]string, 0, len(records))
	for _, r := range records {
		states = append(states, r.State)
		seasons = append(seasons, r.Season)
	}
	uc.UserRegion = modeOf(states)
	if uc.UserRegion == "" {
		uc.UserRegion = defaultRegion
	}
	uc.PreferredSeason = modeOf(seasons)

	uc.CropHistory = make([]models.CropOutcome, 0, len(records))
	for _, r := range records {
		uc.CropHistory = append(uc.CropHistory, models.CropOutcome{
			Crop:     r.Crop,
			Yield:    r.Yield,
			Unit:     r.Unit,
			Revenue:  r.Revenue,
			Currency: r.Currency,
			Region:   r.Region,
			Date:     r.CreatedAt,
		})
	}

	uc.HistoryDigest = buildDigest(records, uc.Soil)
	return uc
}

// meanOf averages only the samples that are present; all-nil means nil.
func meanOf(records []models.HistoryRecord, pick func(models.HistoryRecord) *float64) *float64 {
	var sum float64
	var n int
	for _, r := range records {
		if v := pick(r); v != nil {
			sum += *v
			n++
		}
	}
	if n == 0 {
		return nil
	}
	m := sum / float64(n)
	return &m
}

// modeOf returns the most frequent non-empty value; ties go to the value
// seen first.
func modeOf(values []string) string {
	freq := map[string]int{}
	var order []string
	for _, v := range values {
		if v == "" {
			continue
		}
		if freq[v] == 0 {
			order = append(order, v)
		}
		freq[v]++
	}

	best := ""
	bestCount := 0
	for _, v := range order {
		if freq[v] > bestCount {
			best = v
			bestCount = freq[v]
		}
	}
	return best
}

// buildDigest renders the short multi-line history summary injected into
// prompts: up to 3 recent records in detail, one aggregate line over the
// rest, and one line of rounded soil averages.
func buildDigest(records []models.HistoryRecord, soil models.SoilProfile) string {
	var lines []string

	detail := records
	if len(detail) > digestDetailRecords {
		detail = detail[:digestDetailRecords]
	}
	for _, r := range detail {
		parts := []string{r.CreatedAt.Format("2006-01-02")}
		if r.Region != "" {
			parts = append(parts, r.Region)
		} else if r.State != "" {
			parts = append(parts, r.State)
		}
		if r.Crop != "" {
			crop := r.Crop
			if r.Yield != nil {
				crop += fmt.Sprintf(" %s %s", fmtNum(*r.Yield, 0), orDefault(r.Unit, "t/ha"))
			}
			parts = append(parts, crop)
		}
		if inputs := soilInputs(r); inputs != "" {
			parts = append(parts, inputs)
		}
		lines = append(lines, "- "+strings.Join(parts, " | "))
	}

	if rest := records[len(detail):]; len(rest) > 0 {
		if agg := aggregateLine(rest); agg != "" {
			lines = append(lines, agg)
		}
	}

	if avg := soilAveragesLine(soil); avg != "" {
		lines = append(lines, avg)
	}

	return strings.Join(lines, "\n")
}

func soilInputs(r models.HistoryRecord) string {
	var parts []string
	if r.Nitrogen != nil {
		parts = append(parts, "N="+fmtNum(*r.Nitrogen, 0))
	}
	if r.Phosphorus != nil {
		parts = append(parts, "P="+fmtNum(*r.Phosphorus, 0))
	}
	if r.Potassium != nil {
		parts = append(parts, "K="+fmtNum(*r.Potassium, 0))
	}
	return strings.Join(parts, " ")
}

// aggregateLine summarizes the remaining records as crop counts and mean
// yields, top 3 crops by frequency, first-seen order on ties.
func aggregateLine(records []models.HistoryRecord) string {
	type stat struct {
		crop   string
		count  int
		ySum   float64
		yCount int
	}
	index := map[string]int{}
	var stats []*stat
	for _, r := range records {
		if r.Crop == "" {
			continue
		}
		i, ok := index[r.Crop]
		if !ok {
			i = len(stats)
			index[r.Crop] = i
			stats = append(stats, &stat{crop: r.Crop})
		}
		stats[i].count++
		if r.Yield != nil {
			stats[i].ySum += *r.Yield
			stats[i].yCount++
		}
	}
	if len(stats) == 0 {
		return ""
	}

	// selection by count, stable for first-seen order
	for end := len(stats); end > 1; end-- {
		for i := 1; i < end; i++ {
			if stats[i].count > stats[i-1].count {
				stats[i], stats[i-1] = stats[i-1], stats[i]
			}
		}
	}
	if len(stats) > 3 {
		stats = stats[:3]
	}

	var parts []string
	for _, st := range stats {
		p := fmt.Sprintf("%s x%d", st.crop, st.count)
		if st.yCount > 0 {
			p += fmt.Sprintf(" (avg %s)", fmtNum(st.ySum/float64(st.yCount), 0))
		}
		parts = append(parts, p)
	}
	return "Earlier: " + strings.Join(parts, ", ")
}

func soilAveragesLine(soil models.SoilProfile) string {
	var parts []string
	add := func(label string, v *float64, decimals int) {
		if v != nil {
			parts = append(parts, label+" "+fmtNum(*v, decimals))
		}
	}
	add("N", soil.AvgNitrogen, 0)
	add("P", soil.AvgPhosphorus, 0)
	add("K", soil.AvgPotassium, 0)
	add("pH", soil.AvgPH, 1)
	add("rainfall", soil.AvgRainfall, 0)
	add("temp", soil.AvgTemperature, 0)
	add("humidity", soil.AvgHumidity, 0)
	if len(parts) == 0 {
		return ""
	}
	return "Soil averages: " + strings.Join(parts, ", ")
}

func fmtNum(v float64, decimals int) string {
	return fmt.Sprintf("%.*f", decimals, v)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
