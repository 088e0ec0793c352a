package services

import (
	"regexp"
	"strings"

	"github.com/fellahtech/agribot/internal/models"
)

const (
	IntentPrice      = "price_inquiry"
	IntentWeather    = "weather_query"
	IntentCropAdvice = "crop_advice"
	IntentDisease    = "disease_help"
	IntentYield      = "yield_prediction"
	IntentFertilizer = "fertilizer_advice"
	IntentIrrigation = "irrigation"
	IntentGeneral    = "general_inquiry"
)

// Keyword patterns per intent, matching French, English, Modern Standard
// Arabic, and transliterated Darja. Latin keywords are word-bounded; Arabic
// keywords are matched bare since RE2 word boundaries are ASCII-only.
// Declaration order is the tie-break order for ambiguous messages.
var intentTable = []struct {
	intent  string
	pattern *regexp.Regexp
}{
	{IntentPrice, regexp.MustCompile(`\b(prix|price|combien)\b|سعر|تمن|ثمن|شحال`)},
	{IntentWeather, regexp.MustCompile(`\b(météo|meteo|weather|pluie|rain|temps)\b|مطر|طقس|الجو`)},
	{IntentCropAdvice, regexp.MustCompile(`\b(planter|plant|cultiver|grow)\b|زراعة|محصول|ندير|نزرع`)},
	{IntentDisease, regexp.MustCompile(`\b(maladie|disease|parasite|pest)\b|مرض|آفة|حشرة`)},
	{IntentYield, regexp.MustCompile(`\b(rendement|yield|production)\b|إنتاج`)},
	{IntentFertilizer, regexp.MustCompile(`\b(engrais|fertilizer|azote|nitrogen)\b|سماد`)},
	{IntentIrrigation, regexp.MustCompile(`\b(irrigation|water|arrosage)\b|ري|ماء`)},
}

// Keyword families reused for query augmentation and cache TTL selection.
// Latin keywords are word-bounded like the table above, so "printemps" does
// not read as "temps" and turn a planting query into a weather one.
var (
	priceFamily   = regexp.MustCompile(`\b(price|prix|market)\b|سعر|تمن`)
	weatherFamily = regexp.MustCompile(`\b(weather|météo|meteo|forecast|temps)\b|طقس`)
	plantFamily   = regexp.MustCompile(`\b(planter|planting|plant|cultiver)\b|زراعة`)
)

// ClassifyIntent maps a message to a coarse intent with a confidence score.
// One matching pattern means 1.0; several mean 0.7 (ambiguity, decided by
// keyword occurrence count); none means general_inquiry at 0.5.
func ClassifyIntent(text string) (string, float64) {
	if strings.TrimSpace(text) == "" {
		return IntentGeneral, 0.0
	}

	normalized := strings.ToLower(text)

	type match struct {
		intent string
		count  int
	}
	var matches []match
	for _, entry := range intentTable {
		if n := len(entry.pattern.FindAllString(normalized, -1)); n > 0 {
			matches = append(matches, match{intent: entry.intent, count: n})
		}
	}

	switch len(matches) {
	case 0:
		return IntentGeneral, 0.5
	case 1:
		return matches[0].intent, 1.0
	}

	// Most keyword occurrences wins; ties go to the earlier table entry.
	top := matches[0]
	for _, m := range matches[1:] {
		if m.count > top.count {
			top = m
		}
	}
	return top.intent, 0.7
}

// ShouldSearchWeb partitions intents into always-search (volatile facts),
// search-when-history-is-thin, and never-search.
func ShouldSearchWeb(intent string, uc *models.UserContext) bool {
	switch intent {
	case IntentPrice, IntentWeather, IntentDisease:
		return true
	case IntentCropAdvice, IntentYield, IntentFertilizer:
		total := 0
		if uc != nil {
			total = uc.TotalPredictions
		}
		return total < 3
	default:
		return false
	}
}

// GenerateSearchQuery augments the raw message with regional, temporal, and
// seasonal qualifiers so the provider returns locally relevant results.
func GenerateSearchQuery(text string, uc *models.UserContext) string {
	region := "Algeria"
	season := ""
	if uc != nil {
		if uc.UserRegion != "" {
			region = uc.UserRegion
		}
		season = uc.PreferredSeason
	}

	query := strings.TrimSpace(text)
	lower := strings.ToLower(query)

	if !strings.Contains(lower, "algeria") && !strings.Contains(query, "الجزائر") {
		if !strings.EqualFold(region, "Algeria") {
			query += " " + region
		}
		query += " Algeria"
		lower = strings.ToLower(query)
	}

	switch {
	case priceFamily.MatchString(lower):
		query += " current market price today"
	case weatherFamily.MatchString(lower):
		query += " forecast"
	}

	if season != "" && plantFamily.MatchString(lower) {
		query += " " + season + " season"
	}

	return strings.TrimSpace(query)
}
