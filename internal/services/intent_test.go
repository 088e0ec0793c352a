package services

import (
	"strings"
	"testing"

	"github.com/fellahtech/agribot/internal/models"
)

func TestClassifyIntent(t *testing.T) {
	cases := []struct {
		name       string
		text       string
		intent     string
		confidence float64
	}{
		{"empty", "", IntentGeneral, 0.0},
		{"whitespace only", "   ", IntentGeneral, 0.0},
		{"no keywords", "salam, chokran bezzaf", IntentGeneral, 0.5},
		{"french weather", "Quel temps fera-t-il cette semaine ?", IntentWeather, 1.0},
		{"english rain", "will it rain tomorrow", IntentWeather, 1.0},
		{"arabic price", "شحال راهو سعر القمح؟", IntentPrice, 1.0},
		{"french disease", "ma tomate a une maladie", IntentDisease, 1.0},
		{"fertilizer", "quel engrais pour le blé", IntentFertilizer, 1.0},
		{"irrigation", "how much water do tomatoes need", IntentIrrigation, 1.0},
		{"ambiguous tie goes to earlier intent", "prix et météo", IntentPrice, 0.7},
		{"ambiguous count wins", "météo demain, météo ce soir, et le prix", IntentWeather, 0.7},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			intent, conf := ClassifyIntent(tc.text)
			if intent != tc.intent {
				t.Errorf("intent = %q, want %q", intent, tc.intent)
			}
			if conf != tc.confidence {
				t.Errorf("confidence = %v, want %v", conf, tc.confidence)
			}
		})
	}
}

func TestShouldSearchWeb(t *testing.T) {
	rich := &models.UserContext{TotalPredictions: 5}
	thin := &models.UserContext{TotalPredictions: 2}

	cases := []struct {
		name   string
		intent string
		uc     *models.UserContext
		want   bool
	}{
		{"price always searches", IntentPrice, rich, true},
		{"weather always searches", IntentWeather, rich, true},
		{"disease always searches", IntentDisease, rich, true},
		{"crop advice with thin history", IntentCropAdvice, thin, true},
		{"crop advice with rich history", IntentCropAdvice, rich, false},
		{"crop advice at threshold", IntentCropAdvice, &models.UserContext{TotalPredictions: 3}, false},
		{"yield with nil context", IntentYield, nil, true},
		{"fertilizer with rich history", IntentFertilizer, rich, false},
		{"irrigation never searches", IntentIrrigation, thin, false},
		{"general never searches", IntentGeneral, nil, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ShouldSearchWeb(tc.intent, tc.uc); got != tc.want {
				t.Errorf("ShouldSearchWeb(%q) = %v, want %v", tc.intent, got, tc.want)
			}
		})
	}
}

func TestGenerateSearchQuery(t *testing.T) {
	t.Run("adds region and price qualifiers", func(t *testing.T) {
		uc := &models.UserContext{UserRegion: "Tiaret"}
		got := GenerateSearchQuery("prix du blé", uc)
		want := "prix du blé Tiaret Algeria current market price today"
		if got != want {
			t.Errorf("query = %q, want %q", got, want)
		}
	})

	t.Run("does not duplicate Algeria", func(t *testing.T) {
		got := GenerateSearchQuery("wheat price in Algeria", nil)
		if strings.Count(strings.ToLower(got), "algeria") != 1 {
			t.Errorf("query duplicates country: %q", got)
		}
		if !strings.Contains(got, "current market price today") {
			t.Errorf("missing price qualifier: %q", got)
		}
	})

	t.Run("default region appended once", func(t *testing.T) {
		got := GenerateSearchQuery("météo demain", nil)
		want := "météo demain Algeria forecast"
		if got != want {
			t.Errorf("query = %q, want %q", got, want)
		}
	})

	t.Run("printemps does not trigger the forecast qualifier", func(t *testing.T) {
		uc := &models.UserContext{PreferredSeason: "printemps"}
		got := GenerateSearchQuery("que planter au printemps", uc)
		if strings.Contains(got, "forecast") {
			t.Errorf("query = %q, planting question mistaken for weather", got)
		}
		if !strings.HasSuffix(got, "printemps season") {
			t.Errorf("query = %q, want season suffix", got)
		}
	})

	t.Run("season added for planting questions", func(t *testing.T) {
		uc := &models.UserContext{UserRegion: "Biskra", PreferredSeason: "spring"}
		got := GenerateSearchQuery("what should I plant", uc)
		if !strings.Contains(got, "Biskra") || !strings.HasSuffix(got, "spring season") {
			t.Errorf("query = %q, want region and season suffix", got)
		}
	})
}
