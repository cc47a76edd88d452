package usecase

import (
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/pricelens/backend/internal/domain"
)

func catalogRecords(names ...string) []domain.CatalogRecord {
	records := make([]domain.CatalogRecord, len(names))
	for i, name := range names {
		records[i] = domain.CatalogRecord{
			ConsoleName: "Playstation 2",
			ProductName: name,
			CIBPrice:    domain.ParseMoney("20.00"),
		}
	}
	return records
}

func TestNewMatchingService(t *testing.T) {
	t.Run("defaults to a no-op logger", func(t *testing.T) {
		svc := NewMatchingService(MatchConfig{})
		if svc.logger == nil {
			t.Error("logger should never be nil")
		}
	})

	t.Run("keeps debug flag", func(t *testing.T) {
		svc := NewMatchingService(MatchConfig{EnableDebugLogging: true, Logger: zap.NewNop()})
		if !svc.enableDebugLogging {
			t.Error("enableDebugLogging = false, want true")
		}
	})
}

func TestFindBestMatch(t *testing.T) {
	svc := NewMatchingService(MatchConfig{})

	t.Run("returns error for incomplete query", func(t *testing.T) {
		_, err := svc.FindBestMatch(domain.MatchQuery{ConsoleType: "nes"}, catalogRecords("Zelda"))
		if !errors.Is(err, domain.ErrInvalidQuery) {
			t.Errorf("error = %v, want ErrInvalidQuery", err)
		}
	})

	t.Run("empty candidate pool is not found", func(t *testing.T) {
		result, err := svc.FindBestMatch(domain.MatchQuery{ConsoleType: "nes", ProductName: "zelda"}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Found() {
			t.Error("expected not found")
		}
		if result.Suggestion != "" {
			t.Errorf("Suggestion = %q, want empty", result.Suggestion)
		}
	})

	t.Run("final fantasy x matches final fantasy 10", func(t *testing.T) {
		query := domain.MatchQuery{ConsoleType: "playstation 2", ProductName: "Final Fantasy X"}
		result, err := svc.FindBestMatch(query, catalogRecords("Grand Theft Auto", "Final Fantasy 10"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.Found() {
			t.Fatalf("expected a match, got reason %q", result.Reason)
		}
		if result.Record.ProductName != "Final Fantasy 10" {
			t.Errorf("ProductName = %q, want Final Fantasy 10", result.Record.ProductName)
		}
		if result.Distance != 2 {
			t.Errorf("Distance = %d, want 2", result.Distance)
		}
		if result.Confidence != 60 {
			t.Errorf("Confidence = %d, want 60", result.Confidence)
		}
	})

	t.Run("exact match ignores case and punctuation", func(t *testing.T) {
		query := domain.MatchQuery{ConsoleType: "n64", ProductName: "super mario 64"}
		result, _ := svc.FindBestMatch(query, catalogRecords("Super Mario 64!"))
		if !result.Found() || result.Distance != 0 || result.Confidence != 100 {
			t.Errorf("got %+v, want exact match with confidence 100", result)
		}
	})

	t.Run("accents are folded", func(t *testing.T) {
		query := domain.MatchQuery{ConsoleType: "nes", ProductName: "Pokemon Red"}
		result, _ := svc.FindBestMatch(query, catalogRecords("Pokémon Red"))
		if !result.Found() || result.Distance != 0 {
			t.Errorf("got %+v, want exact match after folding", result)
		}
	})

	t.Run("ties keep the first candidate", func(t *testing.T) {
		query := domain.MatchQuery{ConsoleType: "nes", ProductName: "mario"}
		result, _ := svc.FindBestMatch(query, catalogRecords("marie", "maria", "mario bros"))
		if !result.Found() {
			t.Fatal("expected a match")
		}
		if result.Record.ProductName != "marie" {
			t.Errorf("ProductName = %q, want marie", result.Record.ProductName)
		}
	})

	t.Run("threshold is inclusive", func(t *testing.T) {
		query := domain.MatchQuery{ConsoleType: "nes", ProductName: "abcde"}
		atThreshold, _ := svc.FindBestMatch(query, catalogRecords("vwxyz"))
		if !atThreshold.Found() || atThreshold.Distance != SimilarityThreshold {
			t.Errorf("distance %d should match, got %+v", SimilarityThreshold, atThreshold)
		}
		if atThreshold.Confidence != 0 {
			t.Errorf("Confidence = %d, want 0", atThreshold.Confidence)
		}

		beyond, _ := svc.FindBestMatch(query, catalogRecords("uvwxyz"))
		if beyond.Found() {
			t.Errorf("distance 6 should not match, got %+v", beyond)
		}
	})

	t.Run("not found carries nearest candidate as suggestion", func(t *testing.T) {
		query := domain.MatchQuery{ConsoleType: "playstation 2", ProductName: "Kingdom Hearts"}
		result, err := svc.FindBestMatch(query, catalogRecords("Metal Gear Solid 3 Snake Eater", "Kingdom Hearts II Final"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Found() {
			t.Fatalf("expected not found, got %+v", result.Record)
		}
		if result.Suggestion != "Kingdom Hearts II Final" {
			t.Errorf("Suggestion = %q", result.Suggestion)
		}
		if !strings.Contains(result.Reason, domain.ErrNoMatch.Error()) {
			t.Errorf("Reason = %q, want it to mention %q", result.Reason, domain.ErrNoMatch)
		}
	})

	t.Run("returned record is a copy", func(t *testing.T) {
		candidates := catalogRecords("Halo")
		result, _ := svc.FindBestMatch(domain.MatchQuery{ConsoleType: "xbox", ProductName: "halo"}, candidates)
		result.Record.ProductName = "changed"
		if candidates[0].ProductName != "Halo" {
			t.Error("candidate slice was mutated through the result")
		}
	})

	t.Run("debug logging does not change the outcome", func(t *testing.T) {
		debugSvc := NewMatchingService(MatchConfig{EnableDebugLogging: true, Logger: zap.NewNop()})
		result, _ := debugSvc.FindBestMatch(domain.MatchQuery{ConsoleType: "xbox", ProductName: "halo 2"}, catalogRecords("Halo", "Halo 2"))
		if !result.Found() || result.Record.ProductName != "Halo 2" {
			t.Errorf("got %+v, want Halo 2", result)
		}
	})
}

func TestConfidence(t *testing.T) {
	tests := []struct {
		distance int
		want     int
	}{
		{0, 100},
		{1, 80},
		{2, 60},
		{4, 20},
		{5, 0},
		{9, 0},
		{-1, 100},
	}

	for _, tt := range tests {
		if got := Confidence(tt.distance); got != tt.want {
			t.Errorf("Confidence(%d) = %d, want %d", tt.distance, got, tt.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Final Fantasy X", "final fantasy x"},
		{"  Halo: Combat Evolved  ", "halo combat evolved"},
		{"Pokémon Snap", "pokemon snap"},
		{"Tom Clancy's Splinter Cell", "tom clancys splinter cell"},
		{"!!!", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := Normalize(tt.input); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestLevenshteinDistance(t *testing.T) {
	tests := []struct {
		name string
		s1   string
		s2   string
		want int
	}{
		{"identical strings", "zelda", "zelda", 0},
		{"both empty", "", "", 0},
		{"first empty", "", "halo", 4},
		{"second empty", "halo", "", 4},
		{"single substitution", "halo", "hala", 1},
		{"insertion", "halo", "halo2", 1},
		{"classic example", "kitten", "sitting", 3},
		{"multibyte runes count once", "pokémon", "pokemon", 1},
		{"roman vs arabic", "final fantasy x", "final fantasy 10", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LevenshteinDistance(tt.s1, tt.s2); got != tt.want {
				t.Errorf("LevenshteinDistance(%q, %q) = %d, want %d", tt.s1, tt.s2, got, tt.want)
			}
			if got := LevenshteinDistance(tt.s2, tt.s1); got != tt.want {
				t.Errorf("LevenshteinDistance is not symmetric for %q, %q", tt.s1, tt.s2)
			}
		})
	}
}

func BenchmarkLevenshteinDistance(b *testing.B) {
	for i := 0; i < b.N; i++ {
		LevenshteinDistance("the legend of zelda ocarina of time", "legend of zelda majoras mask")
	}
}
