package ingest

import (
	"math"

	"github.com/lox/wdqms/internal/models"
)

// Normalize runs the snapshot stages in order: FilterCountry, DeriveRates, Dedupe.
func Normalize(rows []models.RawRow, country string) []models.NormalizedRow {
	return Dedupe(DeriveRates(FilterCountry(rows, country)))
}

// FilterCountry keeps rows whose country code equals country exactly.
func FilterCountry(rows []models.RawRow, country string) []models.RawRow {
	out := make([]models.RawRow, 0, len(rows))
	for _, r := range rows {
		if r.CountryCode == country {
			out = append(out, r)
		}
	}
	return out
}

// DeriveRates computes received/expected*100 for each row.
func DeriveRates(rows []models.RawRow) []models.NormalizedRow {
	out := make([]models.NormalizedRow, len(rows))
	for i, r := range rows {
		out[i] = models.NormalizedRow{RawRow: r, Rate: ReceivedRate(r.Received.Int64, r.Expected.Int64, r.Received.Valid && r.Expected.Valid)}
	}
	return out
}

// ReceivedRate is 100*received/expected. Missing counts, a zero expected
// count and any non-finite result give 0.
func ReceivedRate(received, expected int64, valid bool) float64 {
	if !valid {
		return 0
	}
	rate := float64(received) * 100 / float64(expected)
	if math.IsNaN(rate) || math.IsInf(rate, 0) {
		return 0
	}
	return rate
}

// Dedupe keeps one row per station: the one with the highest rate. On a tie
// the row seen first wins. Stations appear in order of first sighting.
func Dedupe(rows []models.NormalizedRow) []models.NormalizedRow {
	best := make(map[string]int, len(rows))
	out := make([]models.NormalizedRow, 0, len(rows))
	for _, r := range rows {
		i, seen := best[r.WigosID]
		if !seen {
			best[r.WigosID] = len(out)
			out = append(out, r)
			continue
		}
		if r.Rate > out[i].Rate {
			out[i] = r
		}
	}
	return out
}
