package ingest

import (
	"fmt"
	"strings"

	"github.com/lox/wdqms/internal/models"
)

// Request is an ingest invocation as given on the command line. Empty lists
// mean "all" (or, for countries, "the catalog").
type Request struct {
	Start     string
	End       string
	Variables []string
	Periods   []string
	Centers   []string
	Countries []string
}

// Plan is a validated Request.
type Plan struct {
	Start     string
	End       string
	Variables []models.Variable
	Periods   []models.Period
	Centers   []models.Center
	Countries []string
}

// Validate checks every field against its enumeration before anything
// touches the network or the store.
func (r Request) Validate() (Plan, error) {
	p := Plan{Start: r.Start, End: r.End}

	var start, end string
	if r.Start != "" {
		d, err := ParseDate("start date", r.Start)
		if err != nil {
			return Plan{}, err
		}
		start = d.Format(dateLayout)
	}
	if r.End != "" {
		d, err := ParseDate("end date", r.End)
		if err != nil {
			return Plan{}, err
		}
		end = d.Format(dateLayout)
	}
	if start != "" && end != "" && start > end {
		return Plan{}, &models.InvalidRangeError{Start: start, End: end}
	}

	var err error
	if p.Variables, err = parseAll(r.Variables, models.AllVariables, models.ParseVariable); err != nil {
		return Plan{}, err
	}
	if p.Periods, err = parseAll(r.Periods, models.AllPeriods, models.ParsePeriod); err != nil {
		return Plan{}, err
	}
	if p.Centers, err = parseAll(r.Centers, models.AllCenters, models.ParseCenter); err != nil {
		return Plan{}, err
	}

	seen := make(map[string]bool)
	for _, c := range r.Countries {
		code := strings.ToUpper(strings.TrimSpace(c))
		if code == "" {
			return Plan{}, fmt.Errorf("empty country code")
		}
		if !seen[code] {
			seen[code] = true
			p.Countries = append(p.Countries, code)
		}
	}
	return p, nil
}

// parseAll parses each value, dropping duplicates. No values selects all.
func parseAll[T comparable](values []string, all []T, parse func(string) (T, error)) ([]T, error) {
	if len(values) == 0 {
		return append([]T(nil), all...), nil
	}
	out := make([]T, 0, len(values))
	seen := make(map[T]bool, len(values))
	for _, v := range values {
		parsed, err := parse(v)
		if err != nil {
			return nil, err
		}
		if !seen[parsed] {
			seen[parsed] = true
			out = append(out, parsed)
		}
	}
	return out, nil
}
