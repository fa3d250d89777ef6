package ingest

import (
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/lox/wdqms/internal/models"
)

const (
	colWigosID  = "wigosid"
	colName     = "name"
	colLon      = "longitude"
	colLat      = "latitude"
	colInOSCAR  = "in OSCAR"
	colReceived = "#received"
	colExpected = "#expected"
	colCountry  = "country code"
	colVariable = "variable"
	colDate     = "date"
)

var requiredColumns = []string{
	colWigosID, colName, colLon, colLat, colInOSCAR,
	colReceived, colExpected, colCountry, colVariable, colDate,
}

var snapshotDateLayouts = []string{
	"2006-01-02 15:04:05-0700",
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
}

// ParseResult holds the typed rows of a snapshot and how many lines were skipped.
type ParseResult struct {
	Rows        []models.RawRow
	ParseErrors int
	FirstError  string
}

// ParseSnapshot reads an availability CSV. Columns are located by header name;
// a missing required header fails the whole snapshot, while a malformed line
// is skipped and counted.
func ParseSnapshot(r io.Reader) (*ParseResult, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return &ParseResult{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	idx := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		idx[h] = i
	}
	for _, c := range requiredColumns {
		if _, ok := idx[c]; !ok {
			return nil, fmt.Errorf("snapshot missing column %q", c)
		}
	}

	result := &ParseResult{}
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				result.recordError(line, err)
				continue
			}
			return nil, fmt.Errorf("read snapshot: %w", err)
		}

		row, err := parseRecord(rec, idx)
		if err != nil {
			result.recordError(line, err)
			continue
		}
		result.Rows = append(result.Rows, row)
	}
	return result, nil
}

func (p *ParseResult) recordError(line int, err error) {
	if p.ParseErrors == 0 {
		p.FirstError = fmt.Sprintf("line %d: %v", line, err)
	}
	p.ParseErrors++
}

func parseRecord(rec []string, idx map[string]int) (models.RawRow, error) {
	field := func(name string) string {
		i := idx[name]
		if i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var row models.RawRow
	var err error

	row.WigosID = field(colWigosID)
	if row.WigosID == "" {
		return row, errors.New("empty wigosid")
	}
	row.Name = field(colName)
	row.CountryCode = field(colCountry)
	if row.Variable, err = models.ParseVariable(field(colVariable)); err != nil {
		return row, err
	}

	if row.Longitude, err = strconv.ParseFloat(field(colLon), 64); err != nil {
		return row, fmt.Errorf("longitude: %w", err)
	}
	if row.Latitude, err = strconv.ParseFloat(field(colLat), 64); err != nil {
		return row, fmt.Errorf("latitude: %w", err)
	}
	if row.InOSCAR, err = parseFlag(field(colInOSCAR)); err != nil {
		return row, fmt.Errorf("in OSCAR: %w", err)
	}
	if row.Received, err = parseCount(field(colReceived)); err != nil {
		return row, fmt.Errorf("#received: %w", err)
	}
	if row.Expected, err = parseCount(field(colExpected)); err != nil {
		return row, fmt.Errorf("#expected: %w", err)
	}
	if row.Date, err = parseSnapshotDate(field(colDate)); err != nil {
		return row, err
	}
	return row, nil
}

// parseCount accepts non-negative integers and integral floats ("12.0").
// Empty and NaN cells are null.
func parseCount(s string) (sql.NullInt64, error) {
	if s == "" || strings.EqualFold(s, "nan") {
		return sql.NullInt64{}, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n < 0 {
			return sql.NullInt64{}, fmt.Errorf("negative count: %q", s)
		}
		return sql.NullInt64{Int64: n, Valid: true}, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return sql.NullInt64{}, err
	}
	if math.IsNaN(f) {
		return sql.NullInt64{}, nil
	}
	// float64(math.MaxInt64) rounds up to 2^63, which int64 cannot hold
	if math.IsInf(f, 0) || f != math.Trunc(f) || f < 0 || f >= float64(math.MaxInt64) {
		return sql.NullInt64{}, fmt.Errorf("not a count: %q", s)
	}
	return sql.NullInt64{Int64: int64(f), Valid: true}, nil
}

func parseFlag(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "true", "1", "yes":
		return true, nil
	case "false", "0", "no", "":
		return false, nil
	}
	return false, fmt.Errorf("not a boolean: %q", s)
}

func parseSnapshotDate(s string) (time.Time, error) {
	for _, layout := range snapshotDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("date: cannot parse %q", s)
}
