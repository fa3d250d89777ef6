package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lox/wdqms/internal/aggregate"
	"github.com/lox/wdqms/internal/store"
)

const (
	queryTimeout     = 15 * time.Second
	defaultRunsLimit = 50
	maxRunsLimit     = 1000
	healthWindowDays = 1
)

// respond writes body, or maps err to 400 for bad parameters and 500 for
// anything else.
func (s *Server) respond(c *gin.Context, body any, err error) {
	if err != nil {
		if aggregate.IsInvalid(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s.logger.Error("http: query failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) handleHourly(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), queryTimeout)
	defer cancel()

	out, err := s.views.Hourly(ctx, c.Request.URL.Query())
	s.respond(c, out, err)
}

func (s *Server) handleMonthly(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), queryTimeout)
	defer cancel()

	out, err := s.views.Monthly(ctx, c.Request.URL.Query())
	s.respond(c, out, err)
}

func (s *Server) handleYearly(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), queryTimeout)
	defer cancel()

	out, err := s.views.Yearly(ctx, c.Request.URL.Query())
	s.respond(c, out, err)
}

func (s *Server) handleMonthlyGeo(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), queryTimeout)
	defer cancel()

	fc, err := s.views.MonthlyGeo(ctx, c.Request.URL.Query())
	s.respond(c, fc, err)
}

func (s *Server) handleStations(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), queryTimeout)
	defer cancel()

	fc, err := s.views.Stations(ctx, c.Request.URL.Query())
	s.respond(c, fc, err)
}

type ingestRunView struct {
	ID          int64      `json:"id"`
	RunID       string     `json:"run_id"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at"`
	Date        string     `json:"date"`
	Period      string     `json:"period"`
	Variable    string     `json:"variable"`
	Country     string     `json:"country"`
	Centers     string     `json:"centers"`
	HTTPStatus  *int64     `json:"http_status"`
	SizeBytes   *int64     `json:"response_size_bytes"`
	RowsParsed  *int64     `json:"rows_parsed"`
	RowsKept    *int64     `json:"rows_kept"`
	RowsStored  *int64     `json:"rows_stored"`
	ParseErrors *int64     `json:"parse_errors"`
	Success     bool       `json:"success"`
	Error       string     `json:"error,omitempty"`
}

func newIngestRunView(r store.IngestRun) ingestRunView {
	v := ingestRunView{
		ID:          r.ID,
		RunID:       r.RunID,
		StartedAt:   r.StartedAt,
		Date:        r.UnitDate,
		Period:      r.Period,
		Variable:    r.Variable,
		Country:     r.Country,
		Centers:     r.Centers,
		HTTPStatus:  nullInt(r.HTTPStatus.Int64, r.HTTPStatus.Valid),
		SizeBytes:   nullInt(r.ResponseSizeBytes.Int64, r.ResponseSizeBytes.Valid),
		RowsParsed:  nullInt(r.RowsParsed.Int64, r.RowsParsed.Valid),
		RowsKept:    nullInt(r.RowsKept.Int64, r.RowsKept.Valid),
		RowsStored:  nullInt(r.RowsStored.Int64, r.RowsStored.Valid),
		ParseErrors: nullInt(r.ParseErrors.Int64, r.ParseErrors.Valid),
		Success:     r.Success,
		Error:       r.ErrorMessage.String,
	}
	if r.FinishedAt.Valid {
		t := r.FinishedAt.Time
		v.FinishedAt = &t
	}
	return v
}

func nullInt(v int64, valid bool) *int64 {
	if !valid {
		return nil
	}
	return &v
}

func (s *Server) handleIngestRuns(c *gin.Context) {
	limit := defaultRunsLimit
	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 || parsed > maxRunsLimit {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	failedOnly := false
	if failedStr := c.Query("failed"); failedStr != "" {
		val, err := strconv.ParseBool(failedStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid failed parameter"})
			return
		}
		failedOnly = val
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), queryTimeout)
	defer cancel()

	runs, err := s.store.ListIngestRuns(ctx, limit, failedOnly)
	if err != nil {
		s.logger.Error("http: list ingest runs", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	views := make([]ingestRunView, 0, len(runs))
	for _, r := range runs {
		views = append(views, newIngestRunView(r))
	}
	c.JSON(http.StatusOK, gin.H{
		"data": views,
		"meta": gin.H{"count": len(views)},
	})
}

// handleHealth reports the schema version, row counts and the last day's
// ingest outcomes.
// Failed units mark the status degraded without changing the 200.
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "error": err.Error()})
		return
	}

	version, err := s.store.MigrationVersion()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "error": err.Error()})
		return
	}

	stations, err := s.store.CountStations(ctx)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "error": err.Error()})
		return
	}
	transmissions, err := s.store.CountTransmissions(ctx)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "error": err.Error()})
		return
	}

	status := "ok"
	ingest, err := s.store.GetIngestHealth(ctx, healthWindowDays)
	if err != nil {
		s.logger.Warn("http: ingest health", "error", err)
	}
	for _, h := range ingest {
		if h.FailedRuns > 0 {
			status = "degraded"
		}
	}
	if ingest == nil {
		ingest = []store.IngestHealthSummary{}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":            status,
		"migration_version": version,
		"stations":          stations,
		"transmissions":     transmissions,
		"ingest":            ingest,
	})
}
