package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/guideline-hub/app/database"
	"github.com/lysyi3m/guideline-hub/app/guideline"
)

func NewHandler(guidelines database.GuidelineReader, runs database.RunRepository,
	configCache ConfigLister, scheduler SchedulerInterface, location *time.Location) *Handler {
	if location == nil {
		location = time.Local
	}
	return &Handler{
		guidelines:  guidelines,
		runs:        runs,
		configCache: configCache,
		scheduler:   scheduler,
		location:    location,
		now:         time.Now,
	}
}

func (h *Handler) ListGuidelines(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	guidelines, err := h.guidelines.List(c.Request.Context(), filter)
	if err != nil {
		h.databaseError(c, "list_guidelines", err)
		return
	}

	total, err := h.guidelines.Count(c.Request.Context(), filter)
	if err != nil {
		h.databaseError(c, "count_guidelines", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"guidelines":   guidelines,
		"count":        len(guidelines),
		"total":        total,
		"limit":        filter.Limit,
		"offset":       filter.Offset,
		"last_updated": h.timestamp(),
	})
}

func (h *Handler) GetGuideline(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid guideline id"})
		return
	}

	g, err := h.guidelines.GetByID(c.Request.Context(), id)
	if err != nil {
		h.databaseError(c, "get_guideline", err)
		return
	}
	if g == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Guideline not found"})
		return
	}

	c.JSON(http.StatusOK, g)
}

func (h *Handler) GetSources(c *gin.Context) {
	sources, err := h.guidelines.DistinctSources(c.Request.Context())
	if err != nil {
		h.databaseError(c, "get_sources", err)
		return
	}

	configured := []gin.H{}
	if h.configCache != nil {
		for _, config := range h.configCache.GetEnabledConfigs() {
			configured = append(configured, gin.H{
				"name":    config.Name,
				"source":  config.Source,
				"adapter": config.Adapter,
				"url":     config.URL,
			})
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"sources":    sources,
		"configured": configured,
	})
}

func (h *Handler) GetSpecialties(c *gin.Context) {
	specialties, err := h.guidelines.DistinctTags(c.Request.Context())
	if err != nil {
		h.databaseError(c, "get_specialties", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"specialties": specialties})
}

func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.guidelines.Stats(c.Request.Context(), h.now().Add(-recentWindow))
	if err != nil {
		h.databaseError(c, "get_stats", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total_guidelines":  stats.Total,
		"source_counts":     stats.BySource,
		"recent_guidelines": stats.Recent,
		"last_updated":      h.timestamp(),
	})
}

// GetHealth reports store reachability and scheduler freshness. Data is
// stale when no cycle has succeeded within two scheduler intervals.
func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": h.timestamp(),
		"database":  "connected",
	}
	status := http.StatusOK

	if _, err := h.guidelines.Count(c.Request.Context(), database.Filter{}); err != nil {
		slog.Error("Database error", "operation", "health", "error", err)
		health["status"] = "unhealthy"
		health["database"] = "unavailable"
		status = http.StatusServiceUnavailable
	}

	if h.configCache != nil {
		health["sources"] = len(h.configCache.GetEnabledConfigs())
	}

	if h.scheduler != nil {
		state := h.scheduler.State()
		stale := true
		if state.LastSuccessAt != nil {
			interval := h.scheduler.Interval()
			stale = interval > 0 && h.now().Sub(*state.LastSuccessAt) > 2*interval
		}
		if stale && status == http.StatusOK {
			health["status"] = "degraded"
		}

		health["stale"] = stale
		health["scheduler"] = state
	}

	c.JSON(status, health)
}

func (h *Handler) ListRuns(c *gin.Context) {
	limit := defaultRunLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxRunLimit {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 100"})
			return
		}
		limit = parsed
	}

	runs, err := h.runs.LastRuns(c.Request.Context(), limit)
	if err != nil {
		h.databaseError(c, "list_runs", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"runs":  runs,
		"total": len(runs),
	})
}

func (h *Handler) APIRefresh(c *gin.Context) {
	reason := "api"
	if custom := c.Query("reason"); custom != "" {
		reason = "api:" + custom
	}

	queued := h.scheduler.Trigger(reason)
	message := "Ingestion cycle queued"
	if !queued {
		message = "Ingestion cycle already pending"
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success":   true,
		"queued":    queued,
		"coalesced": !queued,
		"message":   message,
		"running":   h.scheduler.State().IsRunning,
	})
}

func (h *Handler) databaseError(c *gin.Context, operation string, err error) {
	slog.Error("Database error", "operation", operation, "error", err)

	status := http.StatusInternalServerError
	if errors.Is(err, database.ErrUnavailable) {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"error": "Database error"})
}

func (h *Handler) timestamp() string {
	return h.now().In(h.location).Format(time.RFC3339)
}

type filterError string

func (e filterError) Error() string { return string(e) }

func parseFilter(c *gin.Context) (database.Filter, error) {
	filter := database.Filter{
		Specialty: c.Query("specialty"),
		Limit:     database.DefaultListLimit,
	}

	if raw := c.Query("source"); raw != "" {
		code, err := guideline.ParseSource(raw)
		if err != nil {
			return filter, filterError("unknown source " + strconv.Quote(raw))
		}
		filter.Source = string(code)
	}

	if raw := c.Query("year"); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil || year < 1900 || year > 9999 {
			return filter, filterError("year must be a four-digit number")
		}
		filter.Year = year
	}

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > database.MaxListLimit {
			return filter, filterError("limit must be between 1 and " + strconv.Itoa(database.MaxListLimit))
		}
		filter.Limit = limit
	}

	if raw := c.Query("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return filter, filterError("offset must be a non-negative number")
		}
		filter.Offset = offset
	}

	return filter, nil
}
