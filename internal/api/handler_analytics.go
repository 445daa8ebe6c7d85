package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"arduino-fleet-backend/internal/analytics"
)

// parseFlexibleDate accepts RFC3339 timestamps or bare dates.
func parseFlexibleDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

// CounterSessionData returns counter session rows fetched from the
// upstream integration, reshaped per the query parameters.
//
// Query parameters:
//   - view:  default | user | date | user_date | raw
//   - agg:   sum | mean | max | min (Count/Duration aggregation)
//   - limit: optional row cap
//   - user:  optional comma-separated user filter
//   - start, end: optional date range (ISO format)
func (h *Handler) CounterSessionData(c *gin.Context) {
	opts := analytics.Options{
		ViewMode: c.DefaultQuery("view", "default"),
		Agg:      c.DefaultQuery("agg", "sum"),
	}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			logrus.WithField("limit", limitStr).Warn("Invalid limit parameter")
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		opts.Limit = limit
	}

	if users := c.Query("user"); users != "" {
		for _, u := range strings.Split(users, ",") {
			opts.Users = append(opts.Users, strings.TrimSpace(u))
		}
	}

	if start := c.Query("start"); start != "" {
		t, err := parseFlexibleDate(start)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid start date: %s", start)})
			return
		}
		opts.Start = &t
	}
	if end := c.Query("end"); end != "" {
		t, err := parseFlexibleDate(end)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid end date: %s", end)})
			return
		}
		opts.End = &t
	}

	records, err := h.analytics.FetchSessions(c.Request.Context(), url.Values{"name": {"leaderboard"}})
	if err != nil {
		logrus.WithError(err).Error("Failed to fetch counter session data")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch data"})
		return
	}

	out, err := analytics.Transform(records, opts)
	if err != nil {
		logrus.WithError(err).Warn("Data transformation error")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, out)
}
