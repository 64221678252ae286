/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/friendsincode/confplanner/internal/audit"
	"github.com/friendsincode/confplanner/internal/models"
)

const defaultAuditLimit = 100

type auditPage struct {
	AuditLogs []models.AuditLog `json:"audit_logs"`
	Total     int64             `json:"total"`
	Limit     int               `json:"limit"`
	Offset    int               `json:"offset"`
}

// handleAuditList pages through the audit trail, newest first.
func (a *API) handleAuditList(w http.ResponseWriter, r *http.Request) {
	if a.auditSvc == nil {
		writeError(w, http.StatusServiceUnavailable, "audit_disabled")
		return
	}

	filters, err := auditFiltersFrom(r.URL.Query())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_filter", "detail": err.Error()})
		return
	}

	logs, total, err := a.auditSvc.Query(r.Context(), filters)
	if err != nil {
		a.logger.Error().Err(err).Msg("failed to query audit logs")
		writeError(w, http.StatusInternalServerError, "query_failed")
		return
	}
	if logs == nil {
		logs = []models.AuditLog{}
	}

	writeJSON(w, http.StatusOK, auditPage{
		AuditLogs: logs,
		Total:     total,
		Limit:     filters.Limit,
		Offset:    filters.Offset,
	})
}

func auditFiltersFrom(q url.Values) (audit.QueryFilters, error) {
	filters := audit.QueryFilters{Limit: defaultAuditLimit}

	if v := q.Get("user_id"); v != "" {
		filters.UserID = &v
	}
	if v := q.Get("action"); v != "" {
		action := models.AuditAction(v)
		filters.Action = &action
	}
	filters.ResourceType = q.Get("resource_type")

	for _, tf := range []struct {
		key string
		dst **time.Time
	}{
		{"start_time", &filters.StartTime},
		{"end_time", &filters.EndTime},
	} {
		v := q.Get(tf.key)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filters, fmt.Errorf("%s must be RFC 3339", tf.key)
		}
		*tf.dst = &t
	}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return filters, fmt.Errorf("limit must be a positive integer")
		}
		filters.Limit = min(n, audit.MaxQueryLimit)
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filters, fmt.Errorf("offset must be a non-negative integer")
		}
		filters.Offset = n
	}
	return filters, nil
}
