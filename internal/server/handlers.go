package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"nerapi/internal/audit"
	"nerapi/internal/extract"
	"nerapi/internal/metrics"
	"nerapi/internal/stats"
)

type HealthResponse struct {
	Status     string `json:"status"`
	Model      string `json:"model"`
	Port       int    `json:"port"`
	ModelState string `json:"model_state,omitempty"`
}

type ExtractResponse struct {
	Model    string           `json:"model"`
	Entities []extract.Entity `json:"entities"`
}

func (s *Server) health(c *gin.Context) {
	resp := HealthResponse{Status: "ok", Model: s.cfg.Model, Port: s.cfg.Port}
	if s.state != nil {
		resp.ModelState = s.state()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) extract(c *gin.Context) {
	start := time.Now()
	entry := audit.Entry{RequestID: requestID(c), Model: s.cfg.Model}
	defer func() {
		entry.Status = c.Writer.Status()
		entry.LatencyMs = float64(time.Since(start).Microseconds()) / 1000
		if err := s.audit.Log(entry); err != nil {
			s.log.Warn("Failed to write audit entry", "error", err)
		}
	}()

	var req extract.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		entry.Outcome = metrics.OutcomeInvalid
		entry.Error = err.Error()
		_ = c.Error(err)
		respondError(c, http.StatusUnprocessableEntity, ErrInvalidInputCode, "request body must be a JSON object: "+err.Error())
		return
	}
	entry.TextBytes = len(req.Text)
	for _, et := range req.Entities {
		entry.Labels = append(entry.Labels, et.Name)
	}

	entities, err := s.extractor.Extract(c.Request.Context(), req)
	if err != nil {
		status, code := classify(err)
		entry.Outcome = metrics.OutcomeError
		if status == http.StatusUnprocessableEntity {
			entry.Outcome = metrics.OutcomeInvalid
		}
		entry.Error = err.Error()
		_ = c.Error(err)
		respondError(c, status, code, err.Error())
		return
	}

	entry.Outcome = metrics.OutcomeOK
	entry.Extracted = map[string]int{}
	for _, e := range entities {
		entry.Extracted[e.Label]++
	}
	if entities == nil {
		entities = []extract.Entity{}
	}
	c.JSON(http.StatusOK, ExtractResponse{Model: s.cfg.Model, Entities: entities})
}

func (s *Server) stats(c *gin.Context) {
	var entries []audit.Entry
	if s.auditPath != "" {
		var err error
		entries, err = audit.ParseFile(s.auditPath)
		if err != nil {
			_ = c.Error(err)
			respondError(c, http.StatusInternalServerError, ErrInternalCode, "read audit log: "+err.Error())
			return
		}
	}
	c.JSON(http.StatusOK, stats.CollectFromEntries(entries, stats.Options{
		Now:    time.Now().UTC(),
		Status: "running",
		Model:  s.cfg.Model,
		Uptime: time.Since(s.startedAt),
		Port:   s.cfg.Port,
	}))
}
