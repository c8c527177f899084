package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Skufu/cardiorisk/internal/batch"
	"github.com/Skufu/cardiorisk/internal/clinical"
	"github.com/Skufu/cardiorisk/internal/form"
	"github.com/Skufu/cardiorisk/internal/model"
	"github.com/Skufu/cardiorisk/internal/report"
)

const defaultHistoryLimit = 20

func (h *handler) assess(c *gin.Context) {
	var raw map[string]any
	if err := c.ShouldBindJSON(&raw); err != nil {
		badRequest(c, "expected a JSON object of clinical fields")
		return
	}
	in, err := clinical.Parse(raw)
	if err != nil {
		h.fail(c, err)
		return
	}
	a, err := h.Assessor.Assess(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"assessment": a})
}

func (h *handler) symptoms(c *gin.Context) {
	var req clinical.Symptoms
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid symptoms payload")
		return
	}
	values, err := clinical.SymptomDefaults(req)
	if err != nil {
		h.fail(c, err)
		return
	}

	id := c.Query("session")
	if id == "" {
		c.JSON(http.StatusOK, gin.H{"values": values})
		return
	}
	s, err := h.Sessions.Get(id)
	if err != nil {
		h.fail(c, err)
		return
	}
	for _, f := range clinical.Fields {
		if err := s.EditField(f, values[f]); err != nil {
			h.respond(c, s, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"values": values, "session": s.Snapshot()})
}

func (h *handler) batch(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "multipart field \"file\" is required")
		return
	}
	f, err := fh.Open()
	if err != nil {
		h.fail(c, err)
		return
	}
	defer f.Close()

	rows, err := batch.ParseFile(fh.Filename, f)
	if err != nil {
		status, body := errorResponse(err)
		if status == http.StatusInternalServerError {
			status, body = http.StatusUnprocessableEntity, gin.H{"error": "invalid_file", "message": err.Error()}
		}
		_ = c.Error(err)
		c.JSON(status, body)
		return
	}

	records := h.Batch.RunAll(c.Request.Context(), rows)
	summary := batch.Summarize(records)
	h.log.Info("batch upload assessed",
		zap.String("file", fh.Filename),
		zap.Int("rows", summary.Total),
		zap.Int("failed", summary.Failed),
	)

	if c.Query("format") == "csv" {
		c.Header("Content-Disposition", `attachment; filename="batch_results.csv"`)
		c.Header("Content-Type", "text/csv; charset=utf-8")
		c.Status(http.StatusOK)
		if err := batch.WriteCSV(c.Writer, records); err != nil {
			h.log.Error("write batch csv", zap.Error(err))
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"summary": summary, "records": records})
}

func (h *handler) history(c *gin.Context) {
	limit := defaultHistoryLimit
	if q := c.Query("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 0 {
			badRequest(c, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	if h.History == nil {
		c.JSON(http.StatusOK, gin.H{"entries": []model.HistoryEntry{}})
		return
	}
	entries, err := h.History.List(c.Request.Context(), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	if entries == nil {
		entries = []model.HistoryEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (h *handler) report(c *gin.Context) {
	var a model.Assessment
	if err := c.ShouldBindJSON(&a); err != nil {
		badRequest(c, "expected an assessment")
		return
	}
	if !a.Prediction.Tier.Valid() {
		badRequest(c, "assessment has no valid model tier")
		return
	}
	for _, f := range a.Flags {
		if !f.Severity.Valid() {
			badRequest(c, "flag "+f.RuleID+" has no valid severity")
			return
		}
	}

	now := time.Now().UTC()
	if c.Query("format") == "markdown" {
		c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(report.Markdown(&a, now)))
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", report.HTML(&a, now))
}

type chatRequest struct {
	Question  string         `json:"question"`
	SessionID string         `json:"sessionId"`
	Input     map[string]any `json:"input"`
}

func (h *handler) chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Question == "" {
		badRequest(c, "question is required")
		return
	}

	var last *model.ClinicalInput
	switch {
	case req.SessionID != "":
		s, err := h.Sessions.Get(req.SessionID)
		if err != nil {
			h.fail(c, err)
			return
		}
		if snap := s.Snapshot(); snap.Result != nil {
			in := snap.Result.Input
			last = &in
		}
	case req.Input != nil:
		in, err := clinical.Parse(req.Input)
		if err != nil {
			h.fail(c, err)
			return
		}
		last = &in
	}

	c.JSON(http.StatusOK, h.Bot.Reply(c.Request.Context(), req.Question, last))
}

func (h *handler) rules(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rules": h.Assessor.Rules()})
}

type fieldInfo struct {
	Name    string            `json:"name"`
	Title   string            `json:"title"`
	Options []clinical.Option `json:"options,omitempty"`
}

func (h *handler) fields(c *gin.Context) {
	out := make([]fieldInfo, len(clinical.Fields))
	for i, f := range clinical.Fields {
		out[i] = fieldInfo{Name: f, Title: clinical.Titles[f], Options: clinical.Options(f)}
	}
	c.JSON(http.StatusOK, gin.H{"steps": form.Steps, "fields": out})
}
