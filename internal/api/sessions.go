package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Skufu/cardiorisk/internal/form"
)

func (h *handler) session(c *gin.Context) (*form.Session, bool) {
	s, err := h.Sessions.Get(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return nil, false
	}
	return s, true
}

func (h *handler) createSession(c *gin.Context) {
	s := h.Sessions.Create()
	c.JSON(http.StatusCreated, gin.H{"session": s.Snapshot(), "steps": form.Steps})
}

func (h *handler) getSession(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": s.Snapshot()})
}

func (h *handler) deleteSession(c *gin.Context) {
	if err := h.Sessions.Delete(c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type fieldRequest struct {
	Value any `json:"value"`
}

func (h *handler) editField(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req fieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "expected {\"value\": ...}")
		return
	}
	h.respond(c, s, s.EditField(c.Param("field"), req.Value))
}

func (h *handler) advance(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	h.respond(c, s, s.Advance(c.Request.Context()))
}

func (h *handler) retreat(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	h.respond(c, s, s.Retreat())
}

func (h *handler) retry(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	h.respond(c, s, s.Retry(c.Request.Context()))
}

func (h *handler) reset(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	s.Reset()
	h.respond(c, s, nil)
}

// respond returns the session snapshot next to the outcome of an operation.
func (h *handler) respond(c *gin.Context, s *form.Session, err error) {
	if err == nil {
		c.JSON(http.StatusOK, gin.H{"session": s.Snapshot()})
		return
	}
	status, body := errorResponse(err)
	if status == http.StatusInternalServerError {
		h.log.Error("session operation failed", zap.String("session", s.ID()), zap.Error(err))
	}
	_ = c.Error(err)
	body["session"] = s.Snapshot()
	c.JSON(status, body)
}
