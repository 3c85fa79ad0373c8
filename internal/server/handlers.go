package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"mailcrew/internal/agent/ports"
	"mailcrew/internal/session"
)

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Hello World"})
}

// handleEmailWebhook accepts inbound email notifications. It always
// answers 200 for well-formed payloads so the mail provider never
// retries: disallowed senders and duplicates are dropped silently
// after logging.
func (s *Server) handleEmailWebhook(c *gin.Context) {
	var payload session.EmailPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid email payload: " + err.Error()})
		return
	}

	s.metrics.RecordWebhookReceived(c.Request.Context())

	sender := strings.TrimSpace(payload.FromAddress)
	if !s.cfg.SenderAllowed(sender) {
		s.logger.Warn("Dropping email from unauthorized sender %s (message %s)", sender, payload.MessageID)
		s.metrics.RecordWebhookRejected(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"message": "Email received"})
		return
	}

	if payload.MessageID != "" {
		if _, seen := s.dedupCache.Get(payload.MessageID); seen {
			s.logger.Info("Dropping duplicate webhook delivery for message %s", payload.MessageID)
			s.metrics.RecordWebhookDuplicate(c.Request.Context())
			c.JSON(http.StatusOK, gin.H{"message": "Email received"})
			return
		}
		s.dedupCache.Add(payload.MessageID, s.now())
	}

	s.logger.Info("Accepted email from %s: %q (message %s)", sender, payload.Subject, payload.MessageID)
	s.dispatch(payload)

	c.JSON(http.StatusOK, gin.H{"message": "Email received"})
}

func (s *Server) handleGetApproval(c *gin.Context) {
	request, ok := s.store.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "approval request not found"})
		return
	}
	c.JSON(http.StatusOK, request)
}

type decisionBody struct {
	Approved bool   `json:"approved"`
	Comment  string `json:"comment"`
}

// handleDecision resolves a pending approval. Unknown or already
// resolved requests get 404; the webhook run that created them may
// have timed out in the meantime.
func (s *Server) handleDecision(c *gin.Context) {
	id := c.Param("id")

	var body decisionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid decision payload: " + err.Error()})
		return
	}

	if err := s.store.Resolve(id, ports.Decision{Approved: body.Approved, Comment: body.Comment}); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	outcome := "denied"
	if body.Approved {
		outcome = "approved"
	}
	s.metrics.RecordApprovalResolved(c.Request.Context(), outcome)
	s.logger.Info("Approval %s resolved: approved=%v", id, body.Approved)
	c.JSON(http.StatusOK, gin.H{"message": "Decision recorded"})
}
