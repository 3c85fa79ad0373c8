package humanchannel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"mailcrew/internal/agent/ports"
	"mailcrew/internal/approval"
	"mailcrew/internal/logging"
	"mailcrew/internal/mailer"
	"mailcrew/internal/observability"
	id "mailcrew/internal/utils/id"
)

// EmailChannel implements Channel over threaded email replies. Approval
// prompts and results are sent into the conversation identified by
// (recipient, inReplyTo); decisions come back through the pending store via
// the approvals HTTP endpoint.
type EmailChannel struct {
	sender    mailer.Sender
	store     *approval.PendingStore
	metrics   *observability.MetricsCollector
	logger    logging.Logger
	recipient string
	subject   string
	inReplyTo string
	sessionID string

	// decisionBaseURL, when set, is embedded in approval emails so the
	// human can follow a link instead of crafting a request by hand.
	decisionBaseURL string
}

// EmailChannelConfig scopes a channel to one inbound email.
type EmailChannelConfig struct {
	Recipient       string // the original sender's address
	Subject         string // the original subject, reused for threading
	InReplyTo       string // the inbound message id
	SessionID       string
	DecisionBaseURL string
	Metrics         *observability.MetricsCollector
}

// NewEmailChannel constructs a channel scoped to one conversation.
func NewEmailChannel(sender mailer.Sender, store *approval.PendingStore, cfg EmailChannelConfig, logger logging.Logger) (*EmailChannel, error) {
	if sender == nil {
		return nil, fmt.Errorf("email channel requires a mail sender")
	}
	if store == nil {
		return nil, fmt.Errorf("email channel requires a pending store")
	}
	if strings.TrimSpace(cfg.Recipient) == "" {
		return nil, fmt.Errorf("email channel requires a recipient")
	}
	return &EmailChannel{
		sender:          sender,
		store:           store,
		metrics:         cfg.Metrics,
		logger:          logging.OrNop(logger),
		recipient:       cfg.Recipient,
		subject:         replySubject(cfg.Subject),
		inReplyTo:       cfg.InReplyTo,
		sessionID:       cfg.SessionID,
		decisionBaseURL: strings.TrimRight(cfg.DecisionBaseURL, "/"),
	}, nil
}

// RequestApproval sends an approval prompt into the thread and blocks until
// a decision arrives or the context expires. A deadline expiry resolves as
// a synthetic timed-out denial rather than an error, so the gate can report
// it to the agent as an observable outcome.
func (c *EmailChannel) RequestApproval(ctx context.Context, request *ports.ApprovalRequest) (*ports.Decision, error) {
	ch, err := c.store.Add(request)
	if err != nil {
		return nil, err
	}

	if err := c.sender.Send(ctx, mailer.Message{
		To:        c.recipient,
		Subject:   c.subject,
		Text:      c.approvalBody(request),
		InReplyTo: c.inReplyTo,
	}); err != nil {
		c.store.Remove(request.ID)
		return nil, fmt.Errorf("send approval prompt: %w", err)
	}

	c.logger.Info("Approval prompt sent (request=%s, tool=%s, to=%s)",
		request.ID, request.ToolName, c.recipient)
	c.metrics.RecordApprovalRequested(ctx, request.ToolName)

	select {
	case decision := <-ch:
		return &decision, nil
	case <-ctx.Done():
		c.store.Remove(request.ID)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			c.metrics.RecordApprovalResolved(ctx, "timeout")
			return &ports.Decision{Approved: false, TimedOut: true}, nil
		}
		return nil, ctx.Err()
	}
}

// RequestInput reuses the approval mechanism for free-text questions: the
// human's comment is the answer, whatever the approved flag says.
func (c *EmailChannel) RequestInput(ctx context.Context, question string) (string, error) {
	request := &ports.ApprovalRequest{
		ID:        id.NewApprovalID(),
		ToolName:  "ask_human",
		Thought:   question,
		SessionID: c.sessionID,
	}
	ch, err := c.store.Add(request)
	if err != nil {
		return "", err
	}

	body := fmt.Sprintf("The billing agent has a question:\n\n%s\n\n%s",
		question, c.decisionFooter(request.ID))
	if err := c.sender.Send(ctx, mailer.Message{
		To:        c.recipient,
		Subject:   c.subject,
		Text:      body,
		InReplyTo: c.inReplyTo,
	}); err != nil {
		c.store.Remove(request.ID)
		return "", fmt.Errorf("send question: %w", err)
	}

	select {
	case decision := <-ch:
		return decision.Comment, nil
	case <-ctx.Done():
		c.store.Remove(request.ID)
		return "", ctx.Err()
	}
}

// DeliverResult sends the final outcome into the thread.
func (c *EmailChannel) DeliverResult(ctx context.Context, text string) error {
	return c.sender.Send(ctx, mailer.Message{
		To:        c.recipient,
		Subject:   c.subject,
		Text:      text,
		InReplyTo: c.inReplyTo,
	})
}

func (c *EmailChannel) approvalBody(request *ports.ApprovalRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The billing agent wants to run %s with:\n\n", request.ToolName)
	if args, err := json.MarshalIndent(request.Arguments, "", "  "); err == nil {
		b.WriteString(string(args))
		b.WriteString("\n")
	}
	if request.Thought != "" {
		fmt.Fprintf(&b, "\nAgent justification: %s\n", request.Thought)
	}
	b.WriteString("\n")
	b.WriteString(c.decisionFooter(request.ID))
	return b.String()
}

func (c *EmailChannel) decisionFooter(requestID string) string {
	if c.decisionBaseURL != "" {
		return fmt.Sprintf("Approve or deny: %s/api/v1/approvals/%s/decision (request id %s)",
			c.decisionBaseURL, requestID, requestID)
	}
	return fmt.Sprintf("Request id: %s", requestID)
}

func replySubject(subject string) string {
	trimmed := strings.TrimSpace(subject)
	if trimmed == "" {
		return "Re: your request"
	}
	if strings.HasPrefix(strings.ToLower(trimmed), "re:") {
		return trimmed
	}
	return "Re: " + trimmed
}
