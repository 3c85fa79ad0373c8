package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"mailcrew/internal/agent/ports"
	"mailcrew/internal/agent/react"
	"mailcrew/internal/approval"
	"mailcrew/internal/humanchannel"
	"mailcrew/internal/logging"
	"mailcrew/internal/mailer"
	"mailcrew/internal/observability"
	"mailcrew/internal/toolregistry"
	"mailcrew/internal/tools/askhuman"
	id "mailcrew/internal/utils/id"
)

const systemPrompt = `You are an expert billing assistant processing inbound email.
You understand email structure, can extract key information, and make
intelligent decisions about which tools to call.

NEVER respond directly to the user. ONLY use tools, forever, to interact
with the user.

Before creating any object, always check whether it already exists.`

// Catalog supplies the actions exposed to a run, already partitioned.
type Catalog interface {
	ReadOnly() []ports.ToolExecutor
	Mutating() []ports.ToolExecutor
}

// Config tunes run behavior.
type Config struct {
	ApprovalTimeout time.Duration
	RequireThought  bool
	DecisionBaseURL string
	MaxIterations   int
	Temperature     float64
	MaxTokens       int
}

// Processor runs one agent session per inbound email. It owns no mutable
// state across runs; everything run-scoped is built inside Process.
type Processor struct {
	catalog Catalog
	llm     ports.LLMClient
	sender  mailer.Sender
	store   *approval.PendingStore
	metrics *observability.MetricsCollector
	engine  *react.Engine
	cfg     Config
	logger  logging.Logger
}

// NewProcessor wires a processor from its collaborators.
func NewProcessor(
	catalog Catalog,
	llm ports.LLMClient,
	sender mailer.Sender,
	store *approval.PendingStore,
	metrics *observability.MetricsCollector,
	cfg Config,
	logger logging.Logger,
) (*Processor, error) {
	if catalog == nil {
		return nil, fmt.Errorf("processor requires an action catalog")
	}
	if llm == nil {
		return nil, fmt.Errorf("processor requires an llm client")
	}
	if sender == nil {
		return nil, fmt.Errorf("processor requires a mail sender")
	}
	if store == nil {
		return nil, fmt.Errorf("processor requires a pending store")
	}
	logger = logging.OrNop(logger)
	engine := react.NewEngine(react.Config{
		MaxIterations: cfg.MaxIterations,
		Temperature:   cfg.Temperature,
		MaxTokens:     cfg.MaxTokens,
	}, logger)
	return &Processor{
		catalog: catalog,
		llm:     llm,
		sender:  sender,
		store:   store,
		metrics: metrics,
		engine:  engine,
		cfg:     cfg,
		logger:  logger,
	}, nil
}

// Process drives one run to completion. Engine faults are logged and end
// the run; the webhook already answered, so failures surface to the user
// only as a missing reply.
func (p *Processor) Process(ctx context.Context, email EmailPayload) {
	started := time.Now()
	sessionID := sessionIDFor(email.MessageID)
	ctx = id.WithSessionID(ctx, sessionID)
	ctx = id.WithRunID(ctx, id.NewRunID())

	p.logger.Info("Processing email (session=%s, from=%s, subject=%q)",
		sessionID, email.FromAddress, email.Subject)

	channel, err := humanchannel.NewEmailChannel(p.sender, p.store, humanchannel.EmailChannelConfig{
		Recipient:       email.FromAddress,
		Subject:         email.Subject,
		InReplyTo:       email.MessageID,
		SessionID:       sessionID,
		DecisionBaseURL: p.cfg.DecisionBaseURL,
		Metrics:         p.metrics,
	}, p.logger)
	if err != nil {
		p.logger.Error("Run aborted, cannot build human channel (session=%s): %v", sessionID, err)
		p.metrics.RecordRunDuration(ctx, time.Since(started), true)
		return
	}

	registry, err := p.buildToolset(channel)
	if err != nil {
		p.logger.Error("Run aborted, cannot build toolset (session=%s): %v", sessionID, err)
		p.metrics.RecordRunDuration(ctx, time.Since(started), true)
		return
	}

	result, err := p.engine.SolveTask(ctx, systemPrompt, taskDescription(email), react.Services{
		LLM:   p.llm,
		Tools: instrumentedRegistry{inner: registry, metrics: p.metrics},
	})
	if err != nil {
		// Fatal for this run only. No retry; the next inbound email
		// starts a fresh session.
		p.logger.Error("Agent run failed (session=%s): %v", sessionID, err)
		p.metrics.RecordRunDuration(ctx, time.Since(started), true)
		return
	}

	p.logger.Info("Task completed (session=%s, iterations=%d, tokens=%d): %s",
		sessionID, result.Iterations, result.TokensUsed, result.Answer)

	if err := channel.DeliverResult(ctx, fmt.Sprintf("Task result: %s", result.Answer)); err != nil {
		p.logger.Error("Result delivery failed (session=%s): %v", sessionID, err)
	}
	p.metrics.RecordRunDuration(ctx, time.Since(started), false)
}

// buildToolset assembles the guarded tool set for one run: read-only
// actions pass through unwrapped, mutating actions go behind the approval
// gate, and ask_human gives the agent a direct line to the human.
func (p *Processor) buildToolset(channel humanchannel.Channel) (ports.ToolRegistry, error) {
	registry := toolregistry.NewRegistry()

	for _, action := range p.catalog.ReadOnly() {
		if !action.Metadata().ReadOnly {
			return nil, fmt.Errorf("action %s is not read-only and cannot pass unguarded", action.Metadata().Name)
		}
		if err := registry.Register(action); err != nil {
			return nil, err
		}
	}

	gateOpts := approval.Options{
		Timeout:        p.cfg.ApprovalTimeout,
		RequireThought: p.cfg.RequireThought,
	}
	for _, action := range p.catalog.Mutating() {
		guarded := approval.Guard(action, channel, gateOpts, p.logger)
		if err := registry.Register(guarded); err != nil {
			return nil, err
		}
	}

	if err := registry.Register(askhuman.New(channel)); err != nil {
		return nil, err
	}
	return registry, nil
}

func taskDescription(email EmailPayload) string {
	var b strings.Builder
	if len(email.PreviousThread) > 0 {
		serialized := make([]string, 0, len(email.PreviousThread))
		for _, msg := range email.PreviousThread {
			if data, err := json.Marshal(msg); err == nil {
				serialized = append(serialized, string(data))
			}
		}
		fmt.Fprintf(&b, "The previous thread is: [%s]\n\n", strings.Join(serialized, ", "))
	}
	b.WriteString("Handle this email:\n\n")
	fmt.Fprintf(&b, "From: %s\n", email.FromAddress)
	fmt.Fprintf(&b, "To: %s\n", email.ToAddress)
	fmt.Fprintf(&b, "Subject: %s\n\n", email.Subject)
	b.WriteString(email.Body)
	return b.String()
}

func sessionIDFor(messageID string) string {
	cleaned := strings.Trim(strings.TrimSpace(messageID), "<>")
	if cleaned == "" {
		return "mailcrew-" + id.NewRunID()
	}
	return "mailcrew-" + cleaned
}

// instrumentedRegistry counts tool executions without changing behavior.
type instrumentedRegistry struct {
	inner   ports.ToolRegistry
	metrics *observability.MetricsCollector
}

func (r instrumentedRegistry) Register(tool ports.ToolExecutor) error {
	return r.inner.Register(tool)
}

func (r instrumentedRegistry) List() []ports.ToolDefinition {
	return r.inner.List()
}

func (r instrumentedRegistry) Get(name string) (ports.ToolExecutor, error) {
	tool, err := r.inner.Get(name)
	if err != nil {
		return nil, err
	}
	return instrumentedTool{inner: tool, metrics: r.metrics}, nil
}

type instrumentedTool struct {
	inner   ports.ToolExecutor
	metrics *observability.MetricsCollector
}

func (t instrumentedTool) Definition() ports.ToolDefinition { return t.inner.Definition() }
func (t instrumentedTool) Metadata() ports.ToolMetadata     { return t.inner.Metadata() }

func (t instrumentedTool) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	result, err := t.inner.Execute(ctx, call)
	failed := err != nil || (result != nil && result.Error != nil)
	t.metrics.RecordToolExecution(ctx, t.inner.Metadata().Name, failed)
	return result, err
}
