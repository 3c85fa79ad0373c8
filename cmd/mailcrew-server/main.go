package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mailcrew/internal/approval"
	"mailcrew/internal/billing"
	"mailcrew/internal/config"
	"mailcrew/internal/llm"
	"mailcrew/internal/logging"
	"mailcrew/internal/mailer"
	"mailcrew/internal/observability"
	"mailcrew/internal/server"
	"mailcrew/internal/session"
)

func main() {
	logger := logging.NewComponentLogger("Main")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}
	logging.SetLevel(logging.ParseLevel(cfg.LogLevel))

	logger.Info("Starting mailcrew server...")
	logger.Info("Configuration: %s", cfg.Describe())

	catalog, err := billing.NewCatalog(cfg.StripeSecretKey, logging.NewComponentLogger("Billing"))
	if err != nil {
		log.Fatalf("Failed to build billing catalog: %v", err)
	}

	llmClient, err := llm.NewOpenAIClient(cfg.LLMModel, llm.Config{
		APIKey:     cfg.LLMAPIKey,
		BaseURL:    cfg.LLMBaseURL,
		MaxRetries: cfg.LLMMaxRetries,
	})
	if err != nil {
		log.Fatalf("Failed to build LLM client: %v", err)
	}

	sender, err := mailer.NewClient(mailer.Config{
		APIURL:  cfg.MailAPIURL,
		APIKey:  cfg.MailAPIKey,
		From:    cfg.MailFrom,
		Timeout: cfg.MailTimeout,
	}, logging.NewComponentLogger("Mailer"))
	if err != nil {
		log.Fatalf("Failed to build mail client: %v", err)
	}

	metrics, err := observability.NewMetricsCollector(observability.MetricsConfig{Enabled: cfg.MetricsEnabled})
	if err != nil {
		log.Fatalf("Failed to build metrics collector: %v", err)
	}

	store := approval.NewPendingStore()

	processor, err := session.NewProcessor(catalog, llmClient, sender, store, metrics, session.Config{
		ApprovalTimeout: cfg.ApprovalTimeout,
		RequireThought:  cfg.RequireThought,
		DecisionBaseURL: cfg.ApprovalBaseURL,
		MaxIterations:   cfg.MaxIterations,
		Temperature:     cfg.LLMTemperature,
		MaxTokens:       cfg.LLMMaxTokens,
	}, logging.NewComponentLogger("Session"))
	if err != nil {
		log.Fatalf("Failed to build session processor: %v", err)
	}

	srv, err := server.New(cfg, processor, store, metrics, logging.NewComponentLogger("Server"))
	if err != nil {
		log.Fatalf("Failed to build server: %v", err)
	}

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server stopped")
}
