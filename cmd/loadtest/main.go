package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/stemsi/exstem-client/internal/api"
	"github.com/stemsi/exstem-client/internal/config"
	"github.com/stemsi/exstem-client/internal/loadgen"
	"github.com/stemsi/exstem-client/internal/logger"
	"github.com/stemsi/exstem-client/internal/model"
	"github.com/stemsi/exstem-client/internal/validator"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()
	if problems := validator.Check(cfg); problems != nil {
		for field, msg := range problems {
			log.Error().Str("field", field).Msg(msg)
		}
		log.Fatal().Msg("Invalid configuration")
	}

	// ─── Flags ─────────────────────────────────────────────────────────
	var (
		attemptID   = flag.Int64("attempt", 0, "attempt id to hammer (required)")
		questionID  = flag.Int64("question", 0, "question id for autosaves (required)")
		vus         = flag.Int("vus", 10, "virtual users")
		duration    = flag.Duration("duration", 30*time.Second, "run duration")
		thinkTime   = flag.Duration("think", 200*time.Millisecond, "per-iteration sleep")
		submitEvery = flag.Int("submit-every", 0, "submit on every Nth iteration (0 = never)")
		payload     = flag.String("payload", `{"selected":["B"]}`, "answer payload JSON")
		identifier  = flag.String("user", os.Getenv("LOADTEST_IDENTIFIER"), "login identifier")
		password    = flag.String("password", os.Getenv("LOADTEST_PASSWORD"), "login password")
	)
	flag.Parse()

	if *attemptID == 0 || *questionID == 0 {
		flag.Usage()
		os.Exit(2)
	}
	if !json.Valid([]byte(*payload)) {
		log.Fatal().Str("payload", *payload).Msg("Payload is not valid JSON")
	}

	ctx := context.Background()

	// ─── API Client ────────────────────────────────────────────────────
	client, err := api.New(cfg.BaseURL, cfg.HTTPTimeout, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create API client")
	}

	if *identifier != "" {
		if _, err := client.LoginPassword(ctx, model.LoginPasswordRequest{
			Identifier: *identifier,
			Password:   *password,
		}); err != nil {
			log.Fatal().Err(err).Msg("Login failed")
		}
		defer client.Logout(context.Background())
	}

	// ─── Run ───────────────────────────────────────────────────────────
	runner := loadgen.New(client, log, loadgen.Options{
		VUs:         *vus,
		Duration:    *duration,
		ThinkTime:   *thinkTime,
		AttemptID:   *attemptID,
		QuestionID:  *questionID,
		SubmitEvery: *submitEvery,
		Payload:     json.RawMessage(*payload),
	})
	report := runner.Run(ctx)

	// ─── Report ────────────────────────────────────────────────────────
	fmt.Printf("\nDuration  %s\n", report.Elapsed.Round(time.Millisecond))
	fmt.Printf("Requests  %d\n", report.Requests)
	fmt.Printf("Failures  %d (%.2f%%)\n", report.Failures, report.FailureRate()*100)
	for op, stats := range report.PerOp {
		fmt.Printf("  %-12s n=%-6d fail=%-4d p50=%-10s p95=%-10s max=%s\n",
			op, stats.Count, stats.Failures,
			stats.P50.Round(time.Millisecond),
			stats.P95.Round(time.Millisecond),
			stats.Max.Round(time.Millisecond))
	}

	// More than 5% failed requests counts as a failed run.
	if report.FailureRate() >= 0.05 {
		os.Exit(1)
	}
}
