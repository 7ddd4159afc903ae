package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/stemsi/exstem-client/internal/api"
	"github.com/stemsi/exstem-client/internal/config"
	"github.com/stemsi/exstem-client/internal/journal"
	"github.com/stemsi/exstem-client/internal/logger"
	"github.com/stemsi/exstem-client/internal/model"
	"github.com/stemsi/exstem-client/internal/session"
	"github.com/stemsi/exstem-client/internal/telemetry"
	"github.com/stemsi/exstem-client/internal/tui"
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── API Client ────────────────────────────────────────────────────
	client, err := api.New(cfg.BaseURL, cfg.HTTPTimeout, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create API client")
	}

	screen := tui.New(os.Stdout, os.Stdin)

	// ─── Login ─────────────────────────────────────────────────────────
	user, err := login(ctx, client, screen)
	if err != nil {
		log.Fatal().Err(err).Msg("Login failed")
	}
	fmt.Printf("Selamat datang, %s.\n", user.FullName)
	defer client.Logout(context.Background())

	// ─── Pick Exam, Start Attempt ──────────────────────────────────────
	attempt, err := pickAndStart(ctx, client, screen)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start attempt")
	}
	log.Info().Int64("attempt_id", attempt.ID).Msg("attempt started")

	// ─── Local Journal ─────────────────────────────────────────────────
	var jrn *journal.Journal
	if cfg.JournalPath != "" {
		jrn, err = journal.Open(cfg.JournalPath)
		if err != nil {
			log.Warn().Err(err).Msg("Journal unavailable, continuing without it")
			jrn = nil
		} else {
			defer jrn.Close()
		}
	}

	// ─── Telemetry Queue ───────────────────────────────────────────────
	queueOpts := telemetry.Options{
		DefaultInterval: cfg.EventMinInterval,
		MinInterval: map[string]time.Duration{
			model.EventRapidRefresh: cfg.RapidRefreshInterval,
		},
		Capacity: cfg.EventQueueCap,
	}
	if jrn != nil {
		queueOpts.Spool = jrn
	}
	queue := telemetry.NewQueue(attempt.ID, client, log, queueOpts)
	go queue.Run(ctx)

	// ─── Session Controller ────────────────────────────────────────────
	ctrlOpts := session.ControllerOptions{
		Queue:       queue,
		RapidWindow: cfg.RapidRefreshInterval,
	}
	if jrn != nil {
		ctrlOpts.Launches = jrn
	}
	ctrl := session.NewController(attempt.ID, client, screen, log, ctrlOpts)
	if err := ctrl.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to load attempt")
	}

	// ─── Suspend/Resume Signals ────────────────────────────────────────
	go watchSignals(ctrl)

	// ─── Command Loop ──────────────────────────────────────────────────
	runCommandLoop(ctx, ctrl, client, screen, attempt.ID)
}

func login(ctx context.Context, client *api.Client, screen *tui.Screen) (*model.User, error) {
	fmt.Println("=== Login Ujian ===")
	fmt.Print("Username/email: ")
	identifier, err := screen.ReadLine()
	if err != nil {
		return nil, err
	}

	fmt.Print("Password: ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return nil, err
	}

	req := model.LoginPasswordRequest{
		Identifier: model.NormalizeCredential(identifier),
		Password:   model.NormalizeCredential(string(bytePassword)),
	}
	if problems := validator.Check(req); problems != nil {
		for field, msg := range problems {
			fmt.Printf("  %s: %s\n", field, msg)
		}
		return nil, fmt.Errorf("invalid credentials input")
	}
	return client.LoginPassword(ctx, req)
}

func pickAndStart(ctx context.Context, client *api.Client, screen *tui.Screen) (*model.Attempt, error) {
	subjects, err := client.ListSubjects(ctx, "", "")
	if err != nil {
		return nil, err
	}
	if len(subjects) == 0 {
		return nil, fmt.Errorf("no subjects available")
	}

	fmt.Println("\nMata pelajaran:")
	for i, s := range subjects {
		fmt.Printf("  %d. %s (%s)\n", i+1, s.Name, s.EducationLevel)
	}
	subject, err := pickOne(screen, len(subjects), "Pilih mata pelajaran")
	if err != nil {
		return nil, err
	}

	exams, err := client.ListExams(ctx, subjects[subject].ID)
	if err != nil {
		return nil, err
	}
	if len(exams) == 0 {
		return nil, fmt.Errorf("no exams available for %s", subjects[subject].Name)
	}

	fmt.Println("\nUjian:")
	for i, e := range exams {
		fmt.Printf("  %d. %s [%s]\n", i+1, e.Title, e.Code)
	}
	exam, err := pickOne(screen, len(exams), "Pilih ujian")
	if err != nil {
		return nil, err
	}

	fmt.Print("Token ujian (kosongkan jika tidak ada): ")
	token, err := screen.ReadLine()
	if err != nil {
		return nil, err
	}

	return client.StartAttempt(ctx, model.StartAttemptRequest{
		ExamID:    exams[exam].ID,
		ExamToken: strings.ToUpper(strings.TrimSpace(token)),
	})
}

func pickOne(screen *tui.Screen, n int, prompt string) (int, error) {
	for {
		fmt.Printf("%s (1-%d): ", prompt, n)
		line, err := screen.ReadLine()
		if err != nil {
			return 0, err
		}
		choice, err := strconv.Atoi(line)
		if err == nil && choice >= 1 && choice <= n {
			return choice - 1, nil
		}
		fmt.Println("Pilihan tidak valid.")
	}
}

// watchSignals maps terminal suspend and resume to focus telemetry.
func watchSignals(ctrl *session.Controller) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGTSTP, syscall.SIGCONT)
	for sig := range sigs {
		switch sig {
		case syscall.SIGTSTP:
			ctrl.Suspended("sigtstp")
		case syscall.SIGCONT:
			ctrl.Resumed("sigcont")
		}
	}
}

func runCommandLoop(ctx context.Context, ctrl *session.Controller, client *api.Client, screen *tui.Screen, attemptID int64) {
	help := `Perintah:
  n / next          soal berikutnya
  p / prev          soal sebelumnya
  j <nomor>         lompat ke soal
  a <kunci>         pilih jawaban (pg tunggal)
  t <kunci>         centang/hapus pilihan (multi jawaban)
  s <id> b|s        jawab pernyataan benar/salah
  r                 tandai/lepas ragu-ragu
  submit            submit final
  hasil             lihat hasil (setelah submit)
  q                 keluar`
	fmt.Println(help)

	doubt := false
	for {
		line, err := screen.Prompt()
		if err != nil {
			return
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "n", "next":
			ctrl.Next(ctx)
		case "p", "prev":
			ctrl.Prev(ctx)
		case "j":
			if len(fields) < 2 {
				fmt.Println("Gunakan: j <nomor>")
				continue
			}
			no, err := strconv.Atoi(fields[1])
			if err != nil {
				fmt.Println("Nomor tidak valid.")
				continue
			}
			ctrl.Jump(ctx, no)
		case "a":
			if len(fields) < 2 {
				fmt.Println("Gunakan: a <kunci>")
				continue
			}
			ctrl.SelectOption(ctx, strings.ToUpper(fields[1]))
		case "t":
			if len(fields) < 2 {
				fmt.Println("Gunakan: t <kunci>")
				continue
			}
			ctrl.ToggleOption(ctx, strings.ToUpper(fields[1]))
		case "s":
			if len(fields) < 3 {
				fmt.Println("Gunakan: s <id> b|s")
				continue
			}
			value := strings.EqualFold(fields[2], "b") || strings.EqualFold(fields[2], "benar")
			ctrl.SetStatement(ctx, fields[1], value)
		case "r":
			doubt = !doubt
			ctrl.SetDoubt(ctx, doubt)
		case "submit":
			if sum, err := ctrl.SubmitFinal(ctx); err == nil && sum != nil {
				fmt.Println("Ujian berhasil disubmit.")
				showResult(ctx, client, screen, attemptID)
				return
			}
		case "hasil":
			showResult(ctx, client, screen, attemptID)
		case "q", "quit", "exit":
			return
		case "help", "?":
			fmt.Println(help)
		default:
			fmt.Println("Perintah tidak dikenal. Ketik ? untuk bantuan.")
		}
	}
}

func showResult(ctx context.Context, client *api.Client, screen *tui.Screen, attemptID int64) {
	res, err := client.GetAttemptResult(ctx, attemptID)
	if err != nil {
		fmt.Println("Hasil belum tersedia: " + err.Error())
		return
	}
	screen.ShowResult(res)
}
