package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-client/internal/answer"
	"github.com/stemsi/exstem-client/internal/api"
	"github.com/stemsi/exstem-client/internal/model"
)

// State is the controller's coarse lifecycle state.
type State int

const (
	StateLoading State = iota
	StateReady
	StateSaving
	StateReadOnly
	StateFinished
)

// IndexEntry is the per-ordinal state behind the jump-to-question panel.
// Derived from each question as it is loaded or saved, never persisted.
type IndexEntry struct {
	Answered bool
	Doubt    bool
}

// Backend is the slice of the API client the controller needs. *api.Client
// satisfies it; tests substitute fakes.
type Backend interface {
	GetAttemptSummary(ctx context.Context, attemptID int64) (*model.AttemptSummary, error)
	GetAttemptQuestion(ctx context.Context, attemptID int64, no int) (*model.AttemptQuestion, error)
	SaveAnswer(ctx context.Context, attemptID, questionID int64, req model.SaveAnswerRequest) error
	SubmitAttempt(ctx context.Context, attemptID int64) (*model.AttemptSummary, error)
}

// UI receives everything the controller wants shown. The terminal renderer
// implements it; tests record calls.
type UI interface {
	ShowQuestion(q *model.AttemptQuestion, payload answer.Payload, doubt bool, no, total int)
	ShowIndex(index map[int]IndexEntry, current, total int)
	ShowStatus(msg string)
	ShowNotice(msg string)
	ShowRemaining(formatted string)
	ShowReadOnly(statusLabel, resultPath string)
	ConfirmSubmit() bool
}

// EventQueue is the telemetry surface the controller fans out to.
type EventQueue interface {
	Enqueue(eventType string, payload map[string]interface{}) bool
}

// LaunchLog records session launches for rapid-refresh detection. The journal
// satisfies it.
type LaunchLog interface {
	LastLaunch(attemptID int64) (time.Time, bool, error)
	RecordLaunch(attemptID int64, at time.Time) error
}

// Controller drives one attempt session: navigation, autosave, countdown,
// the read-only guard and telemetry fan-out. One instance per attempt,
// constructed on page entry and discarded when the session ends.
type Controller struct {
	backend  Backend
	ui       UI
	queue    EventQueue
	launches LaunchLog
	timer    *Countdown
	log      zerolog.Logger
	now      func() time.Time

	attemptID   int64
	rapidWindow time.Duration

	mu        sync.Mutex
	state     State
	status    string
	editable  bool
	busy      bool
	degraded  bool
	total     int
	current   *model.AttemptQuestion
	currentNo int
	payload   answer.Payload
	doubt     bool
	index     map[int]IndexEntry
}

// ControllerOptions carries the optional collaborators.
type ControllerOptions struct {
	Queue       EventQueue
	Launches    LaunchLog
	RapidWindow time.Duration
	Now         func() time.Time
}

// NewController builds the controller for one attempt.
func NewController(attemptID int64, backend Backend, ui UI, log zerolog.Logger, opts ControllerOptions) *Controller {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.RapidWindow <= 0 {
		opts.RapidWindow = 15 * time.Second
	}
	return &Controller{
		backend:     backend,
		ui:          ui,
		queue:       opts.Queue,
		launches:    opts.Launches,
		timer:       NewCountdown(ui.ShowRemaining),
		log:         log.With().Str("component", "session").Int64("attempt_id", attemptID).Logger(),
		now:         opts.Now,
		attemptID:   attemptID,
		rapidWindow: opts.RapidWindow,
		state:       StateLoading,
		editable:    true,
		index:       map[int]IndexEntry{},
	}
}

// Start fetches the attempt summary, starts the countdown and loads question
// one. A restart within the rapid-refresh window reports itself.
func (c *Controller) Start(ctx context.Context) error {
	c.ui.ShowStatus("Memuat attempt...")

	sum, err := c.backend.GetAttemptSummary(ctx, c.attemptID)
	if err != nil {
		c.ui.ShowStatus("Gagal memuat attempt: " + errMessage(err))
		return err
	}

	c.mu.Lock()
	c.total = sum.TotalQuestions
	if c.total < 1 {
		c.total = 1
	}
	c.status = sum.Status
	c.editable = sum.Editable()
	c.mu.Unlock()

	c.timer.Resync(sum.RemainingSecs)
	c.detectRapidRefresh()

	if err := c.LoadQuestion(ctx, 1); err != nil {
		return err
	}
	if !sum.Editable() {
		c.ForceReadOnly(sum.Status)
	}
	return nil
}

func (c *Controller) detectRapidRefresh() {
	if c.launches == nil {
		return
	}
	now := c.now()
	if last, ok, err := c.launches.LastLaunch(c.attemptID); err == nil && ok {
		if gap := now.Sub(last); gap >= 0 && gap < c.rapidWindow {
			c.enqueue(model.EventRapidRefresh, map[string]interface{}{
				"reason": "relaunch",
				"gap_ms": gap.Milliseconds(),
			}, "Peluncuran ulang cepat terdeteksi.")
		}
	}
	if err := c.launches.RecordLaunch(c.attemptID, now); err != nil {
		c.log.Debug().Err(err).Msg("launch record failed")
	}
}

// LoadQuestion fetches and displays the question at ordinal no.
func (c *Controller) LoadQuestion(ctx context.Context, no int) error {
	q, err := c.backend.GetAttemptQuestion(ctx, c.attemptID, no)
	if err != nil {
		if c.interceptWriteError(err) {
			return err
		}
		c.noteTransport(err)
		c.ui.ShowStatus(fmt.Sprintf("Gagal memuat soal nomor %d: %s", no, errMessage(err)))
		return err
	}
	c.noteRecovered()

	payload := answer.Decode(q.QuestionType, q.AnswerPayload)

	c.mu.Lock()
	c.current = q
	c.currentNo = no
	c.payload = payload
	c.doubt = q.IsDoubt
	c.index[no] = IndexEntry{Answered: answer.IsAnswered(payload), Doubt: q.IsDoubt}
	editable := c.editable
	status := c.status
	total := c.total
	index := c.snapshotIndexLocked()
	if c.state != StateReadOnly && c.state != StateFinished {
		c.state = StateReady
	}
	c.mu.Unlock()

	c.ui.ShowQuestion(q, payload, q.IsDoubt, no, total)
	c.ui.ShowIndex(index, no, total)
	if !editable {
		c.ForceReadOnly(status)
		return nil
	}
	c.ui.ShowStatus("")
	return nil
}

// SaveCurrent encodes the in-memory payload and writes it to the server.
// No-op when the attempt is read-only or nothing is loaded; empty answers are
// valid saves.
func (c *Controller) SaveCurrent(ctx context.Context) error {
	c.mu.Lock()
	if !c.editable || c.current == nil {
		c.mu.Unlock()
		return nil
	}
	q := c.current
	no := c.currentNo
	payload := c.payload
	doubt := c.doubt
	prev := c.state
	c.state = StateSaving
	c.mu.Unlock()

	err := c.backend.SaveAnswer(ctx, c.attemptID, q.QuestionID, model.SaveAnswerRequest{
		AnswerPayload: answer.Encode(payload),
		IsDoubt:       doubt,
	})

	c.mu.Lock()
	if c.state == StateSaving {
		c.state = prev
	}
	if err == nil {
		c.index[no] = IndexEntry{Answered: answer.IsAnswered(payload), Doubt: doubt}
		index := c.snapshotIndexLocked()
		current, total := c.currentNo, c.total
		c.mu.Unlock()
		c.noteRecovered()
		c.ui.ShowIndex(index, current, total)
		return nil
	}
	c.mu.Unlock()
	c.noteTransport(err)
	return err
}

// Next saves the current answer and advances one question.
func (c *Controller) Next(ctx context.Context) {
	c.mu.Lock()
	target := c.currentNo + 1
	ok := c.editable && c.currentNo < c.total
	c.mu.Unlock()
	if !ok {
		return
	}
	c.navigate(ctx, target, "Memuat soal berikutnya...")
}

// Prev saves the current answer and steps back one question.
func (c *Controller) Prev(ctx context.Context) {
	c.mu.Lock()
	target := c.currentNo - 1
	ok := c.editable && c.currentNo > 1
	c.mu.Unlock()
	if !ok {
		return
	}
	c.navigate(ctx, target, "Memuat soal sebelumnya...")
}

// Jump moves straight to ordinal no. Unlike Next/Prev it stays usable after
// the attempt turns read-only, for reviewing questions.
func (c *Controller) Jump(ctx context.Context, no int) {
	c.mu.Lock()
	ok := no >= 1 && no <= c.total && no != c.currentNo
	c.mu.Unlock()
	if !ok {
		return
	}
	c.navigate(ctx, no, fmt.Sprintf("Memuat soal nomor %d...", no))
}

// navigate is the save-then-load chain behind every movement. Overlapping
// navigations are refused while a request is in flight.
func (c *Controller) navigate(ctx context.Context, target int, loadingMsg string) {
	if !c.beginBusy() {
		return
	}
	defer c.endBusy()

	c.ui.ShowStatus(loadingMsg)

	c.mu.Lock()
	editable := c.editable
	c.mu.Unlock()

	if editable {
		if err := c.SaveCurrent(ctx); err != nil {
			if c.interceptWriteError(err) {
				return
			}
			c.ui.ShowStatus("Gagal pindah soal: " + errMessage(err))
			return
		}
	}
	if err := c.LoadQuestion(ctx, target); err == nil {
		c.log.Debug().Int("question_no", target).Msg("navigated")
	}
}

// SubmitFinal saves the current answer and finalizes the attempt, after an
// explicit confirmation. On success the session is over; the caller moves on
// to the result view.
func (c *Controller) SubmitFinal(ctx context.Context) (*model.AttemptSummary, error) {
	c.mu.Lock()
	editable := c.editable
	c.mu.Unlock()
	if !editable {
		return nil, nil
	}
	if !c.ui.ConfirmSubmit() {
		return nil, nil
	}
	if !c.beginBusy() {
		return nil, nil
	}
	defer c.endBusy()

	c.ui.ShowStatus("Memproses submit final...")
	if err := c.SaveCurrent(ctx); err != nil {
		if c.interceptWriteError(err) {
			return nil, err
		}
		c.ui.ShowStatus("Gagal submit: " + errMessage(err))
		return nil, err
	}

	sum, err := c.backend.SubmitAttempt(ctx, c.attemptID)
	if err != nil {
		if c.interceptWriteError(err) {
			return nil, err
		}
		c.ui.ShowStatus("Gagal submit: " + errMessage(err))
		return nil, err
	}

	c.timer.Stop()
	c.mu.Lock()
	c.state = StateFinished
	c.status = sum.Status
	c.editable = false
	c.mu.Unlock()
	return sum, nil
}

// ForceReadOnly performs the one-way transition to read-only. Idempotent;
// nothing re-enables writes for the lifetime of the session.
func (c *Controller) ForceReadOnly(statusLabel string) {
	if statusLabel == "" {
		statusLabel = model.StatusFinal
	}
	c.mu.Lock()
	if c.state == StateReadOnly || c.state == StateFinished {
		c.mu.Unlock()
		return
	}
	c.state = StateReadOnly
	c.status = statusLabel
	c.editable = false
	c.mu.Unlock()

	c.timer.Stop()
	c.ui.ShowReadOnly(statusLabel, fmt.Sprintf("/hasil/%d", c.attemptID))
}

// interceptWriteError maps the server's not-editable rejection, whichever
// operation raised it, to the terminal read-only transition.
func (c *Controller) interceptWriteError(err error) bool {
	if !api.IsNotEditable(err) {
		return false
	}
	c.ForceReadOnly(model.StatusSubmitted)
	return true
}

// The UI pushes selections into the controller's payload model; every change
// autosaves immediately.

// SelectOption records a single-choice selection and autosaves.
func (c *Controller) SelectOption(ctx context.Context, key string) {
	c.mutateAnswer(ctx, "Menyimpan jawaban...", "Tersimpan otomatis.", func() {
		c.payload.Select(key)
	})
}

// ToggleOption flips a multi-choice key and autosaves.
func (c *Controller) ToggleOption(ctx context.Context, key string) {
	c.mutateAnswer(ctx, "Menyimpan jawaban...", "Tersimpan otomatis.", func() {
		c.payload.Toggle(key)
	})
}

// SetStatement commits a statement's true/false choice and autosaves.
func (c *Controller) SetStatement(ctx context.Context, id string, value bool) {
	c.mutateAnswer(ctx, "Menyimpan jawaban...", "Tersimpan otomatis.", func() {
		c.payload.SetStatement(id, value)
	})
}

// SetDoubt flips the doubt flag and autosaves.
func (c *Controller) SetDoubt(ctx context.Context, doubt bool) {
	c.mutateAnswer(ctx, "Menyimpan status ragu-ragu...", "Status ragu-ragu tersimpan.", func() {
		c.doubt = doubt
	})
}

func (c *Controller) mutateAnswer(ctx context.Context, savingMsg, savedMsg string, mutate func()) {
	c.mu.Lock()
	if !c.editable || c.current == nil {
		c.mu.Unlock()
		return
	}
	mutate()
	c.mu.Unlock()

	c.ui.ShowStatus(savingMsg)
	if err := c.SaveCurrent(ctx); err != nil {
		if c.interceptWriteError(err) {
			return
		}
		c.ui.ShowStatus("Autosave gagal: " + errMessage(err))
		return
	}
	c.ui.ShowStatus(savedMsg)
}

// Suspended reports loss of focus (SIGTSTP, terminal detach). Best-effort.
func (c *Controller) Suspended(reason string) {
	c.enqueue(model.EventTabBlur, map[string]interface{}{"reason": reason},
		"Perpindahan fokus terdeteksi.")
}

// Resumed reports focus return. Best-effort.
func (c *Controller) Resumed(reason string) {
	c.enqueue(model.EventReconnect, map[string]interface{}{"reason": reason}, "")
}

func (c *Controller) enqueue(eventType string, payload map[string]interface{}, notice string) {
	if c.queue == nil {
		return
	}
	if c.queue.Enqueue(eventType, payload) && notice != "" {
		c.ui.ShowNotice(notice)
	}
}

// noteTransport marks the connection degraded when the failure never reached
// the server. A typed API error means the server answered.
func (c *Controller) noteTransport(err error) {
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		return
	}
	c.mu.Lock()
	c.degraded = true
	c.mu.Unlock()
	c.ui.ShowNotice("Koneksi terputus, sistem akan sinkron saat tersambung.")
}

// noteRecovered reports a reconnect once after a transport failure.
func (c *Controller) noteRecovered() {
	c.mu.Lock()
	wasDegraded := c.degraded
	c.degraded = false
	c.mu.Unlock()
	if wasDegraded {
		c.enqueue(model.EventReconnect, map[string]interface{}{"reason": "online"},
			"Koneksi kembali normal.")
	}
}

// State returns the coarse lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Editable reports whether writes are still permitted.
func (c *Controller) Editable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.editable
}

// CurrentNo returns the displayed question ordinal, 0 before the first load.
func (c *Controller) CurrentNo() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentNo
}

// Total returns the question count from the summary.
func (c *Controller) Total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// Index returns a copy of the jump-panel state.
func (c *Controller) Index() map[int]IndexEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotIndexLocked()
}

// Remaining exposes the countdown value in seconds.
func (c *Controller) Remaining() int64 {
	return c.timer.Remaining()
}

// Timer exposes the countdown for resyncs by the owner.
func (c *Controller) Timer() *Countdown {
	return c.timer
}

func (c *Controller) snapshotIndexLocked() map[int]IndexEntry {
	out := make(map[int]IndexEntry, len(c.index))
	for no, entry := range c.index {
		out[no] = entry
	}
	return out
}

func (c *Controller) beginBusy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return false
	}
	c.busy = true
	return true
}

func (c *Controller) endBusy() {
	c.mu.Lock()
	c.busy = false
	c.mu.Unlock()
}

func errMessage(err error) string {
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}
