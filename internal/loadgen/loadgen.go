// Package loadgen drives synthetic attempt traffic against a backend: each
// virtual user loops save answer, fetch summary and an occasional submit,
// mirroring how students hammer the autosave path during a real exam.
package loadgen

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-client/internal/model"
)

// Target is the slice of the API client the generator exercises.
type Target interface {
	SaveAnswer(ctx context.Context, attemptID, questionID int64, req model.SaveAnswerRequest) error
	GetAttemptSummary(ctx context.Context, attemptID int64) (*model.AttemptSummary, error)
	SubmitAttempt(ctx context.Context, attemptID int64) (*model.AttemptSummary, error)
}

// Options tune one run.
type Options struct {
	VUs        int
	Duration   time.Duration
	ThinkTime  time.Duration
	AttemptID  int64
	QuestionID int64
	// SubmitEvery submits on every Nth iteration per virtual user. Zero
	// disables submits, which is what you want against a shared attempt.
	SubmitEvery int
	Payload     json.RawMessage
}

// Runner fans the scenario out over a worker pool, one job per virtual user.
type Runner struct {
	target Target
	log    zerolog.Logger
	opts   Options
}

// New creates a Runner. Zero option fields get the standard load profile:
// 10 VUs, 30 s, 200 ms think time.
func New(target Target, log zerolog.Logger, opts Options) *Runner {
	if opts.VUs <= 0 {
		opts.VUs = 10
	}
	if opts.Duration <= 0 {
		opts.Duration = 30 * time.Second
	}
	if opts.ThinkTime < 0 {
		opts.ThinkTime = 0
	} else if opts.ThinkTime == 0 {
		opts.ThinkTime = 200 * time.Millisecond
	}
	if len(opts.Payload) == 0 {
		opts.Payload = json.RawMessage(`{"selected":["B"]}`)
	}
	return &Runner{
		target: target,
		log:    log.With().Str("component", "loadgen").Logger(),
		opts:   opts,
	}
}

// vuStats is what one virtual user brings back: raw latency samples and
// failure counts per operation.
type vuStats struct {
	samples map[string][]time.Duration
	fails   map[string]int
}

// Run blocks until the duration elapses or ctx is cancelled, then reports.
// Every virtual user's stats are merged; none are lost.
func (r *Runner) Run(ctx context.Context) Report {
	ctx, cancel := context.WithTimeout(ctx, r.opts.Duration)
	defer cancel()

	r.log.Info().
		Int("vus", r.opts.VUs).
		Dur("duration", r.opts.Duration).
		Int64("attempt_id", r.opts.AttemptID).
		Msg("load run started")

	started := time.Now()
	pool := NewPool[vuStats](r.opts.VUs, r.opts.VUs)
	for vu := 0; vu < r.opts.VUs; vu++ {
		pool.Submit(uuid.New().String(), func() vuStats {
			return r.runVU(ctx)
		})
	}
	pool.Close()

	merged := vuStats{samples: map[string][]time.Duration{}, fails: map[string]int{}}
	for i := 0; i < r.opts.VUs; i++ {
		res := <-pool.Results()
		for op, samples := range res.Output.samples {
			merged.samples[op] = append(merged.samples[op], samples...)
		}
		for op, n := range res.Output.fails {
			merged.fails[op] += n
		}
	}

	report := buildReport(merged, time.Since(started))
	r.log.Info().
		Int64("requests", report.Requests).
		Int64("failures", report.Failures).
		Msg("load run finished")
	return report
}

func (r *Runner) runVU(ctx context.Context) vuStats {
	stats := vuStats{samples: map[string][]time.Duration{}, fails: map[string]int{}}
	for iter := 0; ; iter++ {
		if ctx.Err() != nil {
			return stats
		}

		stats.measure("save_answer", func() error {
			return r.target.SaveAnswer(ctx, r.opts.AttemptID, r.opts.QuestionID, model.SaveAnswerRequest{
				AnswerPayload: r.opts.Payload,
			})
		})
		stats.measure("summary", func() error {
			_, err := r.target.GetAttemptSummary(ctx, r.opts.AttemptID)
			return err
		})
		if r.opts.SubmitEvery > 0 && iter%r.opts.SubmitEvery == 0 {
			stats.measure("submit", func() error {
				_, err := r.target.SubmitAttempt(ctx, r.opts.AttemptID)
				return err
			})
		}

		select {
		case <-ctx.Done():
			return stats
		case <-time.After(r.opts.ThinkTime):
		}
	}
}

func (s *vuStats) measure(op string, call func() error) {
	started := time.Now()
	err := call()
	s.samples[op] = append(s.samples[op], time.Since(started))
	if err != nil && !isCancel(err) {
		s.fails[op]++
	}
}

func isCancel(err error) bool {
	return err == context.Canceled || err == context.DeadlineExceeded
}

// Report is the aggregated outcome of one run.
type Report struct {
	Elapsed  time.Duration
	Requests int64
	Failures int64
	PerOp    map[string]OpStats
}

// OpStats are the latency quantiles of one operation.
type OpStats struct {
	Count    int
	Failures int
	P50      time.Duration
	P95      time.Duration
	Max      time.Duration
}

// FailureRate is failures over requests, 0 on an empty run.
func (r Report) FailureRate() float64 {
	if r.Requests == 0 {
		return 0
	}
	return float64(r.Failures) / float64(r.Requests)
}

func buildReport(merged vuStats, elapsed time.Duration) Report {
	out := Report{Elapsed: elapsed, PerOp: map[string]OpStats{}}
	for op, samples := range merged.samples {
		sorted := make([]time.Duration, len(samples))
		copy(sorted, samples)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		stats := OpStats{
			Count:    len(sorted),
			Failures: merged.fails[op],
			P50:      percentile(sorted, 50),
			P95:      percentile(sorted, 95),
		}
		if len(sorted) > 0 {
			stats.Max = sorted[len(sorted)-1]
		}
		out.PerOp[op] = stats
		out.Requests += int64(stats.Count)
		out.Failures += int64(stats.Failures)
	}
	return out
}

// percentile expects sorted input and uses nearest-rank.
func percentile(sorted []time.Duration, p int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	rank := (p*len(sorted) + 99) / 100
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}
