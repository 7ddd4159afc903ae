// Package tui renders the exam session on a terminal. It is the session
// controller's UI implementation; all exam output goes to a single writer so
// tests can capture it.
package tui

import (
	"bufio"
	"fmt"
	"html"
	"io"
	"regexp"
	"strings"
	"sync"

	"github.com/stemsi/exstem-client/internal/answer"
	"github.com/stemsi/exstem-client/internal/model"
	"github.com/stemsi/exstem-client/internal/session"
)

var (
	tagPattern   = regexp.MustCompile(`<[^>]*>`)
	spacePattern = regexp.MustCompile(`\s+`)
)

// StripHTML flattens question HTML to plain text: tags removed, entities
// unescaped, whitespace collapsed.
func StripHTML(s string) string {
	s = tagPattern.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	return strings.TrimSpace(spacePattern.ReplaceAllString(s, " "))
}

// Screen writes the exam to out and reads confirmations from in. One writer,
// one mutex; the countdown goroutine and the command loop share it.
type Screen struct {
	mu  sync.Mutex
	out io.Writer
	in  *bufio.Reader
}

// New creates a Screen. Typically out is os.Stdout and in wraps os.Stdin.
func New(out io.Writer, in io.Reader) *Screen {
	return &Screen{out: out, in: bufio.NewReader(in)}
}

// ShowQuestion renders one question with its options or statements and the
// current selection.
func (s *Screen) ShowQuestion(q *model.AttemptQuestion, payload answer.Payload, doubt bool, no, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doubtMark := ""
	if doubt {
		doubtMark = "  [RAGU-RAGU]"
	}
	fmt.Fprintf(s.out, "\n=== Soal %d dari %d%s ===\n", no, total, doubtMark)

	if q.StimulusHTML != nil && *q.StimulusHTML != "" {
		fmt.Fprintf(s.out, "%s\n\n", StripHTML(*q.StimulusHTML))
	}
	fmt.Fprintf(s.out, "%s\n\n", StripHTML(q.StemHTML))

	switch q.QuestionType {
	case model.QuestionTypeSingleChoice:
		for _, opt := range q.Options {
			marker := " "
			if payload.Selected == opt.OptionKey {
				marker = "*"
			}
			fmt.Fprintf(s.out, "  (%s) %s. %s\n", marker, opt.OptionKey, StripHTML(opt.OptionHTML))
		}
	case model.QuestionTypeMultiChoice:
		for _, opt := range q.Options {
			marker := " "
			if payload.SelectedSet[opt.OptionKey] {
				marker = "x"
			}
			fmt.Fprintf(s.out, "  [%s] %s. %s\n", marker, opt.OptionKey, StripHTML(opt.OptionHTML))
		}
	case model.QuestionTypeStatementSet:
		for _, st := range answer.Statements(q.AnswerKey) {
			value := "-"
			if v, ok := payload.StatementValue(st.ID); ok {
				if v {
					value = "Benar"
				} else {
					value = "Salah"
				}
			}
			fmt.Fprintf(s.out, "  %s. %s  [%s]\n", st.ID, StripHTML(st.Text), value)
		}
	}
}

// ShowIndex renders the jump panel: one cell per question, answered cells
// filled, doubted cells flagged, the current cell bracketed.
func (s *Screen) ShowIndex(index map[int]session.IndexEntry, current, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var b strings.Builder
	for no := 1; no <= total; no++ {
		cell := fmt.Sprintf("%d", no)
		if entry, ok := index[no]; ok {
			if entry.Doubt {
				cell += "?"
			} else if entry.Answered {
				cell += "."
			}
		}
		if no == current {
			cell = "[" + cell + "]"
		}
		b.WriteString(cell)
		b.WriteString(" ")
	}
	fmt.Fprintf(s.out, "\nNavigasi: %s\n", strings.TrimSpace(b.String()))
}

// ShowStatus prints the transient status line. Empty clears nothing on a
// terminal; it is simply skipped.
func (s *Screen) ShowStatus(msg string) {
	if msg == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, "%s\n", msg)
}

// ShowNotice prints a proctoring or connectivity notice.
func (s *Screen) ShowNotice(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, "! %s\n", msg)
}

// ShowRemaining rewrites the countdown in place.
func (s *Screen) ShowRemaining(formatted string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, "\rSisa waktu: %s ", formatted)
}

// ShowReadOnly announces the terminal state and where the result lives.
func (s *Screen) ShowReadOnly(statusLabel, resultPath string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, "\nUjian sudah %s dan tidak dapat diubah lagi.\n", statusLabel)
	fmt.Fprintf(s.out, "Lihat hasil di %s\n", resultPath)
}

// ConfirmSubmit asks for the final confirmation. Anything but y/ya declines.
func (s *Screen) ConfirmSubmit() bool {
	s.mu.Lock()
	fmt.Fprint(s.out, "\nSubmit final? Jawaban tidak dapat diubah setelahnya. (y/N): ")
	s.mu.Unlock()

	line, err := s.in.ReadString('\n')
	if err != nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "ya", "yes":
		return true
	}
	return false
}

// Prompt prints the command prompt and reads one line. The command loop in
// cmd/examcli owns the grammar.
func (s *Screen) Prompt() (string, error) {
	s.mu.Lock()
	fmt.Fprint(s.out, "\n> ")
	s.mu.Unlock()

	line, err := s.in.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// ReadLine reads one trimmed line from the shared input reader. All line
// input must go through the Screen so nothing reads ahead of the buffer.
func (s *Screen) ReadLine() (string, error) {
	line, err := s.in.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// ShowResult renders the graded result view.
func (s *Screen) ShowResult(res *model.AttemptResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fmt.Fprintf(s.out, "\n=== Hasil Ujian ===\n")
	fmt.Fprintf(s.out, "Status : %s\n", res.Summary.Status)
	fmt.Fprintf(s.out, "Skor   : %.2f\n", res.Summary.Score)
	fmt.Fprintf(s.out, "Benar %d, salah %d, kosong %d\n",
		res.Summary.TotalCorrect, res.Summary.TotalWrong, res.Summary.TotalUnanswered)
	if len(res.Items) == 0 {
		fmt.Fprintln(s.out, "Rincian jawaban tidak tersedia untuk ujian ini.")
		return
	}
	for i, item := range res.Items {
		verdict := "tidak dinilai"
		if item.IsCorrect != nil {
			if *item.IsCorrect {
				verdict = "benar"
			} else {
				verdict = "salah"
			}
		}
		fmt.Fprintf(s.out, "  Soal %d: %s (%.2f)\n", i+1, verdict, item.EarnedScore)
	}
}
