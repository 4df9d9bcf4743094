package progress

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"

	"github.com/safepay-org/safepay/internal/usecase"
)

// SpinnerSink renders payment stages behind a terminal spinner
type SpinnerSink struct {
	mu           sync.Mutex
	out          io.Writer
	spinner      *spinner.Spinner
	stages       []stageInfo
	currentStage string
}

type stageInfo struct {
	Stage     string
	StartTime time.Time
	EndTime   time.Time
	Status    string
	Message   string
}

// stageNames lists the stages shown in the spinner trail, in display form
var stageNames = map[string]string{
	usecase.StageHandshake:   "Handshake",
	usecase.StageValidating:  "Validating",
	usecase.StageBuilding:    "Building",
	usecase.StageSigning:     "Signing",
	usecase.StageBroadcast:   "Broadcasting",
	usecase.StageProposing:   "Proposing",
	usecase.StageReconciling: "Recording",
	usecase.StageCompleted:   "Completed",
}

// NewSpinnerSink creates a spinner sink writing to stderr
func NewSpinnerSink() *SpinnerSink {
	return NewSpinnerSinkTo(os.Stderr)
}

// NewSpinnerSinkTo creates a spinner sink writing to out
func NewSpinnerSinkTo(out io.Writer) *SpinnerSink {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(out))
	s.HideCursor = false
	return &SpinnerSink{out: out, spinner: s}
}

// OnProgress advances the stage trail and toggles the spinner
func (r *SpinnerSink) OnProgress(_ context.Context, event usecase.ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if event.Stage != "" && event.Stage != r.currentStage {
		r.completeCurrentStage()
		r.currentStage = event.Stage
		r.stages = append(r.stages, stageInfo{Stage: event.Stage, StartTime: time.Now(), Status: "running"})
	}
	if len(r.stages) > 0 {
		r.stages[len(r.stages)-1].Message = event.Message
	}

	switch {
	case event.Stage == usecase.StageCompleted:
		r.completeCurrentStage()
		r.spinner.Stop()
	case event.Spinner:
		r.spinner.Start()
	}
	suffix := " " + r.display()
	r.spinner.Lock()
	r.spinner.Suffix = suffix
	r.spinner.Unlock()
}

// Info prints an info message
func (r *SpinnerSink) Info(message string) {
	r.printPaused(color.New(color.FgCyan), message)
}

// Error prints an error message
func (r *SpinnerSink) Error(message string) {
	r.printPaused(color.New(color.FgRed), message)
}

// Stop halts the spinner without completing the current stage
func (r *SpinnerSink) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.spinner.Stop()
}

func (r *SpinnerSink) printPaused(c *color.Color, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	wasActive := r.spinner.Active()
	if wasActive {
		r.spinner.Stop()
	}
	_, _ = c.Fprintln(r.out, message)
	if wasActive {
		r.spinner.Start()
	}
}

func (r *SpinnerSink) completeCurrentStage() {
	if len(r.stages) == 0 {
		return
	}
	idx := len(r.stages) - 1
	if r.stages[idx].Status == "completed" {
		return
	}
	r.stages[idx].EndTime = time.Now()
	r.stages[idx].Status = "completed"
}

// display builds the stage trail shown after the spinner
func (r *SpinnerSink) display() string {
	var display string
	for _, stage := range r.stages {
		name, ok := stageNames[stage.Stage]
		if !ok {
			continue
		}

		var icon string
		var stageColor *color.Color
		switch stage.Status {
		case "completed":
			icon = "✓"
			stageColor = color.New(color.FgGreen)
		case "running":
			icon = "●"
			stageColor = color.New(color.FgYellow)
		default:
			icon = "○"
			stageColor = color.New(color.FgWhite)
		}

		duration := ""
		if !stage.EndTime.IsZero() {
			duration = fmt.Sprintf(" (%s)", stage.EndTime.Sub(stage.StartTime).Round(time.Millisecond))
		}

		if display != "" {
			display += " → "
		}
		display += fmt.Sprintf("%s %s%s", icon, stageColor.Sprint(name), duration)
	}
	if n := len(r.stages); n > 0 && r.stages[n-1].Message != "" && r.stages[n-1].Status == "running" {
		display += "  " + r.stages[n-1].Message
	}
	return display
}

var _ usecase.ProgressSink = (*SpinnerSink)(nil)
