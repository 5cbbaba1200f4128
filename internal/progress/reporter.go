package progress

import (
	"fmt"
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
)

// Reporter provides progress feedback while a corpus is indexed.
type Reporter interface {
	Start(total int, stage string)
	Update(current int, message string)
	Finish()
}

// NewReporter returns a TerminalReporter if running in an interactive terminal,
// or a LineReporter writing to stderr if the CI environment variable is set.
func NewReporter() Reporter {
	if os.Getenv("CI") != "" || os.Getenv("GITHUB_ACTIONS") != "" {
		return &LineReporter{W: os.Stderr}
	}
	return &TerminalReporter{}
}

// TerminalReporter displays a progress bar in the terminal.
type TerminalReporter struct {
	bar *progressbar.ProgressBar
}

func (r *TerminalReporter) Start(total int, stage string) {
	r.bar = progressbar.NewOptions(total,
		progressbar.OptionSetDescription(stage),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}

func (r *TerminalReporter) Update(current int, message string) {
	if r.bar != nil {
		r.bar.Describe(message)
		_ = r.bar.Set(current)
	}
}

func (r *TerminalReporter) Finish() {
	if r.bar != nil {
		_ = r.bar.Finish()
	}
}

// LineReporter prints one line per update, for logs that cannot render a bar.
type LineReporter struct {
	W     io.Writer
	total int
	stage string
}

func (r *LineReporter) Start(total int, stage string) {
	r.total, r.stage = total, stage
	fmt.Fprintf(r.W, "%s: %d passages\n", stage, total)
}

func (r *LineReporter) Update(current int, message string) {
	fmt.Fprintf(r.W, "[%d/%d] %s\n", current, r.total, message)
}

func (r *LineReporter) Finish() {
	fmt.Fprintf(r.W, "%s complete\n", r.stage)
}
