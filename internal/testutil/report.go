package testutil

import (
	"strings"
	"sync"

	"vfs-go/internal/vfs"
)

// RecordingReport keeps every line printed to it.
type RecordingReport struct {
	mu      sync.Mutex
	lines   []string
	pending strings.Builder
}

var _ vfs.Report = (*RecordingReport)(nil)

func (r *RecordingReport) Print(msg string, _ vfs.ReportFormat) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending.WriteString(msg)
}

func (r *RecordingReport) Println(msg string, _ vfs.ReportFormat) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending.WriteString(msg)
	r.lines = append(r.lines, r.pending.String())
	r.pending.Reset()
}

// Lines returns the completed lines.
func (r *RecordingReport) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

// Contains reports whether any completed line contains s.
func (r *RecordingReport) Contains(s string) bool {
	for _, line := range r.Lines() {
		if strings.Contains(line, s) {
			return true
		}
	}
	return false
}
