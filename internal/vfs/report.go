package vfs

import (
	"fmt"
	"io"
	"sync"
)

// ReportFormat hints how a progress line should be rendered.
type ReportFormat int

const (
	FormatDefault ReportFormat = iota
	FormatHeadline
	FormatNote
	FormatOK
	FormatWarning
	FormatError
)

// Report is a sink for human-readable publish progress. It never affects
// control flow.
type Report interface {
	Print(msg string, format ReportFormat)
	Println(msg string, format ReportFormat)
}

// NopReport discards progress output.
type NopReport struct{}

func (NopReport) Print(string, ReportFormat)   {}
func (NopReport) Println(string, ReportFormat) {}

// WriterReport renders progress to an io.Writer, one publish step per line.
type WriterReport struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriterReport(w io.Writer) *WriterReport {
	return &WriterReport{w: w}
}

func (r *WriterReport) Print(msg string, format ReportFormat) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprint(r.w, decorate(msg, format))
}

func (r *WriterReport) Println(msg string, format ReportFormat) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.w, decorate(msg, format))
}

func decorate(msg string, format ReportFormat) string {
	switch format {
	case FormatHeadline:
		return "== " + msg + " =="
	case FormatOK:
		return msg + " ok"
	case FormatWarning:
		return "warning: " + msg
	case FormatError:
		return "error: " + msg
	default:
		return msg
	}
}
