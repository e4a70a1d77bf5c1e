// Package cli provides terminal output helpers for splitoctl
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"text/tabwriter"
	"time"
)

// Color codes for terminal output
const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
	ColorCyan   = "\033[36m"
	ColorBold   = "\033[1m"
)

// Printer writes status lines, tables and JSON.
type Printer struct {
	out      io.Writer
	colorize bool
}

// NewPrinter creates a printer. Color is enabled only for terminals.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{out: w, colorize: isTerminal(w)}
}

// Colorize returns text wrapped in color when the output is a terminal.
func (p *Printer) Colorize(text, color string) string {
	if !p.colorize {
		return text
	}
	return color + text + ColorReset
}

// Success prints a success message
func (p *Printer) Success(format string, args ...interface{}) {
	p.status("✓", ColorGreen, format, args...)
}

// Error prints an error message
func (p *Printer) Error(format string, args ...interface{}) {
	p.status("✗", ColorRed, format, args...)
}

// Warning prints a warning message
func (p *Printer) Warning(format string, args ...interface{}) {
	p.status("⚠", ColorYellow, format, args...)
}

// Info prints an info message
func (p *Printer) Info(format string, args ...interface{}) {
	p.status("ℹ", ColorBlue, format, args...)
}

func (p *Printer) status(mark, color, format string, args ...interface{}) {
	fmt.Fprintf(p.out, "%s %s\n", p.Colorize(mark, color), fmt.Sprintf(format, args...))
}

// Println writes a plain line.
func (p *Printer) Println(a ...interface{}) {
	fmt.Fprintln(p.out, a...)
}

// Table prints rows aligned under headers.
func (p *Printer) Table(headers []string, rows [][]string) error {
	tw := tabwriter.NewWriter(p.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, p.Colorize(strings.Join(headers, "\t"), ColorBold))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

// JSON prints v indented.
func (p *Printer) JSON(v interface{}) error {
	enc := json.NewEncoder(p.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Spinner shows activity while a blocking call runs
type Spinner struct {
	frames   []string
	current  int
	prefix   string
	mu       sync.Mutex
	writer   io.Writer
	active   bool
	colorize bool
	done     chan struct{}
}

// NewSpinner creates a new spinner writing to w
func NewSpinner(w io.Writer, prefix string) *Spinner {
	return &Spinner{
		frames:   []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
		prefix:   prefix,
		writer:   w,
		colorize: isTerminal(w),
		done:     make(chan struct{}),
	}
}

// Start starts the spinner. It is a no-op when the writer is not a terminal.
func (s *Spinner) Start() {
	s.mu.Lock()
	if s.active || !s.colorize {
		s.mu.Unlock()
		return
	}
	s.active = true
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.mu.Lock()
				if !s.active {
					s.mu.Unlock()
					return
				}
				frame := ColorCyan + s.frames[s.current] + ColorReset
				fmt.Fprintf(s.writer, "\r%s %s", frame, s.prefix)
				s.current = (s.current + 1) % len(s.frames)
				s.mu.Unlock()
			case <-s.done:
				return
			}
		}
	}()
}

// Stop stops the spinner and clears its line
func (s *Spinner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return
	}
	s.active = false
	close(s.done)
	fmt.Fprint(s.writer, "\r"+strings.Repeat(" ", len(s.prefix)+4)+"\r")
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
