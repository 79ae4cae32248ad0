// Package setup implements the interactive "reportsync init" wizard that
// writes a first configuration file.
package setup

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Prompter asks questions on w and reads answers line by line from r.
// Tests inject buffers for deterministic input.
type Prompter struct {
	scanner *bufio.Scanner
	w       io.Writer
}

// NewPrompter creates a Prompter wired to the given reader and writer.
func NewPrompter(r io.Reader, w io.Writer) *Prompter {
	return &Prompter{scanner: bufio.NewScanner(r), w: w}
}

// readLine returns the next trimmed line, or ok=false at end of input.
func (p *Prompter) readLine() (string, bool) {
	if !p.scanner.Scan() {
		return "", false
	}
	return strings.TrimSpace(p.scanner.Text()), true
}

// String prompts for a text value. Enter alone returns defaultVal; an empty
// defaultVal makes the answer required.
func (p *Prompter) String(label, defaultVal string) string {
	for {
		if defaultVal != "" {
			_, _ = fmt.Fprintf(p.w, "  %s [%s]: ", label, defaultVal)
		} else {
			_, _ = fmt.Fprintf(p.w, "  %s: ", label)
		}

		val, ok := p.readLine()
		if !ok {
			return defaultVal
		}
		if val == "" {
			if defaultVal != "" {
				return defaultVal
			}
			_, _ = fmt.Fprintf(p.w, "  (required, please enter a value)\n")
			continue
		}
		return val
	}
}

// Optional prompts for a value that may be left empty.
func (p *Prompter) Optional(label string) string {
	_, _ = fmt.Fprintf(p.w, "  %s (optional): ", label)
	val, _ := p.readLine()
	return val
}

// Confirm asks a yes/no question. defaultYes decides what Enter means.
func (p *Prompter) Confirm(label string, defaultYes bool) bool {
	hint := "[y/N]"
	if defaultYes {
		hint = "[Y/n]"
	}
	_, _ = fmt.Fprintf(p.w, "  %s %s: ", label, hint)

	answer, ok := p.readLine()
	if !ok || answer == "" {
		return defaultYes
	}
	answer = strings.ToLower(answer)
	return answer == "y" || answer == "yes"
}

// Select presents a numbered list and returns the zero-based index of the
// chosen option.
func (p *Prompter) Select(label string, options []string) (int, error) {
	if len(options) == 0 {
		return -1, fmt.Errorf("no options to select from")
	}

	_, _ = fmt.Fprintf(p.w, "  %s:\n", label)
	for i, opt := range options {
		_, _ = fmt.Fprintf(p.w, "    %d) %s\n", i+1, opt)
	}

	for {
		_, _ = fmt.Fprintf(p.w, "  Choice [1-%d]: ", len(options))

		val, ok := p.readLine()
		if !ok {
			return -1, fmt.Errorf("no input")
		}
		n, err := strconv.Atoi(val)
		if err != nil || n < 1 || n > len(options) {
			_, _ = fmt.Fprintf(p.w, "  (enter a number between 1 and %d)\n", len(options))
			continue
		}
		return n - 1, nil
	}
}

// Duration prompts for a duration within [lo, hi]. Invalid answers repeat
// the question; end of input returns defaultVal.
func (p *Prompter) Duration(label string, defaultVal, lo, hi time.Duration) time.Duration {
	def := shortDuration(defaultVal)
	for {
		raw := p.String(fmt.Sprintf("%s (%s-%s)", label, shortDuration(lo), shortDuration(hi)), def)
		d, err := time.ParseDuration(raw)
		if err == nil && d >= lo && d <= hi {
			return d
		}
		if raw == def {
			return defaultVal
		}
		_, _ = fmt.Fprintf(p.w, "  (enter a duration between %s and %s, e.g. 15m)\n", shortDuration(lo), shortDuration(hi))
	}
}

// shortDuration drops zero trailing units: 1m0s becomes 1m, 24h0m0s 24h.
func shortDuration(d time.Duration) string {
	s := d.String()
	if strings.HasSuffix(s, "m0s") {
		s = s[:len(s)-2]
	}
	if strings.HasSuffix(s, "h0m") {
		s = s[:len(s)-2]
	}
	return s
}

// Int prompts for an integer within [lo, hi].
func (p *Prompter) Int(label string, defaultVal, lo, hi int) int {
	for {
		raw := p.String(fmt.Sprintf("%s (%d-%d)", label, lo, hi), strconv.Itoa(defaultVal))
		n, err := strconv.Atoi(raw)
		if err == nil && n >= lo && n <= hi {
			return n
		}
		if raw == strconv.Itoa(defaultVal) {
			return defaultVal
		}
		_, _ = fmt.Fprintf(p.w, "  (enter a number between %d and %d)\n", lo, hi)
	}
}
