// Package jobs reads job lists and dispatches each job to its distribution
// strategy, isolating failures per job.
package jobs

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrMalformedJob indicates a job line that names no arguments.
var ErrMalformedJob = errors.New("malformed job")

// ParseError describes a job line that could not be parsed.
type ParseError struct {
	Line int
	Text string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: malformed job %q: expected a distribution followed by at least one argument", e.Line, e.Text)
}

func (e *ParseError) Is(target error) bool {
	return target == ErrMalformedJob
}

// Job is one line of a job list: a distribution identifier and the
// arguments passed to its strategy.
type Job struct {
	Line         int
	Distribution string
	Args         []string
}

// String returns the job in job-list form.
func (j Job) String() string {
	return strings.Join(append([]string{j.Distribution}, j.Args...), " ")
}

// Entry is either a parsed job or the error for its line.
type Entry struct {
	Job Job
	Err error
}

// ParseLine parses a single non-comment line. lineNo is only used for
// reporting.
func ParseLine(lineNo int, text string) (Job, error) {
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return Job{}, &ParseError{Line: lineNo, Text: strings.TrimSpace(text)}
	}
	return Job{
		Line:         lineNo,
		Distribution: fields[0],
		Args:         fields[1:],
	}, nil
}

// Parse reads a job list. Blank lines and lines starting with '#' are
// skipped. A malformed line yields an Entry carrying its error so the rest
// of the list is still processed; the returned error is reserved for read
// failures.
func Parse(r io.Reader) ([]Entry, error) {
	var entries []Entry

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		job, err := ParseLine(lineNo, text)
		if err != nil {
			// keep the first token so failures can still be attributed
			job = Job{Line: lineNo, Distribution: text}
		}
		entries = append(entries, Entry{Job: job, Err: err})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read job list: %w", err)
	}

	return entries, nil
}

// ParseFile reads the job list at path.
func ParseFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open job list: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	return Parse(f)
}
