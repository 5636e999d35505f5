package search

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"golang.org/x/term"
)

// LineReader reads one line of interactive input at a time. It returns
// io.EOF when the input ends or the user aborts the prompt.
type LineReader interface {
	ReadLine(prompt string) (string, error)
	Close() error
}

// NewLineReader returns a line-editing reader with history when in is a
// terminal that supports it, and a plain line reader otherwise. History is
// loaded from and saved to historyPath when it is set.
func NewLineReader(in *os.File, out io.Writer, historyPath string) LineReader {
	if term.IsTerminal(int(in.Fd())) && liner.TerminalSupported() {
		return newLinerReader(historyPath)
	}
	return NewPlainReader(in, out)
}

type linerReader struct {
	state       *liner.State
	historyPath string
}

func newLinerReader(historyPath string) *linerReader {
	state := liner.NewLiner()
	state.SetCtrlCAborts(true)

	r := &linerReader{state: state, historyPath: historyPath}
	if historyPath != "" {
		if f, err := os.Open(historyPath); err == nil {
			_, _ = state.ReadHistory(f)
			_ = f.Close()
		}
	}
	return r
}

func (r *linerReader) ReadLine(prompt string) (string, error) {
	line, err := r.state.Prompt(prompt)
	if errors.Is(err, liner.ErrPromptAborted) {
		return "", io.EOF
	}
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(line) != "" {
		r.state.AppendHistory(line)
	}
	return line, nil
}

// Close saves the history and restores the terminal.
func (r *linerReader) Close() error {
	var saveErr error
	if r.historyPath != "" {
		saveErr = r.saveHistory()
	}
	return errors.Join(saveErr, r.state.Close())
}

func (r *linerReader) saveHistory() error {
	if err := os.MkdirAll(filepath.Dir(r.historyPath), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(r.historyPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = r.state.WriteHistory(f)
	return err
}

// PlainReader reads newline-terminated lines without editing support.
type PlainReader struct {
	scanner *bufio.Scanner
	out     io.Writer
}

// NewPlainReader reads lines from in. Prompts are written to out when it
// is not nil.
func NewPlainReader(in io.Reader, out io.Writer) *PlainReader {
	return &PlainReader{scanner: bufio.NewScanner(in), out: out}
}

// ReadLine prints prompt and returns the next line without its newline.
func (r *PlainReader) ReadLine(prompt string) (string, error) {
	if r.out != nil && prompt != "" {
		fmt.Fprint(r.out, prompt)
	}
	if r.scanner.Scan() {
		return r.scanner.Text(), nil
	}
	if err := r.scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

// Close is a no-op.
func (r *PlainReader) Close() error { return nil }
