package search

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jamesainslie/fsfind/pkg/fsfind/output"
	"github.com/jamesainslie/fsfind/pkg/fsfind/types"
)

// DefaultSessionLimit caps results for interactive queries.
const DefaultSessionLimit = 50

// DefaultPrompt is shown before each interactive query.
const DefaultPrompt = "Search> "

var quitTokens = map[string]bool{
	"quit":  true,
	"exit":  true,
	"q":     true,
	".quit": true,
	".exit": true,
}

const sessionHelp = `Commands (prefix with . or !):
  stats              index statistics
  memory             cache and database size
  recent [N]         files modified in the last N days (default 7)
  size MIN [MAX]     files between MIN and MAX (e.g. 10MB 1GB)
  help               this help
Type quit, exit or q to leave. Any other input is a search.
`

// Session is an interactive search loop.
type Session struct {
	engine    *Engine
	in        LineReader
	out       io.Writer
	formatter output.Formatter

	Prompt  string
	Limit   int
	Filters Filters
	Details bool
}

// NewSession creates a session reading from in and writing results to out
// with formatter.
func NewSession(e *Engine, in LineReader, out io.Writer, formatter output.Formatter) *Session {
	return &Session{
		engine:    e,
		in:        in,
		out:       out,
		formatter: formatter,
		Prompt:    DefaultPrompt,
		Limit:     DefaultSessionLimit,
	}
}

// Run reads and handles lines until a quit token, end of input or ctx is
// cancelled. Errors from individual lines are printed and the loop goes
// on.
func (s *Session) Run(ctx context.Context) error {
	fmt.Fprint(s.out, "Interactive search. Type .help for commands, quit to exit.\n")
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		line, err := s.in.ReadLine(s.Prompt)
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(s.out)
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: reading input: %w", types.ErrIO, err)
		}

		quit, err := s.Handle(ctx, line)
		if err != nil {
			fmt.Fprintf(s.out, "Error: %v\n", err)
		}
		if quit {
			return nil
		}
	}
}

// Handle processes one line of input. It reports whether the line asked to
// end the session.
func (s *Session) Handle(ctx context.Context, line string) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	if quitTokens[strings.ToLower(line)] {
		return true, nil
	}
	if strings.HasPrefix(line, ".") || strings.HasPrefix(line, "!") {
		return false, s.command(ctx, line[1:])
	}

	res, err := s.engine.Search(ctx, Query{Text: line, Filters: s.Filters, Limit: s.limit()})
	if err != nil {
		return false, err
	}
	return false, s.render(&output.Result{
		Files:   output.FromEntries(res.Entries, time.Now()),
		Search:  SearchInfo(res),
		Details: s.Details,
	})
}

func (s *Session) command(ctx context.Context, cmd string) error {
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return fmt.Errorf("%w: empty command, try .help", types.ErrUsage)
	}
	args := fields[1:]

	switch strings.ToLower(fields[0]) {
	case "help", "h", "?":
		_, err := io.WriteString(s.out, sessionHelp)
		return err

	case "stats":
		st, err := s.engine.Stats(ctx)
		if err != nil {
			return err
		}
		return s.render(&output.Result{Stats: output.FromStats(st)})

	case "memory":
		ms, err := s.engine.Memory(ctx)
		if err != nil {
			return err
		}
		return s.render(&output.Result{Memory: output.FromMemory(ms)})

	case "recent":
		days := DefaultRecentDays
		if len(args) > 0 {
			n, err := strconv.Atoi(args[0])
			if err != nil || n < 0 {
				return fmt.Errorf("%w: recent takes a number of days, got %q", types.ErrValidation, args[0])
			}
			days = n
		}
		res, err := s.engine.RecentDays(ctx, days, s.limit())
		if err != nil {
			return err
		}
		return s.renderDetailed(res, fmt.Sprintf("last %d days", days))

	case "size":
		if len(args) == 0 || len(args) > 2 {
			return fmt.Errorf("%w: usage: .size MIN [MAX]", types.ErrUsage)
		}
		maxSize := ""
		if len(args) == 2 {
			maxSize = args[1]
		}
		res, err := s.engine.BySize(ctx, args[0], maxSize, s.limit())
		if err != nil {
			return err
		}
		return s.renderDetailed(res, strings.Join(args, " .. "))
	}
	return fmt.Errorf("%w: unknown command %q, try .help", types.ErrUsage, fields[0])
}

// renderDetailed shows size and recency listings with details, as the
// columns are what the listing is about.
func (s *Session) renderDetailed(res *Result, label string) error {
	info := SearchInfo(res)
	info.Query = label
	return s.render(&output.Result{
		Files:   output.FromEntries(res.Entries, time.Now()),
		Search:  info,
		Details: true,
	})
}

func (s *Session) render(r *output.Result) error {
	var buf bytes.Buffer
	if err := s.formatter.Format(&buf, r); err != nil {
		return err
	}
	_, err := s.out.Write(buf.Bytes())
	return err
}

func (s *Session) limit() int {
	if s.Limit > 0 {
		return s.Limit
	}
	return DefaultSessionLimit
}

// SearchInfo describes res for output.
func SearchInfo(res *Result) output.SearchInfo {
	return output.SearchInfo{
		Query:    res.Query,
		Strategy: res.Strategy,
		FellBack: res.FellBack,
		Elapsed:  res.Elapsed,
	}
}
