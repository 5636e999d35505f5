package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/jamesainslie/fsfind/pkg/fsfind/filter"
	"github.com/jamesainslie/fsfind/pkg/fsfind/output"
	"github.com/jamesainslie/fsfind/pkg/fsfind/search"
	"github.com/jamesainslie/fsfind/pkg/fsfind/types"
)

// searchMode is what a search invocation lists.
type searchMode int

const (
	modeNone searchMode = iota
	modeQuery
	modeSize
	modeRecent
	modeInteractive
)

// searchOptions holds the validated search flags.
type searchOptions struct {
	Query   search.Query
	SizeMin string
	SizeMax string
	Recent  time.Duration
	Mode    searchMode

	Stats     bool
	Memory    bool
	Details   bool
	WarmCache bool

	Format   string
	Template string

	// LimitSet reports an explicit --limit, which interactive sessions
	// honour instead of their own default.
	LimitSet bool
}

// sessionLimit is the result limit for interactive queries.
func (o *searchOptions) sessionLimit() int {
	if o.LimitSet {
		return o.Query.Limit
	}
	return search.DefaultSessionLimit
}

// buildSearchOptions creates searchOptions from the query arguments and
// the flags bound under "search." in viper.
func buildSearchOptions(args []string) (*searchOptions, error) {
	opts := &searchOptions{
		Query: search.Query{
			Text:  strings.TrimSpace(strings.Join(args, " ")),
			Limit: viper.GetInt("search.limit"),
		},
		SizeMin:   strings.TrimSpace(viper.GetString("search.size_min")),
		SizeMax:   strings.TrimSpace(viper.GetString("search.size_max")),
		Stats:     viper.GetBool("search.stats"),
		Memory:    viper.GetBool("search.memory"),
		Details:   viper.GetBool("search.details"),
		WarmCache: viper.GetBool("search.warm_cache"),
		Format:    strings.ToLower(strings.TrimSpace(viper.GetString("search.output"))),
		Template:  viper.GetString("search.template"),
	}

	if opts.Query.Limit <= 0 {
		return nil, fmt.Errorf("%w: --limit must be positive, got %d", types.ErrValidation, opts.Query.Limit)
	}

	// Filters
	opts.Query.Filters = search.Filters{
		DirsOnly:  viper.GetBool("search.dirs_only"),
		FilesOnly: viper.GetBool("search.files_only"),
	}
	if opts.Query.Filters.DirsOnly && opts.Query.Filters.FilesOnly {
		return nil, fmt.Errorf("%w: --dirs-only and --files-only are mutually exclusive", types.ErrUsage)
	}

	// Scope: --path and --substring override --scope
	scope, err := search.ParseScope(viper.GetString("search.scope"))
	if err != nil {
		return nil, err
	}
	byPath, bySubstring := viper.GetBool("search.path"), viper.GetBool("search.substring")
	switch {
	case byPath && bySubstring:
		return nil, fmt.Errorf("%w: --path and --substring are mutually exclusive", types.ErrUsage)
	case byPath:
		scope = search.ScopePath
	case bySubstring:
		scope = search.ScopeSubstring
	}
	opts.Query.Scope = scope

	// Size bounds are parsed again by the engine; fail early on bad input
	for _, s := range []string{opts.SizeMin, opts.SizeMax} {
		if s == "" {
			continue
		}
		if _, err := types.ParseSize(s); err != nil {
			return nil, err
		}
	}

	recent := strings.TrimSpace(viper.GetString("search.recent"))
	if recent != "" {
		if opts.Recent, err = filter.ParseAge(recent); err != nil {
			return nil, err
		}
	}

	if opts.Mode, err = pickMode(opts, recent != "", viper.GetBool("search.interactive")); err != nil {
		return nil, err
	}

	if opts.Template != "" && opts.Format == "" {
		opts.Format = "template"
	}
	if opts.Format == "template" && opts.Template == "" {
		return nil, fmt.Errorf("%w: -o template requires --template", types.ErrUsage)
	}

	return opts, nil
}

// pickMode chooses the one listing the flags ask for. Statistics alone are
// a valid request.
func pickMode(opts *searchOptions, recent, interactive bool) (searchMode, error) {
	var modes []searchMode
	if opts.Query.Text != "" {
		modes = append(modes, modeQuery)
	}
	if opts.SizeMin != "" || opts.SizeMax != "" {
		modes = append(modes, modeSize)
	}
	if recent {
		modes = append(modes, modeRecent)
	}
	if interactive {
		modes = append(modes, modeInteractive)
	}

	switch {
	case len(modes) > 1:
		return modeNone, fmt.Errorf("%w: use only one of QUERY, --size-min/--size-max, --recent or --interactive", types.ErrUsage)
	case len(modes) == 1:
		return modes[0], nil
	case opts.Stats || opts.Memory:
		return modeNone, nil
	}
	return modeNone, fmt.Errorf("%w: a query is required (or one of --size-min, --size-max, --recent, --stats, --memory, -i)", types.ErrUsage)
}

// resolveFormat picks the output format. Without -o, terminals get the
// pretty formatter and pipes get plain paths.
func resolveFormat(format string, terminal bool) string {
	if format != "" {
		return format
	}
	if terminal {
		return "pretty"
	}
	return "plain"
}

// newFormatter returns the formatter for the resolved format name.
func newFormatter(format, tmpl string) (output.Formatter, error) {
	if format == "template" {
		return output.NewTemplateFormatter(tmpl), nil
	}
	f, err := output.Get(format)
	if err != nil {
		return nil, fmt.Errorf("%w: %w (available: %s)", types.ErrUsage, err, strings.Join(output.Available(), ", "))
	}
	return f, nil
}
