package main

import (
	"errors"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/jamesainslie/fsfind/pkg/fsfind/config"
	"github.com/jamesainslie/fsfind/pkg/fsfind/output"
	"github.com/jamesainslie/fsfind/pkg/fsfind/search"
	"github.com/jamesainslie/fsfind/pkg/fsfind/types"
)

// resetViperForTest clears viper and restores the search defaults.
func resetViperForTest() {
	viper.Reset()
	viper.SetDefault("search.limit", config.DefaultSearchLimit)
}

func TestBuildSearchOptions(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		setup     func()
		wantMode  searchMode
		wantScope search.Scope
		wantLimit int
		wantErr   error
	}{
		{
			name:      "query uses smart scope and default limit",
			args:      []string{"report"},
			wantMode:  modeQuery,
			wantScope: search.ScopeSmart,
			wantLimit: config.DefaultSearchLimit,
		},
		{
			name:      "query words are joined",
			args:      []string{"annual", "report"},
			wantMode:  modeQuery,
			wantScope: search.ScopeSmart,
			wantLimit: config.DefaultSearchLimit,
		},
		{
			name:      "path flag sets path scope",
			args:      []string{"src/main"},
			setup:     func() { viper.Set("search.path", true) },
			wantMode:  modeQuery,
			wantScope: search.ScopePath,
			wantLimit: config.DefaultSearchLimit,
		},
		{
			name:      "substring flag overrides scope",
			args:      []string{"conf"},
			setup:     func() { viper.Set("search.scope", "default"); viper.Set("search.substring", true) },
			wantMode:  modeQuery,
			wantScope: search.ScopeSubstring,
			wantLimit: config.DefaultSearchLimit,
		},
		{
			name:      "explicit scope",
			args:      []string{"conf"},
			setup:     func() { viper.Set("search.scope", "default"); viper.Set("search.limit", 5) },
			wantMode:  modeQuery,
			wantScope: search.ScopeDefault,
			wantLimit: 5,
		},
		{
			name:      "size range",
			setup:     func() { viper.Set("search.size_min", "10M"); viper.Set("search.size_max", "1G") },
			wantMode:  modeSize,
			wantScope: search.ScopeSmart,
			wantLimit: config.DefaultSearchLimit,
		},
		{
			name:      "recent",
			setup:     func() { viper.Set("search.recent", "3") },
			wantMode:  modeRecent,
			wantScope: search.ScopeSmart,
			wantLimit: config.DefaultSearchLimit,
		},
		{
			name:      "stats alone",
			setup:     func() { viper.Set("search.stats", true) },
			wantMode:  modeNone,
			wantScope: search.ScopeSmart,
			wantLimit: config.DefaultSearchLimit,
		},
		{
			name:      "interactive",
			setup:     func() { viper.Set("search.interactive", true) },
			wantMode:  modeInteractive,
			wantScope: search.ScopeSmart,
			wantLimit: config.DefaultSearchLimit,
		},
		{
			name:    "nothing to do",
			wantErr: types.ErrUsage,
		},
		{
			name:    "query and size",
			args:    []string{"report"},
			setup:   func() { viper.Set("search.size_min", "1G") },
			wantErr: types.ErrUsage,
		},
		{
			name:    "dirs and files only",
			args:    []string{"report"},
			setup:   func() { viper.Set("search.dirs_only", true); viper.Set("search.files_only", true) },
			wantErr: types.ErrUsage,
		},
		{
			name:    "path and substring",
			args:    []string{"report"},
			setup:   func() { viper.Set("search.path", true); viper.Set("search.substring", true) },
			wantErr: types.ErrUsage,
		},
		{
			name:    "invalid size",
			setup:   func() { viper.Set("search.size_min", "abcMB") },
			wantErr: types.ErrValidation,
		},
		{
			name:    "negative recent",
			setup:   func() { viper.Set("search.recent", "-2") },
			wantErr: types.ErrValidation,
		},
		{
			name:    "invalid scope",
			args:    []string{"report"},
			setup:   func() { viper.Set("search.scope", "everywhere") },
			wantErr: types.ErrValidation,
		},
		{
			name:    "zero limit",
			args:    []string{"report"},
			setup:   func() { viper.Set("search.limit", 0) },
			wantErr: types.ErrValidation,
		},
		{
			name:    "template format without template",
			args:    []string{"report"},
			setup:   func() { viper.Set("search.output", "template") },
			wantErr: types.ErrUsage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetViperForTest()
			if tt.setup != nil {
				tt.setup()
			}

			opts, err := buildSearchOptions(tt.args)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("buildSearchOptions() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("buildSearchOptions() error = %v", err)
			}
			if opts.Mode != tt.wantMode {
				t.Errorf("Mode = %v, want %v", opts.Mode, tt.wantMode)
			}
			if opts.Query.Scope != tt.wantScope {
				t.Errorf("Scope = %q, want %q", opts.Query.Scope, tt.wantScope)
			}
			if opts.Query.Limit != tt.wantLimit {
				t.Errorf("Limit = %d, want %d", opts.Query.Limit, tt.wantLimit)
			}
		})
	}
}

func TestBuildSearchOptionsValues(t *testing.T) {
	resetViperForTest()
	viper.Set("search.recent", "12h")
	viper.Set("search.files_only", true)
	viper.Set("search.details", true)
	viper.Set("search.template", "{{range .Files}}{{.Path}}{{end}}")

	opts, err := buildSearchOptions(nil)
	if err != nil {
		t.Fatalf("buildSearchOptions() error = %v", err)
	}
	if opts.Recent != 12*time.Hour {
		t.Errorf("Recent = %v, want 12h", opts.Recent)
	}
	if !opts.Query.Filters.FilesOnly || opts.Query.Filters.DirsOnly {
		t.Errorf("Filters = %+v, want files only", opts.Query.Filters)
	}
	if !opts.Details {
		t.Error("Details = false, want true")
	}
	if opts.Format != "template" {
		t.Errorf("Format = %q, want template implied by --template", opts.Format)
	}

	resetViperForTest()
	viper.Set("search.recent", "7")
	opts, err = buildSearchOptions(nil)
	if err != nil {
		t.Fatalf("buildSearchOptions() error = %v", err)
	}
	if opts.Recent != 7*24*time.Hour {
		t.Errorf("Recent = %v, want 7 days", opts.Recent)
	}
}

func TestSearchLimitDefaults(t *testing.T) {
	resetViperForTest()
	viper.Set("search.interactive", true)

	opts, err := buildSearchOptions(nil)
	if err != nil {
		t.Fatalf("buildSearchOptions() error = %v", err)
	}
	if opts.Query.Limit != 100 {
		t.Errorf("Query.Limit = %d, want 100", opts.Query.Limit)
	}
	if got := opts.sessionLimit(); got != search.DefaultSessionLimit {
		t.Errorf("sessionLimit() = %d, want %d", got, search.DefaultSessionLimit)
	}

	opts.Query.Limit = 7
	opts.LimitSet = true
	if got := opts.sessionLimit(); got != 7 {
		t.Errorf("sessionLimit() with --limit 7 = %d, want 7", got)
	}
}

func TestResolveFormat(t *testing.T) {
	tests := []struct {
		format   string
		terminal bool
		want     string
	}{
		{"", true, "pretty"},
		{"", false, "plain"},
		{"json", true, "json"},
		{"paths", false, "paths"},
	}
	for _, tt := range tests {
		if got := resolveFormat(tt.format, tt.terminal); got != tt.want {
			t.Errorf("resolveFormat(%q, %v) = %q, want %q", tt.format, tt.terminal, got, tt.want)
		}
	}
}

func TestNewFormatter(t *testing.T) {
	for _, name := range output.Available() {
		if _, err := newFormatter(name, "{{len .Files}}"); err != nil {
			t.Errorf("newFormatter(%q) error = %v", name, err)
		}
	}

	if f, err := newFormatter("template", "{{len .Files}}"); err != nil {
		t.Errorf("newFormatter(template) error = %v", err)
	} else if _, ok := f.(*output.TemplateFormatter); !ok {
		t.Errorf("newFormatter(template) = %T, want *output.TemplateFormatter", f)
	}

	_, err := newFormatter("xml", "")
	if !errors.Is(err, types.ErrUsage) {
		t.Errorf("newFormatter(xml) error = %v, want usage error", err)
	}
}

func TestSearchKey(t *testing.T) {
	if got := searchKey("warm-cache"); got != "search.warm_cache" {
		t.Errorf("searchKey(warm-cache) = %q", got)
	}
	if got := searchKey("limit"); got != "search.limit" {
		t.Errorf("searchKey(limit) = %q", got)
	}
}
