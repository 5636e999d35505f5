// Package config provides configuration management for fsfind.
package config

// Default configuration values for fsfind.
const (
	// DefaultMaxDepth is how many directory levels below each watch root are watched.
	DefaultMaxDepth = 10

	// DefaultBatchSize is the notification buffer size of the updater.
	DefaultBatchSize = 100

	// DefaultIngestBatchSize is the number of snapshot records per ingest transaction.
	DefaultIngestBatchSize = 1000

	// DefaultLogLevel is the daemon log level.
	DefaultLogLevel = "info"

	// DefaultStatsInterval is how often the updater logs its counters.
	DefaultStatsInterval = "5m"

	// DefaultRetentionDays is the default number of days to retain ingest history.
	DefaultRetentionDays = 30

	// DefaultSearchLimit is the result limit of a one-shot search. Interactive
	// sessions use search.DefaultSessionLimit unless --limit is given.
	DefaultSearchLimit = 100
)

// DefaultExcludePatterns are the exclude globs applied by the updater.
var DefaultExcludePatterns = []string{
	"*.tmp",
	"*.swp",
	"*~",
	".git/*",
	"__pycache__/*",
	"*.pyc",
	".cache/*",
	".local/share/Trash/*",
}
