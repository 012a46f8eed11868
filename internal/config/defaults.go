// Package config handles taskboard configuration.
package config

const (
	// DefaultDir is the default board directory name.
	DefaultDir = ".taskboard"
	// DefaultDatabase is the default database file inside the board directory.
	DefaultDatabase = "taskboard.db"
	// DefaultActivityFile is the default JSONL activity log file.
	DefaultActivityFile = "activity.jsonl"
	// DefaultDoneStatus is the name of the terminal status.
	DefaultDoneStatus = "Done"
	// DefaultPositionGap is the spacing between neighboring positions.
	DefaultPositionGap = 1000
	// DefaultSortField is the initial sort field of list views.
	DefaultSortField = "created"
	// DefaultSortDirection is the initial sort direction of list views.
	DefaultSortDirection = "asc"
	// DefaultLogLevel is the zerolog level used when none is configured.
	DefaultLogLevel = "warn"
	// DefaultTitleLines is the default number of title lines in TUI cards.
	DefaultTitleLines = 2

	// ConfigFileName is the name of the config file within the board directory.
	ConfigFileName = "config.yml"

	// CurrentVersion is the current config schema version.
	CurrentVersion = 3
)

// Activity log modes.
const (
	ActivityTable = "table"
	ActivityFile  = "file"
	ActivityOff   = "off"
)

// DefaultStatuses seeds the status table of a new board.
var DefaultStatuses = []StatusConfig{
	{Name: "Backlog", Color: "245"},
	{Name: "Todo", Color: "39"},
	{Name: "In Progress", Color: "214"},
	{Name: "Review", Color: "141"},
	{Name: DefaultDoneStatus, Color: "34"},
}

// SortFields lists the accepted sort.field values.
var SortFields = []string{"title", "status", "due", "responsible", "coworkers", "created", "last_activity"}
