package watcher

import "time"

// Operation names what happened to a snapshot file.
type Operation string

const (
	OpCreate Operation = "create"
	OpModify Operation = "modify"
	OpDelete Operation = "delete"
	// OpRename is the first half of an atomic save. A following create
	// for the same path folds it into OpModify.
	OpRename Operation = "rename"
)

func (op Operation) String() string {
	if op == "" {
		return "unknown"
	}
	return string(op)
}

// FileEvent is a change to one watched file.
type FileEvent struct {
	// Path is the cleaned absolute path of the watched file.
	Path      string
	Operation Operation
	Timestamp time.Time
}

// Options configures watching. Zero fields take the defaults below.
type Options struct {
	// DebounceWindow is how long a file must be quiet before its events
	// are emitted.
	DebounceWindow time.Duration
	// PollInterval is the stat interval when fsnotify is unavailable.
	PollInterval time.Duration
	// EventBufferSize is the capacity of the batch channel.
	EventBufferSize int
	// ForcePolling skips fsnotify.
	ForcePolling bool
}

const (
	defaultDebounce   = 500 * time.Millisecond
	defaultPoll       = 5 * time.Second
	defaultBufferSize = 16
)

// DefaultOptions returns the options a browser profile watch uses.
func DefaultOptions() Options {
	return Options{}.WithDefaults()
}

// WithDefaults fills zero fields.
func (o Options) WithDefaults() Options {
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = defaultDebounce
	}
	if o.PollInterval <= 0 {
		o.PollInterval = defaultPoll
	}
	if o.EventBufferSize <= 0 {
		o.EventBufferSize = defaultBufferSize
	}
	return o
}
