package shared

import "github.com/charmbracelet/log"

// Level is the severity of a user-visible [Notification].
type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelInfo:
		return "info"
	case LevelSuccess:
		return "success"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return ""
	}
}

// Notification is a message meant for the person at the terminal, not the log file.
type Notification struct {
	Level   Level
	Title   string
	Message string
}

// Notifier surfaces notifications to the user.
//
// Every terminal failure of a core operation produces exactly one call.
type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc adapts a function to [Notifier].
type NotifierFunc func(Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

// LogNotifier writes notifications through a [log.Logger].
type LogNotifier struct {
	logger *log.Logger
}

// NewLogNotifier creates a [LogNotifier]; a nil logger falls back to [NewLogger].
func NewLogNotifier(l *log.Logger) *LogNotifier {
	if l == nil {
		l = NewLogger(nil)
	}
	return &LogNotifier{logger: l}
}

func (n *LogNotifier) Notify(note Notification) {
	switch note.Level {
	case LevelError:
		n.logger.Error(note.Title, "detail", note.Message)
	case LevelWarn:
		n.logger.Warn(note.Title, "detail", note.Message)
	default:
		n.logger.Info(note.Title, "detail", note.Message)
	}
}
