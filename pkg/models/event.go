package models

import "time"

// EventKind discriminates the Event tagged union streamed out of the agent
// loop: one token of generated text, one tool-call lifecycle transition, one
// log line, or the terminal done event for a turn.
type EventKind string

const (
	EventKindToken EventKind = "token"
	EventKindTool  EventKind = "tool"
	EventKindLog   EventKind = "log"
	EventKindDone  EventKind = "done"
)

// ToolEventStatus is the lifecycle stage of a single tool invocation.
type ToolEventStatus string

const (
	ToolEventStart ToolEventStatus = "start"
	ToolEventEnd   ToolEventStatus = "end"
	ToolEventError ToolEventStatus = "error"
)

// LogLevel mirrors the small set of levels the agent loop itself emits;
// component logging otherwise goes through log/slog directly.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Event is the single streaming unit emitted by the agent loop. Exactly one
// of the payload fields matching Kind is populated.
type Event struct {
	Kind EventKind `json:"kind"`

	Token *TokenEvent `json:"token,omitempty"`
	Tool  *ToolEvent  `json:"tool,omitempty"`
	Log   *LogEvent   `json:"log,omitempty"`
	Done  *DoneEvent  `json:"done,omitempty"`
}

// TokenEvent carries one increment of generated text.
type TokenEvent struct {
	Text string `json:"text"`
}

// ToolEvent reports one tool call's lifecycle transition. Args is only
// populated on start; ResultPreview only on end/error.
type ToolEvent struct {
	Tool          string          `json:"tool"`
	Args          string          `json:"args,omitempty"`
	Status        ToolEventStatus `json:"status"`
	Timestamp     time.Time       `json:"ts"`
	LatencyMS     int64           `json:"latency_ms,omitempty"`
	ResultPreview string          `json:"result_preview,omitempty"`
}

// LogEvent carries an internal diagnostic line surfaced to the event
// consumer, distinct from structured component logging.
type LogEvent struct {
	Level LogLevel `json:"level"`
	Msg   string   `json:"msg"`
}

// DoneEvent terminates the stream for one agent turn.
type DoneEvent struct {
	Metadata  TurnMetadata `json:"metadata"`
	FinalText string       `json:"final_text"`
}

// TurnMetadata summarizes how a turn concluded.
type TurnMetadata struct {
	Iterations int    `json:"iterations"`
	ToolCalls  int    `json:"tool_calls"`
	Status     string `json:"status"`
}

func newEvent(kind EventKind) Event { return Event{Kind: kind} }

// NewTokenEvent builds a token Event.
func NewTokenEvent(text string) Event {
	e := newEvent(EventKindToken)
	e.Token = &TokenEvent{Text: text}
	return e
}

// NewLogEvent builds a log Event.
func NewLogEvent(level LogLevel, msg string) Event {
	e := newEvent(EventKindLog)
	e.Log = &LogEvent{Level: level, Msg: msg}
	return e
}

// NewToolEvent builds a tool Event.
func NewToolEvent(tool ToolEvent) Event {
	e := newEvent(EventKindTool)
	e.Tool = &tool
	return e
}

// NewDoneEvent builds the terminal done Event for a turn.
func NewDoneEvent(finalText string, meta TurnMetadata) Event {
	e := newEvent(EventKindDone)
	e.Done = &DoneEvent{FinalText: finalText, Metadata: meta}
	return e
}
