// Package sessionlog records every attempt of a session and its timestamped
// diagnostic transcript. Each line is forwarded synchronously to observers and
// to a durable sink, and the host event loop is pumped after every line.
package sessionlog

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"devagent/pkg/logx"
	"devagent/pkg/proto"
)

// Attempt lifecycle errors.
var (
	ErrAttemptLive   = errors.New("an attempt is already live")
	ErrNoLiveAttempt = errors.New("no live attempt")
)

// Observer receives each transcript line as it is recorded.
type Observer func(line proto.TranscriptLine)

// Sink durably stores lines and sealed attempts.
type Sink interface {
	WriteLine(sessionID string, line proto.TranscriptLine) error
	WriteAttempt(sessionID string, attempt proto.Attempt) error
}

// Pump keeps the host responsive between lines.
type Pump interface {
	ProcessEvents()
}

// Option configures a Log.
type Option func(*Log)

// WithSink sets the durable sink.
func WithSink(sink Sink) Option { return func(l *Log) { l.sink = sink } }

// WithPump sets the host event pump.
func WithPump(pump Pump) Option { return func(l *Log) { l.pump = pump } }

// WithObserver registers an observer.
func WithObserver(obs Observer) Option {
	return func(l *Log) { l.observers = append(l.observers, obs) }
}

// WithClock overrides time.Now.
func WithClock(clock func() time.Time) Option { return func(l *Log) { l.clock = clock } }

// Log is the session log for one request. Attempts are owned by the log: the
// live attempt is mutable through the Set methods until sealed, after which
// only copies are handed out.
type Log struct {
	sessionID string
	clock     func() time.Time
	sink      Sink
	pump      Pump
	logger    *logx.Logger

	mu        sync.Mutex
	observers []Observer
	lines     []proto.TranscriptLine
	live      *proto.Attempt
	sealed    []proto.Attempt
}

// New creates a session log.
func New(sessionID string, opts ...Option) *Log {
	l := &Log{
		sessionID: sessionID,
		clock:     time.Now,
		logger:    logx.NewLogger("sessionlog"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// SessionID returns the session identifier.
func (l *Log) SessionID() string { return l.sessionID }

// AddObserver registers obs for subsequent lines.
func (l *Log) AddObserver(obs Observer) {
	l.mu.Lock()
	l.observers = append(l.observers, obs)
	l.mu.Unlock()
}

// Record appends a line to the transcript (and to the live attempt, if any),
// then notifies observers, the sink and the host pump, in that order. Sink
// failures are logged and never stop the session.
func (l *Log) Record(text string, isError bool) {
	l.mu.Lock()
	line := proto.TranscriptLine{
		Time:    l.clock(),
		Attempt: proto.NoAttempt,
		IsError: isError,
		Text:    text,
	}
	if l.live != nil {
		line.Attempt = l.live.Index
		l.live.DiagnosticTranscript = append(l.live.DiagnosticTranscript, line)
	}
	l.lines = append(l.lines, line)
	observers := append([]Observer(nil), l.observers...)
	l.mu.Unlock()

	if isError {
		l.logger.Warn("%s", text)
	} else {
		l.logger.Debug("%s", text)
	}

	for _, obs := range observers {
		obs(line)
	}
	if l.sink != nil {
		if err := l.sink.WriteLine(l.sessionID, line); err != nil {
			l.logger.Warn("⚠️ Failed to persist transcript line: %v", err)
		}
	}
	if l.pump != nil {
		l.pump.ProcessEvents()
	}
}

// Recordf is Record with formatting.
func (l *Log) Recordf(isError bool, format string, args ...any) {
	l.Record(fmt.Sprintf(format, args...), isError)
}

// StartAttempt makes a new attempt live.
func (l *Log) StartAttempt(index int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.live != nil {
		return fmt.Errorf("%w: attempt %d", ErrAttemptLive, l.live.Index)
	}
	l.live = proto.NewAttempt(index, l.clock())
	return nil
}

func (l *Log) update(fn func(a *proto.Attempt)) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.live == nil {
		return ErrNoLiveAttempt
	}
	fn(l.live)
	return nil
}

// SetGenerated stores the generated text; nil marks a generation failure.
func (l *Log) SetGenerated(text *string) error {
	return l.update(func(a *proto.Attempt) {
		if text == nil {
			a.GeneratedText = nil
			return
		}
		copied := *text
		a.GeneratedText = &copied
	})
}

// SetValidation stores the validation outcome.
func (l *Log) SetValidation(v proto.ValidationOutcome) error {
	return l.update(func(a *proto.Attempt) { a.ValidationOutcome = v })
}

// SetExecution stores the execution outcome.
func (l *Log) SetExecution(e proto.ExecutionOutcome) error {
	return l.update(func(a *proto.Attempt) { a.ExecutionOutcome = e })
}

// SealAttempt freezes the live attempt, stores it and returns a copy.
func (l *Log) SealAttempt() (proto.Attempt, error) {
	l.mu.Lock()
	if l.live == nil {
		l.mu.Unlock()
		return proto.Attempt{}, ErrNoLiveAttempt
	}
	l.live.SealedAt = l.clock()
	sealed := l.live.Clone()
	l.sealed = append(l.sealed, sealed)
	l.live = nil
	l.mu.Unlock()

	if l.sink != nil {
		if err := l.sink.WriteAttempt(l.sessionID, sealed.Clone()); err != nil {
			l.logger.Warn("⚠️ Failed to persist attempt %d: %v", sealed.Index, err)
		}
	}
	return sealed.Clone(), nil
}

// Live returns a copy of the live attempt.
func (l *Log) Live() (proto.Attempt, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.live == nil {
		return proto.Attempt{}, false
	}
	return l.live.Clone(), true
}

// Attempts returns copies of the sealed attempts in order.
func (l *Log) Attempts() []proto.Attempt {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]proto.Attempt, len(l.sealed))
	for i := range l.sealed {
		out[i] = l.sealed[i].Clone()
	}
	return out
}

// Transcript returns a copy of every recorded line.
func (l *Log) Transcript() []proto.TranscriptLine {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]proto.TranscriptLine(nil), l.lines...)
}
