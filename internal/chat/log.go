package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/navikt/liveroom/internal/models"
)

var (
	// ErrEmptyMessage is returned when sending a blank message
	ErrEmptyMessage = errors.New("message is empty")
	// ErrMessageTooLong is returned when a message exceeds MaxMessageLength characters
	ErrMessageTooLong = fmt.Errorf("message exceeds %d characters", models.MaxMessageLength)
	// ErrClosed is returned once the log has been closed
	ErrClosed = errors.New("chat log closed")
)

// ValidateText checks a message body before anything is sent
func ValidateText(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > models.MaxMessageLength {
		return ErrMessageTooLong
	}
	return nil
}

// Options configures a Log
type Options struct {
	// OnChange receives a snapshot after every change of the visible log
	OnChange func([]models.ChatMessage)
	// OnError receives send and refresh failures
	OnError func(error)
	// Now overrides the clock
	Now func() time.Time
}

// Log holds the chat of one session as displayed in the room
type Log struct {
	sessionID string
	transport Transport
	author    models.Participant
	onChange  func([]models.ChatMessage)
	onError   func(error)
	now       func() time.Time

	mu        sync.Mutex
	messages  []models.ChatMessage
	notices   []models.ChatMessage
	loaded    bool
	closed    bool
	lastLocal int64
}

// NewLog creates the chat log of sessionID written to as author
func NewLog(sessionID string, transport Transport, author models.Participant, opts Options) *Log {
	l := &Log{
		sessionID: sessionID,
		transport: transport,
		author:    author,
		onChange:  opts.OnChange,
		onError:   opts.OnError,
		now:       opts.Now,
	}
	if l.now == nil {
		l.now = time.Now
	}
	return l
}

// Transport returns the transport the log sends and fetches through
func (l *Log) Transport() Transport {
	return l.transport
}

// SessionID returns the session the log belongs to
func (l *Log) SessionID() string {
	return l.sessionID
}

// Messages returns the visible log sorted ascending by timestamp
func (l *Log) Messages() []models.ChatMessage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

// AddNotice adds a local system notice that is never sent to the backend
func (l *Log) AddNotice(text string) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.notices = append(l.notices, models.ChatMessage{
		ID:        models.Pending(-int64(len(l.notices) + 1)),
		UserName:  "System",
		UserRole:  models.RoleSystem,
		Message:   text,
		Timestamp: l.now(),
	})
	snapshot := l.snapshotLocked()
	l.mu.Unlock()

	l.emit(snapshot)
}

// Refresh fetches the log from the backend and reconciles it with local
// state. Results that arrive after ctx is done or the log is closed are
// discarded.
func (l *Log) Refresh(ctx context.Context) error {
	fetched, err := l.transport.Fetch(ctx, l.sessionID)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		err = fmt.Errorf("failed to fetch messages: %w", err)
		l.report(err)
		return err
	}

	// Entries without a server ID cannot be reconciled
	confirmed := make([]models.ChatMessage, 0, len(fetched))
	for _, m := range fetched {
		if !m.ID.IsPending() {
			m.Local = false
			confirmed = append(confirmed, m)
		}
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	l.messages = Reconcile(l.messages, confirmed, !l.loaded)
	l.loaded = true
	snapshot := l.snapshotLocked()
	l.mu.Unlock()

	l.emit(snapshot)
	return nil
}

// Send appends the message optimistically, then persists it. On success the
// placeholder ID is swapped for the server-assigned one; on failure the entry
// stays in the log flagged as failed.
func (l *Log) Send(ctx context.Context, text string) (models.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if err := ValidateText(text); err != nil {
		return models.ChatMessage{}, err
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return models.ChatMessage{}, ErrClosed
	}
	ts := l.now()
	msg := models.ChatMessage{
		ID:        models.Pending(l.nextLocalIDLocked(ts)),
		UserID:    l.author.ID,
		UserName:  l.author.Name,
		UserRole:  l.author.Role,
		Message:   text,
		Timestamp: ts,
		Local:     true,
	}
	l.messages = append(l.messages, msg)
	SortByTimestamp(l.messages)
	snapshot := l.snapshotLocked()
	l.mu.Unlock()

	l.emit(snapshot)

	saved, sendErr := l.transport.Send(ctx, l.sessionID, text, ts)

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		if sendErr != nil {
			return msg, sendErr
		}
		return saved, nil
	}

	idx := indexOf(l.messages, msg.ID)
	switch {
	case sendErr != nil:
		msg.Failed = true
		if idx >= 0 {
			l.messages[idx].Failed = true
		}
	case saved.ID.IsPending():
		// No server ID to reconcile with; the next refresh brings the persisted copy
		if idx >= 0 {
			l.messages = append(l.messages[:idx], l.messages[idx+1:]...)
		}
		msg = saved
	case indexOf(l.messages, saved.ID) >= 0:
		// A refresh already delivered the persisted copy
		if idx >= 0 {
			l.messages = append(l.messages[:idx], l.messages[idx+1:]...)
		}
		msg.ID = saved.ID
	default:
		msg.ID = saved.ID
		if idx >= 0 {
			l.messages[idx].ID = saved.ID
		}
	}
	snapshot = l.snapshotLocked()
	l.mu.Unlock()

	l.emit(snapshot)

	if sendErr != nil {
		err := fmt.Errorf("failed to send message: %w", sendErr)
		l.report(err)
		return msg, err
	}
	return msg, nil
}

// Close stops the log from accepting updates
func (l *Log) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
}

func (l *Log) nextLocalIDLocked(ts time.Time) int64 {
	id := ts.UnixMilli()
	if id <= l.lastLocal {
		id = l.lastLocal + 1
	}
	l.lastLocal = id
	return id
}

func (l *Log) snapshotLocked() []models.ChatMessage {
	out := make([]models.ChatMessage, 0, len(l.messages)+len(l.notices))
	out = append(out, l.notices...)
	out = append(out, l.messages...)
	SortByTimestamp(out)
	return out
}

func (l *Log) emit(snapshot []models.ChatMessage) {
	if l.onChange != nil {
		l.onChange(snapshot)
	}
}

func (l *Log) report(err error) {
	if l.onError != nil {
		l.onError(err)
	}
}

func indexOf(msgs []models.ChatMessage, id models.MessageID) int {
	for i, m := range msgs {
		if m.ID == id {
			return i
		}
	}
	return -1
}
