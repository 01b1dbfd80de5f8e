package notifier

import (
	"context"
	"errors"
	"strings"
)

// Destination identifies a chat that can receive messages.
// It is comparable so it can key a set.
type Destination struct {
	Channel string `json:"channel"` // e.g. "telegram", "discord"
	ChatID  string `json:"chat_id"`
}

func (d Destination) String() string {
	return d.Channel + ":" + d.ChatID
}

// Markup renders emphasis in a channel's message dialect.
type Markup interface {
	Bold(s string) string
	Code(s string) string
	// Escape makes plain text safe to embed in a message.
	Escape(s string) string
}

// PlainMarkup renders no emphasis.
type PlainMarkup struct{}

func (PlainMarkup) Bold(s string) string   { return s }
func (PlainMarkup) Code(s string) string   { return s }
func (PlainMarkup) Escape(s string) string { return s }

// Command is a slash command received from a chat.
type Command struct {
	Name   string // without the leading slash or @bot suffix, lower-cased
	Args   []string
	Source Destination
	From   string // sender display name, informational only
}

// CommandHandler processes a command and returns the reply text.
// An empty reply means nothing is sent back.
type CommandHandler func(ctx context.Context, cmd Command) string

// ParseCommand extracts a command from message text.
// "/alerts@my_bot now" yields name "alerts" and args ["now"].
func ParseCommand(text string) (name string, args []string, ok bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", nil, false
	}

	name = strings.TrimPrefix(fields[0], "/")
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}
	if name == "" {
		return "", nil, false
	}

	return strings.ToLower(name), fields[1:], true
}

// Channel is a chat transport that can deliver messages and receive commands.
type Channel interface {
	// Name is the Destination.Channel value this channel serves.
	Name() string

	// Markup returns the emphasis dialect for messages sent through this channel.
	Markup() Markup

	// Enabled reports whether the channel has credentials to operate.
	Enabled() bool

	// Send delivers text to a chat.
	Send(ctx context.Context, chatID, text string) error

	// Listen receives commands until ctx is done and replies with the handler's output.
	Listen(ctx context.Context, handler CommandHandler) error

	// Close cleans up any resources.
	Close() error
}

// MultiNotifier routes messages to channels by name.
type MultiNotifier struct {
	channels []Channel
	byName   map[string]Channel
}

// NewMultiNotifier creates a new MultiNotifier with the given channels.
// Nil and disabled channels are dropped.
func NewMultiNotifier(channels ...Channel) *MultiNotifier {
	m := &MultiNotifier{byName: make(map[string]Channel)}
	for _, c := range channels {
		if c == nil || !c.Enabled() {
			continue
		}
		m.channels = append(m.channels, c)
		m.byName[c.Name()] = c
	}
	return m
}

// Channel looks up a channel by name.
func (m *MultiNotifier) Channel(name string) (Channel, bool) {
	c, ok := m.byName[name]
	return c, ok
}

// Channels returns the active channels.
func (m *MultiNotifier) Channels() []Channel {
	out := make([]Channel, len(m.channels))
	copy(out, m.channels)
	return out
}

// Close closes all registered channels.
func (m *MultiNotifier) Close() error {
	var errs []error
	for _, c := range m.channels {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Count returns the number of active channels.
func (m *MultiNotifier) Count() int {
	return len(m.channels)
}
