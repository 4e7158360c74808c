// Package mock provides test doubles for Discord messaging.
package mock

import (
	"sync"

	"github.com/bwmarrin/discordgo"
)

// SentMessage is one recorded ChannelMessageSend call.
type SentMessage struct {
	ChannelID string
	Content   string
}

// Sender records channel messages for test assertions. It is safe for
// concurrent use.
type Sender struct {
	mu   sync.Mutex
	sent []SentMessage

	// Err is returned by ChannelMessageSend when non-nil, allowing error
	// injection. Failed sends are still recorded.
	Err error
}

// ChannelMessageSend records the message and returns a stub message or the
// configured error.
func (m *Sender) ChannelMessageSend(channelID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, SentMessage{ChannelID: channelID, Content: content})
	if m.Err != nil {
		return nil, m.Err
	}
	return &discordgo.Message{ID: "mock-message", ChannelID: channelID, Content: content}, nil
}

// Sent returns a copy of all recorded messages.
func (m *Sender) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentMessage, len(m.sent))
	copy(out, m.sent)
	return out
}

// Messages returns the content of all recorded messages.
func (m *Sender) Messages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.sent))
	for i, s := range m.sent {
		out[i] = s.Content
	}
	return out
}

// Last returns the content of the most recent message, or "".
func (m *Sender) Last() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return ""
	}
	return m.sent[len(m.sent)-1].Content
}

// Reset clears all recorded messages and errors.
func (m *Sender) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
	m.Err = nil
}
