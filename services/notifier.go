package services

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"landmark-quest/logger"
)

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
)

// Notifier receives advisory, human-readable outcome messages.
type Notifier interface {
	Notify(ctx context.Context, playerID string, severity Severity, message string)
}

type Notification struct {
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Inbox buffers the most recent notifications per player until they are
// drained by the polling endpoint.
type Inbox struct {
	mu       sync.Mutex
	perUser  int
	messages map[string][]Notification
	now      func() time.Time
}

func NewInbox(perUser int) *Inbox {
	if perUser <= 0 {
		perUser = 20
	}
	return &Inbox{perUser: perUser, messages: make(map[string][]Notification), now: time.Now}
}

func (i *Inbox) Notify(ctx context.Context, playerID string, severity Severity, message string) {
	logger.WithFields(logrus.Fields{
		"player_id": playerID,
		"severity":  severity,
	}).Debug(message)

	i.mu.Lock()
	defer i.mu.Unlock()

	list := append(i.messages[playerID], Notification{Severity: severity, Message: message, CreatedAt: i.now()})
	if len(list) > i.perUser {
		list = list[len(list)-i.perUser:]
	}
	i.messages[playerID] = list
}

// Drain returns and clears the player's pending notifications.
func (i *Inbox) Drain(playerID string) []Notification {
	i.mu.Lock()
	defer i.mu.Unlock()

	list := i.messages[playerID]
	delete(i.messages, playerID)
	if list == nil {
		return []Notification{}
	}
	return list
}

// Pending counts undrained notifications without clearing them.
func (i *Inbox) Pending(playerID string) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.messages[playerID])
}
