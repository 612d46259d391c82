package notification

import (
	"context"
	"encoding/json"
	"os/exec"
	"time"
)

// Notifier delivers messages to every connected device of a user.
// Delivery is best effort; implementations must not block for long.
type Notifier interface {
	BroadcastToUser(userID string, msg Message)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(userID string, msg Message)

// BroadcastToUser calls f.
func (f NotifierFunc) BroadcastToUser(userID string, msg Message) { f(userID, msg) }

// Multi fans a message out to several notifiers. Nil entries are skipped.
type Multi []Notifier

// BroadcastToUser delivers msg to every notifier in m.
func (m Multi) BroadcastToUser(userID string, msg Message) {
	for _, n := range m {
		if n != nil {
			n.BroadcastToUser(userID, msg)
		}
	}
}

// CommandNotifier hands each message to an external command, for example a
// chat-bridge CLI:
//
//	<Command> <Args...> --user <userID> --message <json>
//
// Fire-and-forget: failures are ignored. No-op when Command is empty.
type CommandNotifier struct {
	Command string
	Args    []string
	Timeout time.Duration
}

// BroadcastToUser runs the command with msg encoded as JSON.
func (c *CommandNotifier) BroadcastToUser(userID string, msg Message) {
	if c == nil || c.Command == "" {
		return
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	args := append(append([]string{}, c.Args...), "--user", userID, "--message", string(payload))
	cmd := exec.CommandContext(ctx, c.Command, args...)

	// Fire and forget - ignore errors
	_ = cmd.Run()
}
