package core

import (
	"fmt"
	"net"
	"time"

	"github.com/vovakirdan/linechat/internal/utils"
)

// UsernamePrompt is the first thing a freshly accepted connection receives.
const UsernamePrompt = "Please enter your username: "

const timestampLayout = "[15:04:05]"

// Timestamp renders t as [HH:MM:SS] in local time.
func Timestamp(t time.Time) string {
	return t.Local().Format(timestampLayout)
}

// JoinNotice announces a new session to everyone else.
func JoinNotice(t time.Time, name string) string {
	return fmt.Sprintf("%s %s has joined the chat!\n", Timestamp(t), name)
}

// WelcomeNotice is sent privately to the session that just joined.
func WelcomeNotice(t time.Time, name string) string {
	return fmt.Sprintf("%s Welcome to the chat, %s!\n", Timestamp(t), name)
}

// DepartureNotice announces a torn down session.
func DepartureNotice(t time.Time, name string) string {
	return fmt.Sprintf("%s %s has left the chat.\n", Timestamp(t), name)
}

// RelayLine formats a chat message for the other participants.
func RelayLine(t time.Time, name, body string) string {
	return fmt.Sprintf("%s %s: %s", Timestamp(t), name, body)
}

// GuestName derives a display name from the peer's ephemeral port.
func GuestName(remote net.Addr) string {
	if remote != nil {
		if _, port, err := net.SplitHostPort(remote.String()); err == nil && port != "" {
			return "Guest_" + port
		}
	}
	// Non-IP transports (pipes, unix sockets) have no port.
	return "Guest_" + utils.NewID()[:8]
}
