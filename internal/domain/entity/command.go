package entity

import (
	"strings"
	"time"
)

// CommandKind tags an inbound command.
type CommandKind string

const (
	CommandSetServerAddress  CommandKind = "setServerAddress"
	CommandGetStreams        CommandKind = "getStreams"
	CommandGetConsumers      CommandKind = "getConsumers"
	CommandFetchMessageTrace CommandKind = "fetchMessageTrace"
	CommandListenForFailures CommandKind = "listenForFailures"
)

// Command is the closed set of requests the presentation layer can send.
type Command interface {
	Kind() CommandKind
	command()
}

// SetServerAddress replaces the connection and everything derived from it.
type SetServerAddress struct {
	Address string
}

// GetStreams restarts the consumer session from StartTime.
type GetStreams struct {
	StartTime time.Time
}

// GetConsumers lists the non-diagnostic consumers of Stream.
type GetConsumers struct {
	Stream string
}

// FetchMessageTrace opens a trace subscription for MessageID.
type FetchMessageTrace struct {
	MessageID string
}

// ListenForFailures starts the failure feed from StartTime.
type ListenForFailures struct {
	StartTime time.Time
}

func (SetServerAddress) Kind() CommandKind  { return CommandSetServerAddress }
func (GetStreams) Kind() CommandKind        { return CommandGetStreams }
func (GetConsumers) Kind() CommandKind      { return CommandGetConsumers }
func (FetchMessageTrace) Kind() CommandKind { return CommandFetchMessageTrace }
func (ListenForFailures) Kind() CommandKind { return CommandListenForFailures }

func (SetServerAddress) command()  {}
func (GetStreams) command()        {}
func (GetConsumers) command()      {}
func (FetchMessageTrace) command() {}
func (ListenForFailures) command() {}

// IsSubjectToken reports whether s can stand as one literal token of a
// subject: non-empty, without separators, wildcards or whitespace.
func IsSubjectToken(s string) bool {
	return s != "" && !strings.ContainsAny(s, ".*> \t\r\n")
}
