package client

import (
	"fmt"
	"time"
)

// State is the session's position in anonymous → authenticated ⇄ refreshing.
type State uint8

const (
	StateAnonymous State = iota
	StateAuthenticated
	StateRefreshing
)

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticated:
		return "authenticated"
	case StateRefreshing:
		return "refreshing"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Snapshot is the last known user view. It is only as fresh as FetchedAt.
type Snapshot struct {
	UserID      string
	Email       string
	DisplayName string
	Roles       []string
	Permissions []string
	FetchedAt   time.Time
}

func (s *Snapshot) clone() *Snapshot {
	if s == nil {
		return nil
	}
	out := *s
	out.Roles = append([]string(nil), s.Roles...)
	out.Permissions = append([]string(nil), s.Permissions...)
	return &out
}

// Session is a point-in-time copy of the coordinator's state. Tokens are
// included so callers can persist them; treat them as secrets.
type Session struct {
	State           State
	AccessToken     string
	RefreshToken    string
	AccessExpiresAt time.Time
	Snapshot        *Snapshot
}

// Authenticated reports whether the session holds tokens.
func (s Session) Authenticated() bool {
	return s.State != StateAnonymous && s.AccessToken != ""
}
