package domain

import "fmt"

// ConnID identifies a transport connection. The transport owns the
// connection itself; the core only uses the id for lookups.
type ConnID string

// Member is a participant of a lobby (value object)
type Member struct {
	Username string `json:"username"`
	Conn     ConnID `json:"-"`
	Active   bool   `json:"active"`
}

// HostRef identifies the host of a lobby
type HostRef struct {
	Username string
	Conn     ConnID
}

// FormatDisplay formats for display
func (m *Member) FormatDisplay() string {
	if !m.Active {
		return fmt.Sprintf("%s (inactive)", m.Username)
	}
	return m.Username
}
