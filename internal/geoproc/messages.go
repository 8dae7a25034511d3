package geoproc

import (
	"fmt"
	"strings"
	"sync"
)

// Messages collects the diagnostic log of tool calls, the way a desktop
// geoprocessing engine keeps a message buffer for its last operations.
type Messages struct {
	mu    sync.Mutex
	lines []string
}

// Addf appends a formatted message.
func (m *Messages) Addf(format string, args ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lines = append(m.lines, fmt.Sprintf(format, args...))
}

// Lines returns a copy of the buffered messages.
func (m *Messages) Lines() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.lines))
	copy(out, m.lines)
	return out
}

// String joins the buffered messages with newlines.
func (m *Messages) String() string {
	return strings.Join(m.Lines(), "\n")
}

// Reset clears the buffer.
func (m *Messages) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lines = nil
}
