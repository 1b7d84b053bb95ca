package starlark

import (
	"strings"
	"sync"
	"unicode/utf8"

	"go.starlark.net/starlark"
)

// truncationNotice is appended once when a console reaches its limit.
const truncationNotice = "[output truncated]\n"

// Console collects text printed by one execution.
//
// Each execution owns its own Console, wired in as the thread's Print hook,
// so concurrent executions never share an output channel. After Close the
// console drops further writes, which covers a cancelled thread that is
// still unwinding.
type Console struct {
	mu        sync.Mutex
	buf       strings.Builder
	limit     int
	truncated bool
	closed    bool
}

// NewConsole creates a console holding at most limit bytes.
// A limit <= 0 means unbounded.
func NewConsole(limit int) *Console {
	return &Console{limit: limit}
}

// Print implements the starlark.Thread Print hook.
func (c *Console) Print(_ *starlark.Thread, msg string) {
	c.Write(msg + "\n")
}

// Write appends text to the console.
func (c *Console) Write(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.truncated {
		return
	}
	if c.limit > 0 && c.buf.Len()+len(s) > c.limit {
		// Cut on a rune boundary so the captured text stays valid UTF-8.
		cut := c.limit - c.buf.Len()
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		c.buf.WriteString(s[:cut])
		c.buf.WriteString(truncationNotice)
		c.truncated = true
		return
	}
	c.buf.WriteString(s)
}

// String returns the text captured so far.
func (c *Console) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.String()
}

// Close releases the console and returns everything it captured.
// Close is idempotent.
func (c *Console) Close() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return c.buf.String()
}
