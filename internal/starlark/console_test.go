package starlark

import (
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestConsole(t *testing.T) {
	tests := []struct {
		name   string
		limit  int
		writes []string
		want   string
	}{
		{
			name:   "unbounded",
			writes: []string{"a\n", "b\n"},
			want:   "a\nb\n",
		},
		{
			name:   "truncated once",
			limit:  4,
			writes: []string{"abc\n", "def\n", "ghi\n"},
			want:   "abc\n" + truncationNotice,
		},
		{
			name:   "truncated mid write",
			limit:  2,
			writes: []string{"abcd"},
			want:   "ab" + truncationNotice,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewConsole(tt.limit)
			for _, w := range tt.writes {
				c.Write(w)
			}
			assert.Equal(t, tt.want, c.Close())
		})
	}
}

func TestConsole_TruncatesOnRuneBoundary(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		input string
		want  string
	}{
		{name: "inside a two-byte rune", limit: 3, input: "aéé", want: "aé"},
		{name: "inside a three-byte rune", limit: 4, input: "ab€€", want: "ab"},
		{name: "on a boundary", limit: 3, input: "aéx", want: "aé"},
		{name: "first rune too wide", limit: 1, input: "€", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewConsole(tt.limit)
			c.Write(tt.input)
			got := c.Close()
			assert.True(t, utf8.ValidString(got))
			assert.Equal(t, tt.want, strings.TrimSuffix(got, truncationNotice))
		})
	}
}

func TestConsole_DropsWritesAfterClose(t *testing.T) {
	c := NewConsole(0)
	c.Print(nil, "before")
	assert.Equal(t, "before\n", c.Close())

	c.Print(nil, "after")
	assert.Equal(t, "before\n", c.String())
	assert.Equal(t, "before\n", c.Close(), "Close is idempotent")
}

func TestConsole_ConcurrentWrites(t *testing.T) {
	c := NewConsole(0)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Write("x")
		}()
	}
	wg.Wait()
	assert.Len(t, c.Close(), 50)
}
