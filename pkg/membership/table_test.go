package membership

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webrtc-rendezvous/pkg/presence"
)

func newTestTable() *Table {
	return NewTable(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestTable_Join(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(*Table)
		room       string
		client     string
		wantOthers []string
		wantSize   int
	}{
		{
			name:       "first join creates room",
			setup:      func(*Table) {},
			room:       "x",
			client:     "a",
			wantOthers: []string{},
			wantSize:   1,
		},
		{
			name: "second join sees first",
			setup: func(tb *Table) {
				tb.Join("x", "a")
			},
			room:       "x",
			client:     "b",
			wantOthers: []string{"a"},
			wantSize:   2,
		},
		{
			name: "duplicate join excludes self and keeps size",
			setup: func(tb *Table) {
				tb.Join("x", "a")
				tb.Join("x", "b")
			},
			room:       "x",
			client:     "b",
			wantOthers: []string{"a"},
			wantSize:   2,
		},
		{
			name: "room ids are case sensitive",
			setup: func(tb *Table) {
				tb.Join("X", "a")
			},
			room:       "x",
			client:     "b",
			wantOthers: []string{},
			wantSize:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tb := newTestTable()
			tt.setup(tb)

			others := tb.Join(tt.room, tt.client)

			assert.Equal(t, tt.wantOthers, others)
			assert.NotContains(t, others, tt.client)
			assert.Len(t, tb.Members(tt.room), tt.wantSize)
		})
	}
}

func TestTable_Leave(t *testing.T) {
	tb := newTestTable()
	tb.Join("x", "a")
	tb.Join("x", "b")

	remaining, ok := tb.Leave("x", "c")
	assert.False(t, ok, "non-member leave is a no-op")
	assert.Nil(t, remaining)

	remaining, ok = tb.Leave("nope", "a")
	assert.False(t, ok, "missing room leave is a no-op")
	assert.Nil(t, remaining)

	remaining, ok = tb.Leave("x", "a")
	require.True(t, ok)
	assert.Equal(t, []string{"b"}, remaining)
	assert.Empty(t, tb.Rooms("a"))

	remaining, ok = tb.Leave("x", "b")
	require.True(t, ok)
	assert.Empty(t, remaining)
	assert.Nil(t, tb.Members("x"), "emptied room is deleted")
	assert.Equal(t, 0, tb.Len())

	assert.Empty(t, tb.Join("x", "c"), "rejoin behaves as a fresh room")
}

func TestTable_LeaveAll(t *testing.T) {
	tb := newTestTable()
	tb.Join("x", "a")
	tb.Join("x", "b")
	tb.Join("y", "a")
	tb.Join("z", "b")

	departures := tb.LeaveAll("a")

	assert.Equal(t, []presence.Departure{
		{RoomID: "x", Remaining: []string{"b"}},
		{RoomID: "y", Remaining: nil},
	}, departures)
	assert.Empty(t, tb.Rooms("a"))
	assert.Equal(t, []Occupancy{{RoomID: "x", Members: 1}, {RoomID: "z", Members: 1}}, tb.Snapshot())

	assert.Empty(t, tb.LeaveAll("a"), "second release is empty")
}

func TestTable_ConcurrentJoinLeave(t *testing.T) {
	tb := newTestTable()
	clients := []string{"a", "b", "c", "d", "e", "f", "g", "h"}

	var wg sync.WaitGroup
	for _, id := range clients {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				tb.Join("x", id)
				tb.Join("y", id)
				tb.Leave("x", id)
				tb.LeaveAll(id)
			}
		}(id)
	}
	wg.Wait()

	assert.Equal(t, 0, tb.Len())
	assert.Empty(t, tb.Snapshot())
}
