// Package membership tracks which clients are in which rooms.
//
// A room exists only while it has members: it is created by the first join
// and deleted by the departure that empties it. All removals go through
// Table.remove, so no mutation can leave an empty room behind.
package membership

import (
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"

	"webrtc-rendezvous/pkg/presence"
)

type set map[string]struct{}

// Occupancy is the member count of one live room.
type Occupancy struct {
	RoomID  string `json:"roomId"`
	Members int    `json:"members"`
}

// Table is an in-process room membership table, safe for concurrent use.
type Table struct {
	mu       sync.Mutex
	rooms    map[string]set
	byClient map[string]set
	logger   *slog.Logger
}

func NewTable(logger *slog.Logger) *Table {
	if logger == nil {
		logger = slog.Default()
	}
	return &Table{
		rooms:    make(map[string]set),
		byClient: make(map[string]set),
		logger:   logger,
	}
}

// Join adds clientID to roomID, creating the room if needed, and returns the
// other members present immediately before the add. Joining twice leaves the
// member set unchanged.
func (t *Table) Join(roomID, clientID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	members, ok := t.rooms[roomID]
	if !ok {
		members = make(set)
		t.rooms[roomID] = members
		t.logger.Debug("room created", "room", roomID)
	}
	others := make([]string, 0, len(members))
	for id := range members {
		if id != clientID {
			others = append(others, id)
		}
	}
	slices.Sort(others)

	members[clientID] = struct{}{}
	joined, ok := t.byClient[clientID]
	if !ok {
		joined = make(set)
		t.byClient[clientID] = joined
	}
	joined[roomID] = struct{}{}
	return others
}

// Leave removes clientID from roomID. ok is false when the client was not a
// member, in which case nothing changes.
func (t *Table) Leave(roomID, clientID string) (remaining []string, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remove(roomID, clientID)
}

// LeaveAll removes clientID from every room it belongs to.
func (t *Table) LeaveAll(clientID string) []presence.Departure {
	t.mu.Lock()
	defer t.mu.Unlock()

	rooms := slices.Sorted(maps.Keys(t.byClient[clientID]))
	departures := make([]presence.Departure, 0, len(rooms))
	for _, roomID := range rooms {
		if remaining, ok := t.remove(roomID, clientID); ok {
			departures = append(departures, presence.Departure{RoomID: roomID, Remaining: remaining})
		}
	}
	return departures
}

// remove is the only path that shrinks a room. Callers hold t.mu.
func (t *Table) remove(roomID, clientID string) ([]string, bool) {
	members, ok := t.rooms[roomID]
	if !ok {
		return nil, false
	}
	if _, ok := members[clientID]; !ok {
		return nil, false
	}

	delete(members, clientID)
	if joined := t.byClient[clientID]; joined != nil {
		delete(joined, roomID)
		if len(joined) == 0 {
			delete(t.byClient, clientID)
		}
	}
	if len(members) == 0 {
		delete(t.rooms, roomID)
		t.logger.Debug("room removed", "room", roomID)
		return nil, true
	}
	return slices.Sorted(maps.Keys(members)), true
}

// Members returns the sorted members of roomID, or nil if the room does not exist.
func (t *Table) Members(roomID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	members, ok := t.rooms[roomID]
	if !ok {
		return nil
	}
	return slices.Sorted(maps.Keys(members))
}

// Rooms returns the sorted rooms clientID belongs to.
func (t *Table) Rooms(clientID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Sorted(maps.Keys(t.byClient[clientID]))
}

// Len reports the number of live rooms.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.rooms)
}

// Snapshot returns the occupancy of every live room, ordered by room id.
func (t *Table) Snapshot() []Occupancy {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Occupancy, 0, len(t.rooms))
	for roomID, members := range t.rooms {
		out = append(out, Occupancy{RoomID: roomID, Members: len(members)})
	}
	slices.SortFunc(out, func(a, b Occupancy) int {
		return strings.Compare(a.RoomID, b.RoomID)
	})
	return out
}
