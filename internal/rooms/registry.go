// Package rooms keeps the server's room membership as a two-way index:
// room to members and member to rooms. Both directions are updated under one
// lock, so for every room R and user U, U is a member of R exactly when R is
// one of U's rooms.
package rooms

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/codefionn/amchat/internal/logger"
)

var (
	// ErrRoomExists is the kind of error returned when creating a duplicate room.
	ErrRoomExists = errors.New("room exists")
	// ErrRoomNotFound is the kind of error returned for an unknown room.
	ErrRoomNotFound = errors.New("room not found")
	// ErrAlreadyMember is the kind of error returned for a duplicate subscription.
	ErrAlreadyMember = errors.New("already a member")
	// ErrNotMember is the kind of error returned when unsubscribing a non-member.
	ErrNotMember = errors.New("not a member")
)

// Error carries a user-facing message and unwraps to one of the sentinel
// errors above.
type Error struct {
	Kind error
	msg  string
}

func (e *Error) Error() string { return e.msg }

func (e *Error) Unwrap() error { return e.Kind }

func roomNotFound(room string) error {
	return &Error{Kind: ErrRoomNotFound, msg: fmt.Sprintf("No room with the name '%s' exists.", room)}
}

type set map[string]struct{}

// Registry is the authoritative room membership state.
type Registry struct {
	mu          sync.Mutex
	roomMembers map[string]set
	memberRooms map[string]set
	log         *logger.Logger
}

// New creates an empty registry.
func New(log *logger.Logger) *Registry {
	return &Registry{
		roomMembers: make(map[string]set),
		memberRooms: make(map[string]set),
		log:         logger.OrGlobal(log).WithPrefix("rooms"),
	}
}

// AddRoom creates an empty room.
func (r *Registry) AddRoom(room string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.roomMembers[room]; ok {
		return &Error{Kind: ErrRoomExists, msg: fmt.Sprintf("A room with the name '%s' already exists.", room)}
	}
	r.roomMembers[room] = make(set)
	r.log.Debug("room %q created", room)
	return nil
}

// DeleteRoom removes a room and returns its former members, sorted.
func (r *Registry) DeleteRoom(room string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.roomMembers[room]
	if !ok {
		return nil, roomNotFound(room)
	}

	for member := range members {
		rooms, ok := r.memberRooms[member]
		if _, in := rooms[room]; !ok || !in {
			r.log.Warn("inconsistent state: %q lists member %q but the member does not list the room (DeleteRoom)", room, member)
			continue
		}
		delete(rooms, room)
		if len(rooms) == 0 {
			delete(r.memberRooms, member)
		}
	}
	delete(r.roomMembers, room)
	r.log.Debug("room %q deleted (%d members)", room, len(members))
	return sortedKeys(members), nil
}

// Subscribe adds user to room.
func (r *Registry) Subscribe(room, user string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.roomMembers[room]
	if !ok {
		return roomNotFound(room)
	}
	rooms := r.memberRooms[user]
	_, inMembers := members[user]
	_, inRooms := rooms[room]
	if inMembers || inRooms {
		if inMembers != inRooms {
			r.log.Warn("inconsistent state: %q and %q disagree on membership (Subscribe)", room, user)
		}
		return &Error{Kind: ErrAlreadyMember, msg: fmt.Sprintf("User '%s' is already a member of room '%s'.", user, room)}
	}

	members[user] = struct{}{}
	if rooms == nil {
		rooms = make(set)
		r.memberRooms[user] = rooms
	}
	rooms[room] = struct{}{}
	return nil
}

// Unsubscribe removes user from room. It fails only when neither direction
// of the index records the membership; a one-sided record is repaired,
// logged, and reported as success.
func (r *Registry) Unsubscribe(room, user string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unsubscribeLocked(room, user)
}

func (r *Registry) unsubscribeLocked(room, user string) error {
	members, ok := r.roomMembers[room]
	if !ok {
		return roomNotFound(room)
	}

	_, wasRoomMember := members[user]
	delete(members, user)

	rooms := r.memberRooms[user]
	_, wasMemberRoom := rooms[room]
	delete(rooms, room)
	if rooms != nil && len(rooms) == 0 {
		delete(r.memberRooms, user)
	}

	if !wasRoomMember && !wasMemberRoom {
		return &Error{Kind: ErrNotMember, msg: fmt.Sprintf("User '%s' is not a member of room '%s'.", user, room)}
	}
	if wasRoomMember != wasMemberRoom {
		r.log.Warn("inconsistent state: %q and %q disagreed on membership (Unsubscribe)", room, user)
	}
	return nil
}

// UnsubscribeAll removes user from every room. Calling it for a user with no
// rooms does nothing.
func (r *Registry) UnsubscribeAll(user string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rooms, ok := r.memberRooms[user]
	if !ok {
		return
	}
	for _, room := range sortedKeys(rooms) {
		if err := r.unsubscribeLocked(room, user); err != nil {
			r.log.Warn("inconsistent state: %q lists room %q: %v (UnsubscribeAll)", user, room, err)
		}
	}
	delete(r.memberRooms, user)
}

// ListRooms returns all room names, sorted.
func (r *Registry) ListRooms() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.roomMembers))
	for name := range r.roomMembers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListMembers returns the members of room, sorted.
func (r *Registry) ListMembers(room string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.roomMembers[room]
	if !ok {
		return nil, roomNotFound(room)
	}
	return sortedKeys(members), nil
}

// RoomsOf returns the rooms user belongs to, sorted.
func (r *Registry) RoomsOf(user string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return sortedKeys(r.memberRooms[user])
}

// IsMember reports whether user is currently in room.
func (r *Registry) IsMember(room, user string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.memberRooms[user][room]
	return ok
}

// HasRoom reports whether room exists.
func (r *Registry) HasRoom(room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.roomMembers[room]
	return ok
}

// Count returns the number of rooms.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.roomMembers)
}

// Verify checks both directions of the index against each other and
// describes every mismatch.
func (r *Registry) Verify() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var problems []string
	for room, members := range r.roomMembers {
		for member := range members {
			if _, ok := r.memberRooms[member][room]; !ok {
				problems = append(problems, fmt.Sprintf("%s in members(%s) but not rooms(%s)", member, room, member))
			}
		}
	}
	for member, rooms := range r.memberRooms {
		for room := range rooms {
			if _, ok := r.roomMembers[room][member]; !ok {
				problems = append(problems, fmt.Sprintf("%s in rooms(%s) but not members(%s)", room, member, room))
			}
		}
	}
	if len(problems) == 0 {
		return nil
	}
	sort.Strings(problems)
	return errors.New("room registry inconsistent: " + strings.Join(problems, "; "))
}

func sortedKeys(s set) []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
