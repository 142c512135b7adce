package memory

import (
	"sort"
	"sync"

	"github.com/adwski/roomchat/backend/model"
	"github.com/samber/lo"
)

type room struct {
	mx      sync.Mutex
	id      model.RoomID
	members map[model.Identity]struct{}
	dead    bool
}

// MemStore is the room registry. Membership of each room is guarded by its own
// lock, the rooms map lock is held only to find, create or drop a room.
type MemStore struct {
	mx *sync.RWMutex
	db map[model.RoomID]*room
}

func NewMemStore() *MemStore {
	return &MemStore{
		mx: &sync.RWMutex{},
		db: make(map[model.RoomID]*room),
	}
}

// lockRoom returns the locked live room, creating it if asked to.
func (ms *MemStore) lockRoom(roomID model.RoomID, create bool) *room {
	for {
		ms.mx.RLock()
		r, ok := ms.db[roomID]
		ms.mx.RUnlock()

		if !ok {
			if !create {
				return nil
			}
			ms.mx.Lock()
			if r, ok = ms.db[roomID]; !ok {
				r = &room{
					id:      roomID,
					members: make(map[model.Identity]struct{}),
				}
				ms.db[roomID] = r
			}
			ms.mx.Unlock()
		}

		r.mx.Lock()
		if !r.dead {
			return r
		}
		// dropped between lookup and lock
		r.mx.Unlock()
	}
}

// lockRooms locks two distinct rooms in lexical order.
func (ms *MemStore) lockRooms(a, b model.RoomID) (ra, rb *room) {
	if a < b {
		ra = ms.lockRoom(a, false)
		rb = ms.lockRoom(b, true)
	} else {
		rb = ms.lockRoom(b, true)
		ra = ms.lockRoom(a, false)
	}
	return
}

// release unlocks the room, dropping it from the registry if it is empty.
func (ms *MemStore) release(r *room) {
	if r == nil {
		return
	}
	if len(r.members) == 0 {
		ms.mx.Lock()
		if ms.db[r.id] == r {
			delete(ms.db, r.id)
		}
		ms.mx.Unlock()
		r.dead = true
	}
	r.mx.Unlock()
}

func (r *room) snapshot() []model.Identity {
	members := lo.Keys(r.members)
	sort.Strings(members)
	return members
}

// Join adds userID to roomID. onJoin always fires, also when userID is already a member.
func (ms *MemStore) Join(roomID model.RoomID, userID model.Identity, onJoin model.CommitFunc) {
	r := ms.lockRoom(roomID, true)
	defer ms.release(r)

	r.members[userID] = struct{}{}
	if onJoin != nil {
		onJoin(roomID, r.snapshot())
	}
}

// Leave removes userID from roomID. onLeave fires only if userID was a member
// and the room still has members afterwards. Reports whether userID was removed.
func (ms *MemStore) Leave(roomID model.RoomID, userID model.Identity, onLeave model.CommitFunc) bool {
	r := ms.lockRoom(roomID, false)
	if r == nil {
		return false
	}
	defer ms.release(r)

	if _, ok := r.members[userID]; !ok {
		return false
	}
	delete(r.members, userID)
	if len(r.members) > 0 && onLeave != nil {
		onLeave(roomID, r.snapshot())
	}
	return true
}

// Move switches userID from one room to another as a single step: no observer of
// either room sees userID in both rooms or in neither. onLeave is fired before onJoin.
func (ms *MemStore) Move(from, to model.RoomID, userID model.Identity, onLeave, onJoin model.CommitFunc) {
	if from == to {
		ms.Join(to, userID, onJoin)
		return
	}
	rFrom, rTo := ms.lockRooms(from, to)
	defer func() {
		ms.release(rTo)
		ms.release(rFrom)
	}()

	var left bool
	if rFrom != nil {
		if _, left = rFrom.members[userID]; left {
			delete(rFrom.members, userID)
		}
	}
	rTo.members[userID] = struct{}{}

	if left && len(rFrom.members) > 0 && onLeave != nil {
		onLeave(from, rFrom.snapshot())
	}
	if onJoin != nil {
		onJoin(to, rTo.snapshot())
	}
}

// View calls fn with the current members of roomID while the room is locked.
// fn gets nil members if the room is not tracked.
func (ms *MemStore) View(roomID model.RoomID, fn model.CommitFunc) {
	r := ms.lockRoom(roomID, false)
	if r == nil {
		fn(roomID, nil)
		return
	}
	defer ms.release(r)
	fn(roomID, r.snapshot())
}

// Members returns a sorted snapshot of roomID's members.
func (ms *MemStore) Members(roomID model.RoomID) []model.Identity {
	var members []model.Identity
	ms.View(roomID, func(_ model.RoomID, m []model.Identity) {
		members = m
	})
	return members
}

// Rooms returns member counts of every tracked room.
func (ms *MemStore) Rooms() map[model.RoomID]int {
	ms.mx.RLock()
	rooms := lo.Values(ms.db)
	ms.mx.RUnlock()

	counts := make(map[model.RoomID]int, len(rooms))
	for _, r := range rooms {
		r.mx.Lock()
		if !r.dead {
			counts[r.id] = len(r.members)
		}
		r.mx.Unlock()
	}
	return counts
}
