package memory

import (
	"fmt"
	"sync"
	"testing"

	"github.com/adwski/roomchat/backend/model"
	"github.com/stretchr/testify/require"
)

type commit struct {
	room    model.RoomID
	members []model.Identity
}

type recorder struct {
	mx      sync.Mutex
	commits []commit
}

func (r *recorder) hook(roomID model.RoomID, members []model.Identity) {
	r.mx.Lock()
	defer r.mx.Unlock()
	r.commits = append(r.commits, commit{room: roomID, members: members})
}

func TestMemStore_Join(t *testing.T) {
	req := require.New(t)
	ms := NewMemStore()
	rec := &recorder{}

	// Given an empty registry
	req.Empty(ms.Rooms())

	// When two users join the same room
	ms.Join("R", "bob", rec.hook)
	ms.Join("R", "alice", rec.hook)

	// Then the room is created and lists both of them
	req.Equal([]model.Identity{"alice", "bob"}, ms.Members("R"))
	req.Equal(map[model.RoomID]int{"R": 2}, ms.Rooms())

	// And each join was committed with the full snapshot
	req.Equal([]commit{
		{room: "R", members: []model.Identity{"bob"}},
		{room: "R", members: []model.Identity{"alice", "bob"}},
	}, rec.commits)
}

func TestMemStore_Join_Again(t *testing.T) {
	req := require.New(t)
	ms := NewMemStore()
	rec := &recorder{}

	ms.Join("R", "bob", nil)

	// When bob joins the room he is already in
	ms.Join("R", "bob", rec.hook)

	// Then membership is unchanged but presence is re-announced
	req.Equal([]model.Identity{"bob"}, ms.Members("R"))
	req.Len(rec.commits, 1)
}

func TestMemStore_Leave(t *testing.T) {
	req := require.New(t)
	ms := NewMemStore()
	rec := &recorder{}

	ms.Join("R", "alice", nil)
	ms.Join("R", "bob", nil)

	// When alice leaves
	req.True(ms.Leave("R", "alice", rec.hook))

	// Then only bob is left and he is told so
	req.Equal([]model.Identity{"bob"}, ms.Members("R"))
	req.Equal([]commit{{room: "R", members: []model.Identity{"bob"}}}, rec.commits)

	// When the last member leaves
	req.True(ms.Leave("R", "bob", rec.hook))

	// Then the room is not tracked anymore and nobody is notified
	req.Empty(ms.Rooms())
	req.Nil(ms.Members("R"))
	req.Len(rec.commits, 1)
}

func TestMemStore_Leave_NotMember(t *testing.T) {
	req := require.New(t)
	ms := NewMemStore()
	rec := &recorder{}

	ms.Join("R", "alice", nil)

	req.False(ms.Leave("R", "bob", rec.hook))
	req.False(ms.Leave("unknown", "alice", rec.hook))
	req.Empty(rec.commits)
	req.Equal([]model.Identity{"alice"}, ms.Members("R"))
}

func TestMemStore_Move(t *testing.T) {
	req := require.New(t)
	ms := NewMemStore()
	leaves := &recorder{}
	joins := &recorder{}

	ms.Join("R1", "alice", nil)
	ms.Join("R1", "carol", nil)
	ms.Join("R2", "dave", nil)

	// When alice switches from R1 to R2
	ms.Move("R1", "R2", "alice", leaves.hook, joins.hook)

	// Then she is a member of R2 only
	req.Equal([]model.Identity{"carol"}, ms.Members("R1"))
	req.Equal([]model.Identity{"alice", "dave"}, ms.Members("R2"))

	// And each room saw exactly one change
	req.Equal([]commit{{room: "R1", members: []model.Identity{"carol"}}}, leaves.commits)
	req.Equal([]commit{{room: "R2", members: []model.Identity{"alice", "dave"}}}, joins.commits)
}

func TestMemStore_Move_LastMember(t *testing.T) {
	req := require.New(t)
	ms := NewMemStore()
	leaves := &recorder{}

	ms.Join("R2", "alice", nil)

	// When the only member moves to a lexically smaller room
	ms.Move("R2", "R1", "alice", leaves.hook, nil)

	// Then the old room is dropped without a publish target
	req.Equal(map[model.RoomID]int{"R1": 1}, ms.Rooms())
	req.Empty(leaves.commits)
}

func TestMemStore_Move_SameRoom(t *testing.T) {
	req := require.New(t)
	ms := NewMemStore()
	leaves := &recorder{}
	joins := &recorder{}

	ms.Join("R", "alice", nil)
	ms.Move("R", "R", "alice", leaves.hook, joins.hook)

	req.Equal([]model.Identity{"alice"}, ms.Members("R"))
	req.Empty(leaves.commits)
	req.Len(joins.commits, 1)
}

func TestMemStore_Concurrent(t *testing.T) {
	req := require.New(t)
	ms := NewMemStore()
	rooms := []model.RoomID{"A", "B", "C"}

	const users = 30
	wg := &sync.WaitGroup{}
	for i := range users {
		wg.Add(1)
		go func(userID model.Identity) {
			defer wg.Done()
			current := rooms[0]
			ms.Join(current, userID, nil)
			for j := range 50 {
				next := rooms[j%len(rooms)]
				ms.Move(current, next, userID, nil, func(roomID model.RoomID, members []model.Identity) {
					if !contains(members, userID) {
						panic(fmt.Sprintf("%s is not in %s snapshot", userID, roomID))
					}
				})
				current = next
			}
			if i%2 == 0 {
				ms.Leave(current, userID, nil)
			}
		}(fmt.Sprintf("user%d", i))
	}
	wg.Wait()

	total := 0
	for _, n := range ms.Rooms() {
		total += n
	}
	req.Equal(users/2, total)
}

func contains(members []model.Identity, id model.Identity) bool {
	for _, m := range members {
		if m == id {
			return true
		}
	}
	return false
}
