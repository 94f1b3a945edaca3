// Package cache holds the room and user registries keyed by canonical id.
package cache

import (
	"sort"
	"sync"

	"github.com/luciancaetano/roomwire"
)

// Synthetic identities that outrank everyone. They are seeded when the
// server issues its login challenge and are never evicted.
const (
	ServerUserID = "~"
	SystemUserID = "&"
)

// Cache stores rooms and users. Callers inside the client mutate entities in
// place through Update functions; external readers get clones.
type Cache struct {
	mu    sync.RWMutex
	rooms map[string]*roomwire.Room
	users map[string]*roomwire.User
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{
		rooms: make(map[string]*roomwire.Room),
		users: make(map[string]*roomwire.User),
	}
}

// SeedSystemUsers installs the two permanent synthetic identities.
func (c *Cache) SeedSystemUsers() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range []string{ServerUserID, SystemUserID} {
		c.users[id] = &roomwire.User{
			Name:     id,
			ID:       id,
			Group:    id,
			Online:   true,
			Staff:    true,
			Trusted:  true,
			Resolved: true,
		}
	}
}

func isPermanent(id string) bool {
	return id == ServerUserID || id == SystemUserID
}

// Room returns a snapshot of the room.
func (c *Cache) Room(id string) (*roomwire.Room, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.rooms[roomwire.ToRoomID(id)]
	return r.Clone(), ok
}

// Rooms returns snapshots of every cached room ordered by id.
func (c *Cache) Rooms() []*roomwire.Room {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*roomwire.Room, 0, len(c.rooms))
	for _, r := range c.rooms {
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// EnsureRoom returns the room's placeholder, creating an unresolved one when
// the room is unknown.
func (c *Cache) EnsureRoom(id string) *roomwire.Room {
	key := roomwire.ToRoomID(id)
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.rooms[key]; ok {
		return r.Clone()
	}
	r := &roomwire.Room{
		ID:        key,
		Title:     id,
		Kind:      roomwire.KindForRoomID(key),
		UserRanks: make(map[string]string),
	}
	c.rooms[key] = r
	return r.Clone()
}

// UpdateRoom applies fn to the cached room under the lock, creating a
// placeholder first if needed, and returns a snapshot of the result.
func (c *Cache) UpdateRoom(id string, fn func(r *roomwire.Room)) *roomwire.Room {
	key := roomwire.ToRoomID(id)
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.rooms[key]
	if !ok {
		r = &roomwire.Room{ID: key, Title: id, Kind: roomwire.KindForRoomID(key)}
		c.rooms[key] = r
	}
	if r.UserRanks == nil {
		r.UserRanks = make(map[string]string)
	}
	fn(r)
	return r.Clone()
}

// UpsertRoom merges the non-zero fields of patch into the cached room.
func (c *Cache) UpsertRoom(patch *roomwire.Room) *roomwire.Room {
	return c.UpdateRoom(patch.ID, func(r *roomwire.Room) {
		mergeRoom(r, patch)
	})
}

func mergeRoom(dst, src *roomwire.Room) {
	if src.CanonicalID != "" {
		dst.CanonicalID = src.CanonicalID
	}
	if src.Title != "" {
		dst.Title = src.Title
	}
	if src.Kind != "" {
		dst.Kind = src.Kind
	}
	if src.Visibility != "" {
		dst.Visibility = src.Visibility
	}
	if src.ModChat != "" {
		dst.ModChat = src.ModChat
	}
	if src.ModJoin != "" {
		dst.ModJoin = src.ModJoin
	}
	if src.Auth != nil {
		dst.Auth = src.Auth
	}
	if src.Users != nil {
		// A member list is authoritative; ranks of departed users go with it.
		dst.Users = src.Users
		dst.UserRanks = make(map[string]string, len(src.UserRanks))
	}
	for id, rank := range src.UserRanks {
		dst.UserRanks[id] = rank
	}
	dst.Resolved = dst.Resolved || src.Resolved
}

// RemoveRoom evicts a room and drops it from every user's room map.
func (c *Cache) RemoveRoom(id string) bool {
	key := roomwire.ToRoomID(id)
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.rooms[key]; !ok {
		return false
	}
	delete(c.rooms, key)
	for _, u := range c.users {
		delete(u.Rooms, key)
	}
	return true
}

// User returns a snapshot of the user. Lookups by a former id succeed only
// through the alt list of the current identity.
func (c *Cache) User(id string) (*roomwire.User, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	u, ok := c.users[normalizeUserID(id)]
	return u.Clone(), ok
}

// FindByAlt returns the user whose alt list contains id.
func (c *Cache) FindByAlt(id string) (*roomwire.User, bool) {
	id = normalizeUserID(id)
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, u := range c.users {
		if u.HasAlt(id) {
			return u.Clone(), true
		}
	}
	return nil, false
}

// HasUser reports whether the user is cached.
func (c *Cache) HasUser(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.users[normalizeUserID(id)]
	return ok
}

// Users returns snapshots of every cached user ordered by id.
func (c *Cache) Users() []*roomwire.User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*roomwire.User, 0, len(c.users))
	for _, u := range c.users {
		out = append(out, u.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// UpdateUser applies fn to the cached user keyed by name's canonical id,
// creating it if needed, and returns a snapshot.
func (c *Cache) UpdateUser(name string, fn func(u *roomwire.User)) *roomwire.User {
	key := normalizeUserID(name)
	c.mu.Lock()
	defer c.mu.Unlock()
	u, ok := c.users[key]
	if !ok {
		u = &roomwire.User{Name: name, ID: key}
		c.users[key] = u
	}
	if u.Rooms == nil {
		u.Rooms = make(map[string]string)
	}
	fn(u)
	return u.Clone()
}

// UpsertUser merges the non-zero fields of patch into the cached user.
func (c *Cache) UpsertUser(patch *roomwire.User) *roomwire.User {
	name := patch.Name
	if name == "" {
		name = patch.ID
	}
	return c.UpdateUser(name, func(u *roomwire.User) {
		mergeUser(u, patch)
	})
}

func mergeUser(dst, src *roomwire.User) {
	if src.Name != "" {
		dst.Name = src.Name
	}
	if src.Group != "" {
		dst.Group = src.Group
	}
	if src.Avatar != "" {
		dst.Avatar = src.Avatar
	}
	if src.Status != "" {
		dst.Status = src.Status
	}
	for _, alt := range src.Alts {
		if alt != dst.ID && !dst.HasAlt(alt) {
			dst.Alts = append(dst.Alts, alt)
		}
	}
	if src.Rooms != nil {
		dst.Rooms = make(map[string]string, len(src.Rooms))
		for k, v := range src.Rooms {
			dst.Rooms[k] = v
		}
	}
	dst.Online = dst.Online || src.Online
	dst.Autoconfirmed = dst.Autoconfirmed || src.Autoconfirmed
	dst.Trusted = dst.Trusted || src.Trusted
	dst.Staff = dst.Staff || src.Staff
	dst.Resolved = dst.Resolved || src.Resolved
}

// Rename moves the user cached under oldID to newName's canonical id and
// records oldID as an alt. If the new id already has an entry (the account
// was seen under both names) the two records are merged. Room memberships
// keyed by user id are rewritten.
func (c *Cache) Rename(oldID, newName string) *roomwire.User {
	oldID = normalizeUserID(oldID)
	newID := normalizeUserID(newName)

	c.mu.Lock()
	defer c.mu.Unlock()

	u, ok := c.users[oldID]
	if !ok {
		u = &roomwire.User{ID: oldID, Name: oldID, Rooms: make(map[string]string)}
	}
	if existing, ok := c.users[newID]; ok && existing != u {
		mergeUser(existing, u)
		u = existing
	}
	if oldID != newID {
		delete(c.users, oldID)
		if !u.HasAlt(oldID) {
			u.Alts = append(u.Alts, oldID)
		}
		for _, r := range c.rooms {
			if rank, ok := r.UserRanks[oldID]; ok {
				delete(r.UserRanks, oldID)
				r.UserRanks[newID] = rank
			}
		}
	}
	u.ID = newID
	u.Name = newName
	c.users[newID] = u
	return u.Clone()
}

// RemoveUser evicts a user unless it is one of the permanent identities.
func (c *Cache) RemoveUser(id string) bool {
	id = normalizeUserID(id)
	if isPermanent(id) {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.users[id]; !ok {
		return false
	}
	delete(c.users, id)
	return true
}

// normalizeUserID keeps the synthetic identities addressable; every other
// key is the canonical id.
func normalizeUserID(s string) string {
	if isPermanent(s) {
		return s
	}
	return roomwire.ToID(s)
}
