package groups

import (
	"cmp"
	"slices"

	"github.com/pscheid92/crowdpulse/internal/domain"
)

// Status is the outcome of a membership attempt.
type Status int

const (
	// StatusExists means the user was already a member.
	StatusExists Status = iota
	// StatusAdded means the user was not a member and now is.
	StatusAdded
	// StatusNotInGroup means the user is not a member, either because the
	// group is full or because no add was attempted.
	StatusNotInGroup
)

func (s Status) String() string {
	switch s {
	case StatusExists:
		return "exists"
	case StatusAdded:
		return "added"
	default:
		return "not_in_group"
	}
}

// Templates holds the message pools a group draws from. Empty pools
// suppress the corresponding message.
type Templates struct {
	Join          []string `yaml:"join" json:"join"`
	Leave         []string `yaml:"leave" json:"leave"`
	Full          []string `yaml:"full" json:"full"`
	Periodic      []string `yaml:"periodic" json:"periodic"`
	HeartResponse []string `yaml:"heart_response" json:"heart_response"`
	ChatResponse  []string `yaml:"chat_response" json:"chat_response"`
}

// Definition is the static configuration of one group.
type Definition struct {
	Name            string    `yaml:"name" json:"name"`
	Color           string    `yaml:"color" json:"color"`
	ProfileImageURL string    `yaml:"profile_image_url" json:"profile_image_url"`
	MaxSize         int       `yaml:"max_size" json:"max_size"`
	Templates       Templates `yaml:"templates" json:"templates"`
}

// Group is a named bucket of users. It is not safe for concurrent use; the
// Router serialises access.
type Group struct {
	def        Definition
	leader     domain.User
	colorIndex int
	members    map[int32]*domain.User
	hearts     int
}

func newGroup(def Definition) *Group {
	def.Color = domain.NormalizeColor(def.Color)
	return &Group{
		def: def,
		leader: domain.User{
			ID:              def.Name,
			Username:        def.Name,
			ProfileImageURL: def.ProfileImageURL,
		},
		colorIndex: domain.ColorIndex(def.Color),
		members:    make(map[int32]*domain.User),
	}
}

// add attempts to make u a member. force bypasses the size limit.
// An existing member has missing profile fields back-filled from u.
func (g *Group) add(u domain.User, force bool) Status {
	if m, ok := g.members[u.Hash]; ok {
		m.Backfill(u)
		return StatusExists
	}
	if g.def.MaxSize > 0 && len(g.members) >= g.def.MaxSize && !force {
		return StatusNotInGroup
	}

	member := u
	g.members[u.Hash] = &member
	return StatusAdded
}

// lookup reports membership without adding, back-filling like add.
func (g *Group) lookup(u domain.User) Status {
	m, ok := g.members[u.Hash]
	if !ok {
		return StatusNotInGroup
	}
	m.Backfill(u)
	return StatusExists
}

func (g *Group) remove(hash int32) (domain.User, bool) {
	m, ok := g.members[hash]
	if !ok {
		return domain.User{}, false
	}
	delete(g.members, hash)
	return *m, true
}

func (g *Group) recipientIDs() []string {
	ids := make([]string, 0, len(g.members))
	for _, m := range g.members {
		ids = append(ids, m.ID)
	}
	slices.Sort(ids)
	return ids
}

func (g *Group) memberList() []domain.User {
	users := make([]domain.User, 0, len(g.members))
	for _, m := range g.members {
		users = append(users, *m)
	}
	slices.SortFunc(users, func(a, b domain.User) int {
		return cmp.Compare(a.Hash, b.Hash)
	})
	return users
}
