package ingest

import (
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/crowdpulse/internal/cache"
	"github.com/pscheid92/crowdpulse/internal/domain"
	"github.com/pscheid92/crowdpulse/internal/identity"
)

// UserDirectory memoises users by session hash so that profile details seen
// once are available on later, sparser events such as hearts.
type UserDirectory struct {
	hasher *identity.Hasher
	users  *cache.Cache[int32, domain.User]
}

func NewUserDirectory(hasher *identity.Hasher, capacity int, clock clockwork.Clock) *UserDirectory {
	return &UserDirectory{
		hasher: hasher,
		users:  cache.New[int32, domain.User](capacity, 0, nil, clock),
	}
}

// Resolve returns the canonical user for u, computing its hash and filling
// in profile fields from earlier sightings. A cached entry with a different
// id under the same hash is replaced.
func (d *UserDirectory) Resolve(u domain.User) domain.User {
	hash := d.hasher.UserHash(u.ID)

	if cached, ok := d.users.Get(hash); ok && cached.ID == u.ID {
		if cached.Backfill(u) {
			d.users.Put(hash, cached)
		}
		return cached
	}

	u.Hash = hash
	d.users.Put(hash, u)
	return u
}

func (d *UserDirectory) Len() int {
	return d.users.Len()
}

// Flush forgets every cached user. Called when the session seed changes.
func (d *UserDirectory) Flush() {
	d.users.Clear()
}
