package groups

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/crowdpulse/internal/domain"
	"github.com/pscheid92/crowdpulse/internal/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOutbox struct {
	mu   sync.Mutex
	msgs []domain.OutboundMessage
}

func (o *fakeOutbox) Enqueue(msg domain.OutboundMessage) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.msgs = append(o.msgs, msg)
	return true
}

func (o *fakeOutbox) take() []domain.OutboundMessage {
	o.mu.Lock()
	defer o.mu.Unlock()
	msgs := o.msgs
	o.msgs = nil
	return msgs
}

// fixedSampler always returns the same value, clamped to [0, n).
type fixedSampler int

func (s fixedSampler) IntN(n int) int { return min(int(s), n-1) }

func templates(name string) Templates {
	return Templates{
		Join:          []string{name + " join"},
		Leave:         []string{name + " leave"},
		Full:          []string{name + " full"},
		Periodic:      []string{name + " periodic"},
		HeartResponse: []string{name + " heart"},
		ChatResponse:  []string{name + " chat"},
	}
}

func definitions(maxSize int, names ...string) []Definition {
	defs := make([]Definition, 0, len(names))
	for _, n := range names {
		defs = append(defs, Definition{Name: n, Color: "indigo", MaxSize: maxSize, Templates: templates(n)})
	}
	return defs
}

type routerFixture struct {
	router *Router
	outbox *fakeOutbox
	clock  *clockwork.FakeClock
	hasher *identity.Hasher
}

func newRouterFixture(t *testing.T, cfg Config, sampler Sampler) *routerFixture {
	t.Helper()
	if cfg.MaxTrackedUsers == 0 {
		cfg.MaxTrackedUsers = 1000
	}
	if cfg.UserTimeout == 0 {
		cfg.UserTimeout = time.Minute
	}
	f := &routerFixture{
		outbox: &fakeOutbox{},
		clock:  clockwork.NewFakeClock(),
		hasher: identity.NewHasher("test-session"),
	}
	f.router = NewRouter(cfg, f.outbox, f.clock, WithSampler(sampler))
	return f
}

func (f *routerFixture) user(id string) domain.User {
	return domain.User{ID: id, Username: id + "_name", Hash: f.hasher.UserHash(id)}
}

// usersInGroup returns n users that route to the group at index idx.
func (f *routerFixture) usersInGroup(t *testing.T, idx, n int) []domain.User {
	t.Helper()
	var users []domain.User
	for i := 0; len(users) < n; i++ {
		require.Less(t, i, 100000)
		u := f.user(fmt.Sprintf("viewer%d", i))
		if f.router.Route(u.Hash) == f.router.groups[idx] {
			users = append(users, u)
		}
	}
	return users
}

func bodies(msgs []domain.OutboundMessage) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Body)
	}
	return out
}

func TestRoute_IsPureFunctionOfHash(t *testing.T) {
	f := newRouterFixture(t, Config{Groups: definitions(0, "a", "b", "c")}, fixedSampler(0))

	for hash := int32(0); hash < 50; hash++ {
		g := f.router.Route(hash)
		assert.Same(t, f.router.groups[int(hash)%3], g)
		assert.Same(t, g, f.router.Route(hash))
	}
}

func TestRoute_NoGroups(t *testing.T) {
	f := newRouterFixture(t, Config{}, fixedSampler(0))

	assert.Nil(t, f.router.Route(7))
	assert.Equal(t, StatusNotInGroup, f.router.Join(f.user("u1")))
	assert.Empty(t, f.outbox.take())
}

func TestJoin_AddedThenExists(t *testing.T) {
	f := newRouterFixture(t, Config{Groups: definitions(0, "solo")}, fixedSampler(0))
	u := f.user("u1")

	assert.Equal(t, StatusAdded, f.router.Join(u))
	msgs := f.outbox.take()
	require.Len(t, msgs, 1)
	assert.Equal(t, "@u1_name solo join", msgs[0].Body)
	assert.Equal(t, []string{"u1"}, msgs[0].Recipients)
	assert.Equal(t, "solo", msgs[0].Sender.Username)
	assert.Equal(t, 4, msgs[0].ColorIndex)
	assert.False(t, msgs[0].IsGroup())

	assert.Equal(t, StatusExists, f.router.Join(u))
	assert.Empty(t, f.outbox.take())
	assert.Equal(t, map[string]int{"solo": 1}, f.router.MemberCounts())
}

func TestJoin_BackfillsExistingMember(t *testing.T) {
	f := newRouterFixture(t, Config{Groups: definitions(0, "solo")}, fixedSampler(0))
	u := domain.User{ID: "u1", Hash: f.hasher.UserHash("u1")}

	f.router.Join(u)
	u.Username = "alice"
	u.ProfileImageURL = "http://img/a"
	f.router.Join(u)

	members, err := f.router.Members("solo")
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "alice", members[0].Username)
	assert.Equal(t, "http://img/a", members[0].ProfileImageURL)
}

func TestJoin_Capacity(t *testing.T) {
	f := newRouterFixture(t, Config{Groups: definitions(2, "a", "b", "c")}, fixedSampler(0))
	users := f.usersInGroup(t, 1, 3)

	assert.Equal(t, StatusAdded, f.router.Join(users[0]))
	assert.Equal(t, StatusAdded, f.router.Join(users[1]))
	assert.Equal(t, StatusNotInGroup, f.router.Join(users[2]))
	assert.Equal(t, StatusExists, f.router.Join(users[0]))

	assert.Equal(t, 2, f.router.MemberCounts()["b"])
	assert.Equal(t, []string{
		users[0].Mention() + "b join",
		users[1].Mention() + "b join",
		users[2].Mention() + "b full",
	}, bodies(f.outbox.take()))
}

func TestJoin_DisregardLimitsForceAdds(t *testing.T) {
	f := newRouterFixture(t, Config{Groups: definitions(1, "a"), DisregardLimits: true}, fixedSampler(0))

	assert.Equal(t, StatusAdded, f.router.Join(f.user("u1")))
	assert.Equal(t, StatusAdded, f.router.Join(f.user("u2")))
	assert.Equal(t, 2, f.router.MemberCounts()["a"])
}

func TestHeart_CountsAndResponds(t *testing.T) {
	f := newRouterFixture(t, Config{Groups: definitions(0, "a"), HeartResponseProbability: 1}, fixedSampler(0))
	u := f.user("u1")

	assert.Equal(t, StatusAdded, f.router.Heart(u))
	assert.Equal(t, StatusExists, f.router.Heart(u))
	assert.Equal(t, StatusExists, f.router.Heart(u))

	assert.Equal(t, []string{"@u1_name a join", "@u1_name a heart", "@u1_name a heart"}, bodies(f.outbox.take()))

	var reported []string
	f.router.OnHearts(func(group string, hearts int) {
		reported = append(reported, fmt.Sprintf("%s=%d", group, hearts))
	})
	f.router.ReportHearts()
	f.router.ReportHearts()
	assert.Equal(t, []string{"a=3", "a=0"}, reported)
}

func TestHeart_ResponseProbability(t *testing.T) {
	tests := []struct {
		name        string
		probability int
		sampler     fixedSampler
		wantReply   bool
	}{
		{"disabled", 0, 0, false},
		{"negative disables", -5, 0, false},
		{"always", 1, 5, true},
		{"sampled hit", 100, 0, true},
		{"sampled miss", 100, 7, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRouterFixture(t, Config{Groups: definitions(0, "a"), HeartResponseProbability: tt.probability}, tt.sampler)
			u := f.user("u1")
			f.router.Join(u)
			f.outbox.take()

			f.router.Heart(u)

			msgs := f.outbox.take()
			if tt.wantReply {
				assert.Equal(t, []string{"@u1_name a heart"}, bodies(msgs))
			} else {
				assert.Empty(t, msgs)
			}
		})
	}
}

func TestHeart_FullMessageOnlyWhenInactive(t *testing.T) {
	f := newRouterFixture(t, Config{Groups: definitions(1, "a")}, fixedSampler(0))
	member := f.user("u1")
	outsider := f.user("u2")

	f.router.Join(member)
	f.outbox.take()

	assert.Equal(t, StatusNotInGroup, f.router.Heart(outsider))
	assert.Equal(t, StatusNotInGroup, f.router.Heart(outsider))
	assert.Equal(t, []string{"@u2_name a full"}, bodies(f.outbox.take()))

	var hearts int
	f.router.OnHearts(func(_ string, n int) { hearts += n })
	f.router.ReportHearts()
	assert.Zero(t, hearts, "hearts from non-members are not counted")
}

func TestChat_NeverAdds(t *testing.T) {
	f := newRouterFixture(t, Config{Groups: definitions(0, "a"), ChatResponseProbability: 1}, fixedSampler(0))
	u := f.user("u1")

	assert.Equal(t, StatusNotInGroup, f.router.Chat(u))
	assert.Empty(t, f.outbox.take())
	assert.Equal(t, 0, f.router.MemberCounts()["a"])
	assert.Equal(t, 1, f.router.ActiveUsers())

	f.router.Join(u)
	f.outbox.take()
	assert.Equal(t, StatusExists, f.router.Chat(u))
	assert.Equal(t, []string{"@u1_name a chat"}, bodies(f.outbox.take()))
}

func TestHandle_DispatchesByKind(t *testing.T) {
	f := newRouterFixture(t, Config{Groups: definitions(0, "a"), HeartResponseProbability: 1, ChatResponseProbability: 1}, fixedSampler(0))
	u := f.user("u1")

	f.router.Handle(domain.Event{Kind: domain.EventJoin, User: u})
	f.router.Handle(domain.Event{Kind: domain.EventHeart, User: u})
	f.router.Handle(domain.Event{Kind: domain.EventChat, User: u, Text: "hi"})
	f.router.Handle(domain.Event{Kind: domain.EventDirectMessage, User: u})

	assert.Equal(t, []string{"@u1_name a join", "@u1_name a heart", "@u1_name a chat"}, bodies(f.outbox.take()))
}

func TestLeave_DetectedOnTimeoutAndFlushedLater(t *testing.T) {
	f := newRouterFixture(t, Config{Groups: definitions(0, "a"), UserTimeout: time.Minute}, fixedSampler(0))
	stayer := f.user("u1")
	leaver := f.user("u2")

	f.router.Join(stayer)
	f.router.Join(leaver)
	f.outbox.take()

	f.clock.Advance(45 * time.Second)
	f.router.Heart(stayer)
	f.clock.Advance(30 * time.Second)

	assert.Equal(t, 1, f.router.SweepInactive())
	assert.Equal(t, 1, f.router.MemberCounts()["a"])
	assert.Empty(t, f.outbox.take(), "leave messages wait for the next flush")

	assert.Equal(t, 1, f.router.FlushLeaves())
	assert.Equal(t, []string{"@u2_name a leave"}, bodies(f.outbox.take()))
	assert.Equal(t, 0, f.router.FlushLeaves())
}

func TestLeave_CapacityEvictionOfNonMember(t *testing.T) {
	f := newRouterFixture(t, Config{Groups: definitions(0, "a"), MaxTrackedUsers: 1}, fixedSampler(0))
	chatter := f.user("u1")

	f.router.Chat(chatter)
	f.router.Join(f.user("u2"))

	assert.Equal(t, 1, f.router.ActiveUsers())
	assert.Equal(t, 0, f.router.FlushLeaves())
}

func TestSendPeriodic(t *testing.T) {
	f := newRouterFixture(t, Config{Groups: definitions(0, "a", "b")}, fixedSampler(0))
	users := f.usersInGroup(t, 0, 2)
	for _, u := range users {
		f.router.Join(u)
	}
	f.outbox.take()

	assert.Equal(t, 1, f.router.SendPeriodic())

	msgs := f.outbox.take()
	require.Len(t, msgs, 1)
	assert.Equal(t, "a periodic", msgs[0].Body)
	assert.ElementsMatch(t, []string{users[0].ID, users[1].ID}, msgs[0].Recipients)
	assert.True(t, msgs[0].IsGroup())
}

func TestSendPeriodic_SingleMemberStillPriority(t *testing.T) {
	f := newRouterFixture(t, Config{Groups: definitions(0, "a")}, fixedSampler(0))
	f.router.Join(f.user("u1"))
	f.outbox.take()

	f.router.SendPeriodic()

	msgs := f.outbox.take()
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].IsGroup())
}

func TestEmptyTemplatesSuppressMessages(t *testing.T) {
	f := newRouterFixture(t, Config{Groups: []Definition{{Name: "quiet"}}}, fixedSampler(0))

	assert.Equal(t, StatusAdded, f.router.Join(f.user("u1")))
	assert.Equal(t, 0, f.router.SendPeriodic())
	assert.Empty(t, f.outbox.take())
}

func TestPick_UsesSampler(t *testing.T) {
	defs := []Definition{{Name: "a", Templates: Templates{Join: []string{"one", "two", "three"}}}}
	f := newRouterFixture(t, Config{Groups: defs}, fixedSampler(2))

	f.router.Join(domain.User{ID: "u1", Hash: 1})

	assert.Equal(t, []string{"three"}, bodies(f.outbox.take()))
}

func TestMembers_UnknownGroup(t *testing.T) {
	f := newRouterFixture(t, Config{Groups: definitions(0, "a")}, fixedSampler(0))

	_, err := f.router.Members("nope")
	assert.ErrorIs(t, err, domain.ErrGroupNotFound)
}

func TestReset(t *testing.T) {
	f := newRouterFixture(t, Config{Groups: definitions(0, "a")}, fixedSampler(0))
	f.router.Join(f.user("u1"))
	f.router.Heart(f.user("u1"))

	f.router.Reset()

	assert.Equal(t, 0, f.router.MemberCounts()["a"])
	assert.Equal(t, 0, f.router.ActiveUsers())
	assert.Equal(t, 0, f.router.FlushLeaves())
}

func TestSummaries(t *testing.T) {
	f := newRouterFixture(t, Config{Groups: definitions(5, "a", "b")}, fixedSampler(0))

	assert.Equal(t, []Summary{
		{Name: "a", Color: "#5C75DC", MaxSize: 5},
		{Name: "b", Color: "#5C75DC", MaxSize: 5},
	}, f.router.Summaries())
}

func TestDuplicateDefinitionsIgnored(t *testing.T) {
	f := newRouterFixture(t, Config{Groups: definitions(0, "a", "a", "b")}, fixedSampler(0))

	assert.Len(t, f.router.Summaries(), 2)
}
