// Package groups routes viewers into named groups, tracks membership, and
// produces the templated messages that react to viewer activity.
package groups

import (
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/crowdpulse/internal/cache"
	"github.com/pscheid92/crowdpulse/internal/domain"
)

// Outbox accepts messages for delivery. Enqueue never blocks and reports
// whether the message was queued.
type Outbox interface {
	Enqueue(msg domain.OutboundMessage) bool
}

// Sampler draws uniform integers in [0, n).
type Sampler interface {
	IntN(n int) int
}

type randSampler struct{}

func (randSampler) IntN(n int) int { return rand.IntN(n) }

// HeartObserver receives the hearts a group collected since the last report.
type HeartObserver func(group string, hearts int)

// Config describes the group pool and the response policy.
type Config struct {
	Groups []Definition
	// DisregardLimits lets joins exceed MaxSize.
	DisregardLimits bool
	MaxTrackedUsers int
	// UserTimeout is how long a viewer may stay silent before being treated
	// as having left.
	UserTimeout              time.Duration
	HeartResponseProbability int
	ChatResponseProbability  int
}

// Router assigns users to groups by hash and applies the membership policy
// for joins, hearts and chats.
//
// Lock order is active-user cache, then router. The router never calls into
// the cache while holding its own lock.
type Router struct {
	mu        sync.Mutex
	groups    []*Group
	byName    map[string]*Group
	leaving   []domain.User
	observers []HeartObserver

	enforceLimits bool
	heartProb     int
	chatProb      int
	sampler       Sampler
	outbox        Outbox
	active        *cache.Cache[int32, domain.User]
}

// Option customises a Router.
type Option func(*Router)

// WithSampler replaces the random source used for templates and response
// probabilities.
func WithSampler(s Sampler) Option {
	return func(r *Router) { r.sampler = s }
}

func NewRouter(cfg Config, outbox Outbox, clock clockwork.Clock, opts ...Option) *Router {
	r := &Router{
		byName:        make(map[string]*Group, len(cfg.Groups)),
		enforceLimits: !cfg.DisregardLimits,
		heartProb:     cfg.HeartResponseProbability,
		chatProb:      cfg.ChatResponseProbability,
		sampler:       randSampler{},
		outbox:        outbox,
	}
	for _, def := range cfg.Groups {
		if _, dup := r.byName[def.Name]; dup {
			slog.Warn("Ignoring duplicate group definition", "group", def.Name)
			continue
		}
		g := newGroup(def)
		r.groups = append(r.groups, g)
		r.byName[def.Name] = g
	}
	for _, opt := range opts {
		opt(r)
	}

	r.active = cache.New[int32, domain.User](cfg.MaxTrackedUsers, cfg.UserTimeout, r.onUserLeave, clock)
	return r
}

// OnHearts registers an observer for per-group heart deltas. Observers are
// invoked in registration order.
func (r *Router) OnHearts(o HeartObserver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, o)
}

// Route returns the group for a user hash, or nil when there are no groups.
func (r *Router) Route(hash int32) *Group {
	if len(r.groups) == 0 {
		return nil
	}
	return r.groups[int(hash)%len(r.groups)]
}

// Handle applies the membership policy to one event.
func (r *Router) Handle(e domain.Event) {
	switch e.Kind {
	case domain.EventJoin:
		r.Join(e.User)
	case domain.EventHeart:
		r.Heart(e.User)
	case domain.EventChat:
		r.Chat(e.User)
	}
}

// Join adds u to its group. A new member gets a join message, a user
// turned away by a full group gets a full message, and an existing member
// gets nothing.
func (r *Router) Join(u domain.User) Status {
	var msg *domain.OutboundMessage

	r.mu.Lock()
	g := r.Route(u.Hash)
	if g == nil {
		r.mu.Unlock()
		return StatusNotInGroup
	}
	status := g.add(u, !r.enforceLimits)
	switch status {
	case StatusAdded:
		msg = r.memberMessage(g, u, g.def.Templates.Join)
	case StatusNotInGroup:
		msg = r.memberMessage(g, u, g.def.Templates.Full)
	}
	r.mu.Unlock()

	r.active.Put(u.Hash, u)
	r.send(msg)
	return status
}

// Heart adds u to its group like Join and counts the heart for members.
// Existing members occasionally get a thank-you. A user turned away gets a
// full message only if they were not already active.
func (r *Router) Heart(u domain.User) Status {
	wasActive := r.active.ContainsKey(u.Hash)
	var msg *domain.OutboundMessage

	r.mu.Lock()
	g := r.Route(u.Hash)
	if g == nil {
		r.mu.Unlock()
		return StatusNotInGroup
	}
	status := g.add(u, !r.enforceLimits)
	switch status {
	case StatusAdded:
		g.hearts++
		msg = r.memberMessage(g, u, g.def.Templates.Join)
	case StatusExists:
		g.hearts++
		if r.sample(r.heartProb) {
			msg = r.memberMessage(g, u, g.def.Templates.HeartResponse)
		}
	case StatusNotInGroup:
		if !wasActive {
			msg = r.memberMessage(g, u, g.def.Templates.Full)
		}
	}
	r.mu.Unlock()

	r.active.Put(u.Hash, u)
	r.send(msg)
	return status
}

// Chat never adds u. Members occasionally get a reply.
func (r *Router) Chat(u domain.User) Status {
	var msg *domain.OutboundMessage

	r.mu.Lock()
	g := r.Route(u.Hash)
	if g == nil {
		r.mu.Unlock()
		return StatusNotInGroup
	}
	status := g.lookup(u)
	if status == StatusExists && r.sample(r.chatProb) {
		msg = r.memberMessage(g, u, g.def.Templates.ChatResponse)
	}
	r.mu.Unlock()

	r.active.Put(u.Hash, u)
	r.send(msg)
	return status
}

// onUserLeave runs under the active-user cache lock.
func (r *Router) onUserLeave(u domain.User) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g := r.Route(u.Hash)
	if g == nil {
		return
	}
	if member, ok := g.remove(u.Hash); ok {
		r.leaving = append(r.leaving, member)
	}
}

// FlushLeaves sends the leave message for every user that timed out since
// the previous flush. It returns the number of users flushed.
func (r *Router) FlushLeaves() int {
	r.mu.Lock()
	leaving := r.leaving
	r.leaving = nil
	msgs := make([]*domain.OutboundMessage, 0, len(leaving))
	for _, u := range leaving {
		if g := r.Route(u.Hash); g != nil {
			msgs = append(msgs, r.memberMessage(g, u, g.def.Templates.Leave))
		}
	}
	r.mu.Unlock()

	for _, msg := range msgs {
		r.send(msg)
	}
	return len(leaving)
}

// SendPeriodic sends one periodic template to every non-empty group as a
// single group-addressed message. It returns the number of messages sent.
func (r *Router) SendPeriodic() int {
	r.mu.Lock()
	var msgs []*domain.OutboundMessage
	for _, g := range r.groups {
		if len(g.members) == 0 {
			continue
		}
		body := r.pick(g.def.Templates.Periodic)
		if body == "" {
			continue
		}
		msgs = append(msgs, &domain.OutboundMessage{
			ID:         uuid.New(),
			Sender:     g.leader,
			Recipients: g.recipientIDs(),
			Body:       body,
			ColorIndex: g.colorIndex,
			Broadcast:  true,
		})
	}
	r.mu.Unlock()

	for _, msg := range msgs {
		r.send(msg)
	}
	return len(msgs)
}

// ReportHearts hands each group's heart count to the observers and resets
// it, so observers see the delta since the previous report.
func (r *Router) ReportHearts() {
	type report struct {
		group  string
		hearts int
	}

	r.mu.Lock()
	reports := make([]report, 0, len(r.groups))
	for _, g := range r.groups {
		reports = append(reports, report{group: g.def.Name, hearts: g.hearts})
		g.hearts = 0
	}
	observers := r.observers
	r.mu.Unlock()

	for _, rep := range reports {
		for _, o := range observers {
			o(rep.group, rep.hearts)
		}
	}
}

// SweepInactive evicts users that have been silent for longer than the
// user timeout and returns how many were evicted.
func (r *Router) SweepInactive() int {
	return r.active.EvictExpired()
}

// ActiveUsers returns the number of users seen within the user timeout.
func (r *Router) ActiveUsers() int {
	return r.active.Len()
}

// Reset empties every group and forgets all tracked users without sending
// leave messages.
func (r *Router) Reset() {
	r.active.Clear()

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, g := range r.groups {
		clear(g.members)
		g.hearts = 0
	}
	r.leaving = nil
}

// Summary describes one group for observability.
type Summary struct {
	Name    string `json:"name"`
	Color   string `json:"color"`
	MaxSize int    `json:"max_size"`
	Members int    `json:"members"`
}

// Summaries returns every group in routing order.
func (r *Router) Summaries() []Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Summary, 0, len(r.groups))
	for _, g := range r.groups {
		out = append(out, Summary{
			Name:    g.def.Name,
			Color:   g.def.Color,
			MaxSize: g.def.MaxSize,
			Members: len(g.members),
		})
	}
	return out
}

// MemberCounts returns the member count per group name.
func (r *Router) MemberCounts() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := make(map[string]int, len(r.groups))
	for _, g := range r.groups {
		counts[g.def.Name] = len(g.members)
	}
	return counts
}

// Members returns a copy of a group's members ordered by hash.
func (r *Router) Members(name string) ([]domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.byName[name]
	if !ok {
		return nil, domain.ErrGroupNotFound
	}
	return g.memberList(), nil
}

// sample reports whether a 1-in-n response should fire. n <= 0 disables
// responses.
func (r *Router) sample(n int) bool {
	if n <= 0 {
		return false
	}
	if n == 1 {
		return true
	}
	return r.sampler.IntN(n) == 0
}

func (r *Router) pick(templates []string) string {
	switch len(templates) {
	case 0:
		return ""
	case 1:
		return templates[0]
	default:
		return templates[r.sampler.IntN(len(templates))]
	}
}

// memberMessage builds a message from g's leader to a single user. It
// returns nil when the template pool is empty.
func (r *Router) memberMessage(g *Group, u domain.User, templates []string) *domain.OutboundMessage {
	body := r.pick(templates)
	if body == "" {
		return nil
	}
	return &domain.OutboundMessage{
		ID:         uuid.New(),
		Sender:     g.leader,
		Recipients: []string{u.ID},
		Body:       u.Mention() + body,
		ColorIndex: g.colorIndex,
	}
}

func (r *Router) send(msg *domain.OutboundMessage) {
	if msg == nil {
		return
	}
	if !r.outbox.Enqueue(*msg) {
		slog.Debug("Outbound message dropped", "group", msg.Sender.Username, "recipients", len(msg.Recipients))
	}
}
