package main

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"

	"github.com/rs/xid"
)

var palette = []string{"ff0000", "ff9966", "76d7ea", "4f7942", "ffd700", "9966cc", "ff69b4", "00ced1"}

var chatLines = []string{
	"hello from the crowd",
	"this is great",
	"where is everyone from?",
	"more please :redheart:",
	"first time here",
}

type wireImage struct {
	URL string `json:"url"`
}

type wireUser struct {
	ID               string      `json:"id"`
	Username         string      `json:"username,omitempty"`
	ProfileImageURLs []wireImage `json:"profile_image_urls,omitempty"`
}

// Field order matters: the ingestion fast path matches the stream's
// serialisation order.
type wireEvent struct {
	ID    string    `json:"id"`
	Type  string    `json:"type"`
	Text  string    `json:"text,omitempty"`
	User  *wireUser `json:"user"`
	Color string    `json:"color"`
}

type viewerCount struct {
	Type  string `json:"type"`
	Live  int    `json:"live"`
	Total int    `json:"total"`
}

// Generator produces a reproducible stream of joins, hearts, chats and
// viewer counts for a fixed population. Every viewer joins before it sends
// anything else.
type Generator struct {
	rng    *rand.Rand
	users  int
	joined []bool
	live   int
	total  int
}

func NewGenerator(users int, seed uint64) *Generator {
	if users < 1 {
		users = 1
	}
	return &Generator{
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		users:  users,
		joined: make([]bool, users),
	}
}

// Next returns the next frame.
func (g *Generator) Next() []byte {
	i := g.rng.IntN(g.users)
	color := "#" + palette[i%len(palette)]

	if !g.joined[i] {
		g.joined[i] = true
		g.live++
		g.total++
		return g.encode(wireEvent{
			ID:    xid.New().String(),
			Type:  "join",
			User:  g.fullUser(i),
			Color: color,
		})
	}

	switch roll := g.rng.IntN(100); {
	case roll < 70:
		return g.encode(wireEvent{
			ID:    xid.New().String(),
			Type:  "heart",
			User:  &wireUser{ID: userID(i)},
			Color: color,
		})
	case roll < 95:
		return g.encode(wireEvent{
			ID:    xid.New().String(),
			Type:  "chat",
			Text:  chatLines[g.rng.IntN(len(chatLines))],
			User:  g.fullUser(i),
			Color: color,
		})
	default:
		return g.encode(viewerCount{Type: "viewer_count", Live: g.live, Total: g.total})
	}
}

func (g *Generator) fullUser(i int) *wireUser {
	return &wireUser{
		ID:               userID(i),
		Username:         fmt.Sprintf("viewer%d", i),
		ProfileImageURLs: []wireImage{{URL: fmt.Sprintf("https://avatars.example.com/%d.png", i)}},
	}
}

func (g *Generator) encode(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("encode synthetic frame: %v", err))
	}
	return data
}

func userID(i int) string {
	return fmt.Sprintf("u%d", i)
}
