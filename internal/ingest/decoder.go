package ingest

import (
	"encoding/json"
	"regexp"

	"github.com/pscheid92/crowdpulse/internal/domain"
	apperrors "github.com/pscheid92/crowdpulse/internal/errors"
)

// Outcome classifies a decoded payload.
type Outcome int

const (
	// OutcomeEvent means the payload carried a user event.
	OutcomeEvent Outcome = iota + 1
	// OutcomeIgnored means the payload was well formed but of no interest,
	// e.g. viewer counts or unknown types.
	OutcomeIgnored
	// OutcomeServerError means the stream reported an error frame.
	OutcomeServerError
)

// Decoded is the result of decoding one payload.
type Decoded struct {
	Outcome Outcome
	Event   domain.Event
	// Description holds the server's message for OutcomeServerError.
	Description string
}

// The stream serialises fields in a fixed order, so most payloads can be
// matched without a full JSON parse.
var (
	heartPattern = regexp.MustCompile(
		`^\{"id":"[\w-]+","type":"heart","user":\{"id":"(?P<user>\w+)"\},"color":"#(?P<color>\w+)"\}$`)
	chatPattern = regexp.MustCompile(
		`^\{"id":"[\w-]+","type":"chat","text":"(?P<text>(?:[^"\\]|\\.)*)",` +
			`"user":\{"id":"(?P<user>\w+)","username":"(?P<username>[^"]*)",(?:"display_name":"[^"]*",)?` +
			`"profile_image_urls":\[\{"url":"(?P<avatar>[^"]*)"\}\][^{}]*\},"color":"#(?P<color>\w+)"\}$`)
	joinPattern = regexp.MustCompile(
		`^\{"id":"[\w-]+","type":"join",` +
			`"user":\{"id":"(?P<user>\w+)","username":"(?P<username>[^"]*)",(?:"display_name":"[^"]*",)?` +
			`"profile_image_urls":\[\{"url":"(?P<avatar>[^"]*)"\}\][^{}]*\},"color":"#(?P<color>\w+)"\}$`)
	viewerCountPattern = regexp.MustCompile(`^\{"type":"viewer_count","live":\d+,"total":\d+\}$`)
	errorPattern       = regexp.MustCompile(`^\{"type":"error","description":"(?P<description>(?:[^"\\]|\\.)*)"\}$`)
)

type wireImage struct {
	URL string `json:"url"`
}

type wireUser struct {
	ID               string      `json:"id"`
	Username         string      `json:"username"`
	DisplayName      string      `json:"display_name"`
	ProfileImageURLs []wireImage `json:"profile_image_urls"`
}

type wireEvent struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	User        *wireUser `json:"user"`
	Color       string    `json:"color"`
	Text        string    `json:"text"`
	Description string    `json:"description"`
	Recipients  []string  `json:"recipient_user_ids"`
}

// Decoder turns raw stream payloads into events. It is stateless and safe
// for concurrent use.
type Decoder struct{}

func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode classifies payload. Malformed payloads and events without a user
// id return a decode error.
func (d *Decoder) Decode(payload []byte) (Decoded, error) {
	if decoded, ok := d.match(payload); ok {
		return decoded, nil
	}
	return d.parse(payload)
}

func (d *Decoder) match(payload []byte) (Decoded, bool) {
	if m := heartPattern.FindSubmatch(payload); m != nil {
		return eventOf(domain.EventHeart, group(heartPattern, m, "user"), "", "", "#"+group(heartPattern, m, "color"), ""), true
	}

	if m := chatPattern.FindSubmatch(payload); m != nil {
		text, err := unescape(group(chatPattern, m, "text"))
		if err != nil || text == "" {
			return Decoded{}, false
		}
		return eventOf(domain.EventChat,
			group(chatPattern, m, "user"),
			group(chatPattern, m, "username"),
			group(chatPattern, m, "avatar"),
			"#"+group(chatPattern, m, "color"),
			text), true
	}

	if m := joinPattern.FindSubmatch(payload); m != nil {
		return eventOf(domain.EventJoin,
			group(joinPattern, m, "user"),
			group(joinPattern, m, "username"),
			group(joinPattern, m, "avatar"),
			"#"+group(joinPattern, m, "color"),
			""), true
	}

	if viewerCountPattern.Match(payload) {
		return Decoded{Outcome: OutcomeIgnored}, true
	}

	if m := errorPattern.FindSubmatch(payload); m != nil {
		description, err := unescape(group(errorPattern, m, "description"))
		if err != nil {
			return Decoded{}, false
		}
		return Decoded{Outcome: OutcomeServerError, Description: description}, true
	}

	return Decoded{}, false
}

func (d *Decoder) parse(payload []byte) (Decoded, error) {
	var msg wireEvent
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Decoded{}, apperrors.DecodeError("malformed payload", err)
	}

	if msg.Type == "error" {
		return Decoded{Outcome: OutcomeServerError, Description: msg.Description}, nil
	}

	if msg.User == nil || msg.User.ID == "" {
		if isEventType(msg.Type) {
			return Decoded{}, apperrors.DecodeError("event without user", domain.ErrMissingUserID).
				WithContext("type", msg.Type)
		}
		return Decoded{Outcome: OutcomeIgnored}, nil
	}

	avatar := ""
	if len(msg.User.ProfileImageURLs) > 0 {
		avatar = msg.User.ProfileImageURLs[0].URL
	}
	color := domain.NormalizeColor(msg.Color)

	switch msg.Type {
	case "heart", "super_heart":
		return eventOf(domain.EventHeart, msg.User.ID, msg.User.Username, avatar, color, ""), nil
	case "chat":
		if msg.Text == "" {
			return Decoded{Outcome: OutcomeIgnored}, nil
		}
		return eventOf(domain.EventChat, msg.User.ID, msg.User.Username, avatar, color, msg.Text), nil
	case "join":
		return eventOf(domain.EventJoin, msg.User.ID, msg.User.Username, avatar, color, ""), nil
	case "direct_message":
		if msg.Text == "" || len(msg.Recipients) == 0 {
			return Decoded{Outcome: OutcomeIgnored}, nil
		}
		decoded := eventOf(domain.EventDirectMessage, msg.User.ID, msg.User.Username, avatar, color, msg.Text)
		decoded.Event.Recipients = msg.Recipients
		return decoded, nil
	default:
		return Decoded{Outcome: OutcomeIgnored}, nil
	}
}

func isEventType(t string) bool {
	switch t {
	case "heart", "super_heart", "chat", "join", "direct_message":
		return true
	default:
		return false
	}
}

func eventOf(kind domain.EventKind, id, username, avatar, color, text string) Decoded {
	return Decoded{
		Outcome: OutcomeEvent,
		Event: domain.Event{
			Kind: kind,
			User: domain.User{
				ID:              id,
				Username:        username,
				ProfileImageURL: avatar,
			},
			Color: color,
			Text:  text,
		},
	}
}

func group(re *regexp.Regexp, m [][]byte, name string) string {
	return string(m[re.SubexpIndex(name)])
}

// unescape resolves JSON string escapes captured by the fast path.
func unescape(s string) (string, error) {
	var out string
	if err := json.Unmarshal([]byte(`"`+s+`"`), &out); err != nil {
		return "", err
	}
	return out, nil
}
