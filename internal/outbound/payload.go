package outbound

import "github.com/pscheid92/crowdpulse/internal/domain"

// BroadcasterSenderID is the sender id the chat API expects for messages
// sent on behalf of the broadcast.
const BroadcasterSenderID = "broadcaster"

// DirectMessage is the chat API representation of an outbound message.
type DirectMessage struct {
	BroadcastID            string   `json:"broadcast_id"`
	RecipientUserIDs       []string `json:"recipient_user_ids"`
	Message                string   `json:"message"`
	SenderUserID           string   `json:"sender_user_id"`
	SenderUsername         string   `json:"sender_username"`
	SenderProfileImageURL  string   `json:"sender_profile_image_url"`
	SenderParticipantIndex int      `json:"sender_participant_index"`
}

func NewDirectMessage(broadcastID string, msg domain.OutboundMessage) DirectMessage {
	return DirectMessage{
		BroadcastID:            broadcastID,
		RecipientUserIDs:       msg.Recipients,
		Message:                msg.Body,
		SenderUserID:           BroadcasterSenderID,
		SenderUsername:         msg.Sender.Username,
		SenderProfileImageURL:  msg.Sender.ProfileImageURL,
		SenderParticipantIndex: msg.ColorIndex,
	}
}
