// Package event defines the closed set of events carried by the in-process bus
// and the broadcast bus itself.
//
// Every variant is a plain value type. A published event is copied into each
// receiver's queue, so handlers never share ownership of a payload.
package event

import "time"

// Kind names an event variant. The variant set is closed: adding a Kind means
// auditing the default arm of every handler's type switch.
type Kind string

const (
	KindChatMessage      Kind = "chat_message"
	KindSpeechRequest    Kind = "speech_request"
	KindTextUpdate       Kind = "text_update"
	KindSourceVisibility Kind = "source_visibility"
	KindStreamCharacter  Kind = "stream_character"
	KindFilterTrigger    Kind = "filter_trigger"
)

// Event is implemented only by the variants declared in this package.
type Event interface {
	Kind() Kind
	isEvent()
}

// Role is a privilege tier derived from chat badges.
type Role int

const (
	RoleViewer Role = iota
	RoleSubscriber
	RoleVIP
	RoleModerator
	RoleBroadcaster
)

// String returns the role name used in logs.
func (r Role) String() string {
	switch r {
	case RoleViewer:
		return "viewer"
	case RoleSubscriber:
		return "subscriber"
	case RoleVIP:
		return "vip"
	case RoleModerator:
		return "moderator"
	case RoleBroadcaster:
		return "broadcaster"
	default:
		return "unknown"
	}
}

// Roles are the role flags attached to a chat sender.
type Roles struct {
	Broadcaster bool
	Moderator   bool
	VIP         bool
	Subscriber  bool
}

// Tier returns the highest role the flags grant.
func (r Roles) Tier() Role {
	switch {
	case r.Broadcaster:
		return RoleBroadcaster
	case r.Moderator:
		return RoleModerator
	case r.VIP:
		return RoleVIP
	case r.Subscriber:
		return RoleSubscriber
	default:
		return RoleViewer
	}
}

// Allows reports whether the sender holds at least the given tier.
func (r Roles) Allows(min Role) bool { return r.Tier() >= min }

// ChatMessage is one received chat line.
type ChatMessage struct {
	ID          string
	Channel     string
	UserID      string
	Login       string
	DisplayName string
	Text        string
	Roles       Roles
	SentAt      time.Time
}

// SpeechRequest asks the speech handler to voice a message as the user's character.
type SpeechRequest struct {
	Username  string
	Message   string
	VoiceText string
}

// TextUpdateRequest replaces the text shown by a text source's move filter.
type TextUpdateRequest struct {
	Source string
	Filter string
	Text   string
}

// SourceVisibilityRequest shows or hides a scene item.
type SourceVisibilityRequest struct {
	Scene   string
	Source  string
	Enabled bool
}

// StreamCharacterRequest shows or hides a character's visual source.
type StreamCharacterRequest struct {
	Source  string
	Enabled bool
}

// FilterTriggerRequest enables a filter on a source, replaying its effect.
type FilterTriggerRequest struct {
	Source string
	Filter string
}

func (ChatMessage) Kind() Kind             { return KindChatMessage }
func (SpeechRequest) Kind() Kind           { return KindSpeechRequest }
func (TextUpdateRequest) Kind() Kind       { return KindTextUpdate }
func (SourceVisibilityRequest) Kind() Kind { return KindSourceVisibility }
func (StreamCharacterRequest) Kind() Kind  { return KindStreamCharacter }
func (FilterTriggerRequest) Kind() Kind    { return KindFilterTrigger }

func (ChatMessage) isEvent()             {}
func (SpeechRequest) isEvent()           {}
func (TextUpdateRequest) isEvent()       {}
func (SourceVisibilityRequest) isEvent() {}
func (StreamCharacterRequest) isEvent()  {}
func (FilterTriggerRequest) isEvent()    {}
