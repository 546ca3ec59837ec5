package domain

type MessageKind string

const (
	KindUser   MessageKind = "user"
	KindSystem MessageKind = "system"
	KindImage  MessageKind = "image"
)

// Message is the client-side chat entry. The server relays it verbatim and never
// stores it.
type Message struct {
	ID         string      `json:"id"`
	Content    string      `json:"content"`
	SenderID   UserID      `json:"senderId"`
	SenderName string      `json:"senderName"`
	Timestamp  int64       `json:"timestamp"`
	Type       MessageKind `json:"type"`
	ImageURL   string      `json:"imageUrl,omitempty"`
	Reactions  []Reaction  `json:"reactions,omitempty"`
}

type Reaction struct {
	Emoji    string `json:"emoji"`
	UserID   UserID `json:"userId"`
	Username string `json:"username"`
}

// ChatUser is a participant as seen by clients; IsOnline is derived, never stored.
type ChatUser struct {
	ID       UserID `json:"id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
	IsOnline bool   `json:"isOnline"`
}
