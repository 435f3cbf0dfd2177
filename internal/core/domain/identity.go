package domain

type UserID string

// GuestUserID identifies unauthenticated users arriving through public join links.
const GuestUserID UserID = "guest"

type Identity struct {
	UserID   UserID `json:"user_id"`
	UserName string `json:"user_name,omitempty"`
}

// GuestIdentity returns the identity assigned to connections without a token.
func GuestIdentity() Identity {
	return Identity{UserID: GuestUserID, UserName: "Guest"}
}

func (i Identity) IsGuest() bool {
	return i.UserID == "" || i.UserID == GuestUserID
}
