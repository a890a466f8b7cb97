package domain

// ChatUser is the identity projection embedded in rooms and messages.
// The canonical user record lives with the server.
type ChatUser struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// DisplayName returns Name, falling back to ID for users without one.
func (u ChatUser) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.ID
}
