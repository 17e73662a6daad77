package api

// SignupRequest is the body of POST /User/signup.
type SignupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest is the body of POST /User/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RoomRequest is the body of POST /room/create-room and /room/join-room.
type RoomRequest struct {
	RoomID string `json:"roomId"`
}

// tokenResponse is the JSON form of a login response.
type tokenResponse struct {
	Token       string `json:"token"`
	AccessToken string `json:"accessToken"`
}
