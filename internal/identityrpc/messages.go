package identityrpc

type SignUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type SignOutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type SignOutResponse struct{}

type PingRequest struct{}

type PingResponse struct {
	Status string `json:"status"`
}

// SessionResponse is returned by every call that establishes a session.
type SessionResponse struct {
	UID          string `json:"uid"`
	Email        string `json:"email"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}
