package server

// AuthSignupRequest is the signup payload.
type AuthSignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthLoginRequest is the login payload.
type AuthLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse carries a freshly issued JWT.
type TokenResponse struct {
	Token string `json:"token"`
}

// TurnRequest submits a new question on a thread.
type TurnRequest struct {
	Message string `json:"message"`
	Lang    string `json:"lang"`
}

// ResumeRequest answers a pending clarification.
type ResumeRequest struct {
	Answer string `json:"answer"`
	Lang   string `json:"lang"`
}

// ClearResponse carries the replacement thread id after a clear.
type ClearResponse struct {
	ThreadID string `json:"thread_id"`
}

// WelcomeResponse is the localized greeting for a new thread.
type WelcomeResponse struct {
	Message string   `json:"message"`
	Locales []string `json:"locales"`
}

// HTTPError is the uniform error body.
type HTTPError struct {
	Error string `json:"error"`
}
