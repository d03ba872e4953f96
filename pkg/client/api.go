package client

// Session cookie names set by the remote service.
const (
	sessionCookieName   = "auth"
	twoFactorCookieName = "twoFactorAuth"
)

// TwoFactorMethodTOTP is the time-based code method name in login responses.
const TwoFactorMethodTOTP = "totp"

// loginResponse is the JSON body of a login response. Either a user identity
// is present or the response names the required two-factor methods.
type loginResponse struct {
	ID                    string   `json:"id"`
	RequiresTwoFactorAuth []string `json:"requiresTwoFactorAuth"`
}

// verifyCodeRequest is the body POSTed to a two-factor verification route.
type verifyCodeRequest struct {
	Code string `json:"code"`
}

// verifyCodeResponse is the result of a two-factor verification.
type verifyCodeResponse struct {
	Verified bool `json:"verified"`
}

// verifyTokenResponse is the result of the session-token verification route.
type verifyTokenResponse struct {
	OK bool `json:"ok"`
}
