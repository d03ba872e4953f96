package client

import (
	"fmt"

	"github.com/yosida95/uritemplate/v3"
)

// Route URI patterns for the authentication surface of the remote service.
const (
	loginRoute          = "/auth/login"
	logoutRoute         = "/logout"
	verifyTokenRoute    = "/auth"
	verifyTOTPRoute     = "/auth/twofactorauth/totp/verify"
	verifyEmailOTPRoute = "/auth/twofactorauth/emailotp/verify"
	verifyRecoveryRoute = "/auth/twofactorauth/otp/verify"

	deleteUserTemplateURI = "/users/{userId}/delete"
	userExistsTemplateURI = "/auth/exists{?email,username,displayName,excludeUserId}"
)

var (
	deleteUserTemplate = uritemplate.MustNew(deleteUserTemplateURI)
	userExistsTemplate = uritemplate.MustNew(userExistsTemplateURI)
)

// RouteLogin returns the login route. With no valid session cookie the
// request must carry Basic credentials in the Authorization header.
func RouteLogin() string { return loginRoute }

// RouteCurrentUser returns the route that reports the current user when a
// valid session cookie is present. The remote service serves it on the same
// path as login.
func RouteCurrentUser() string { return loginRoute }

// RouteLogout returns the logout route.
func RouteLogout() string { return logoutRoute }

// RouteVerifyToken returns the route that verifies the session cookies.
func RouteVerifyToken() string { return verifyTokenRoute }

// RouteVerifyTOTP returns the route that verifies a time-based two-factor
// code.
func RouteVerifyTOTP() string { return verifyTOTPRoute }

// RouteVerifyEmailOTP returns the route that verifies an emailed one-time
// code.
func RouteVerifyEmailOTP() string { return verifyEmailOTPRoute }

// RouteVerifyRecoveryCode returns the route that verifies a recovery code.
func RouteVerifyRecoveryCode() string { return verifyRecoveryRoute }

// RouteDeleteUser returns the route that deletes the user with the given ID.
func RouteDeleteUser(userID string) string {
	s, err := deleteUserTemplate.Expand(uritemplate.Values{
		"userId": uritemplate.String(userID),
	})
	if err != nil {
		// The template has a single string variable; expansion cannot fail.
		panic(err)
	}
	return s
}

// UserExistsQuery selects which identity to probe with RouteUserExists.
// At least one field must be set.
type UserExistsQuery struct {
	Email         string
	Username      string
	DisplayName   string
	ExcludeUserID string
}

// RouteUserExists returns the route that checks whether a user exists.
func RouteUserExists(q UserExistsQuery) (string, error) {
	if q.Email == "" && q.Username == "" && q.DisplayName == "" {
		return "", fmt.Errorf("at least one of email, username, or display name must be provided")
	}

	values := uritemplate.Values{}
	if q.Email != "" {
		values["email"] = uritemplate.String(q.Email)
	}
	if q.Username != "" {
		values["username"] = uritemplate.String(q.Username)
	}
	if q.DisplayName != "" {
		values["displayName"] = uritemplate.String(q.DisplayName)
	}
	if q.ExcludeUserID != "" {
		values["excludeUserId"] = uritemplate.String(q.ExcludeUserID)
	}

	s, err := userExistsTemplate.Expand(values)
	if err != nil {
		return "", fmt.Errorf("expanding user-exists route: %w", err)
	}
	return s, nil
}
