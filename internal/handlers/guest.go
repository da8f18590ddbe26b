// internal/handlers/guest.go
package handlers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/villeneuve-games/fortyone/internal/auth"
)

const authCookie = "auth_token"

// EnsureGuest resolves the caller's guest identity from the auth cookie,
// minting a fresh one when the cookie is missing or invalid. There are no
// accounts; a guest id plus the display name chosen at join time is the whole
// identity model.
func EnsureGuest(w http.ResponseWriter, r *http.Request) (clientID, name string, err error) {
	if c, cookieErr := r.Cookie(authCookie); cookieErr == nil {
		if id, tokenName, authErr := auth.AuthenticateGuestJWT(c.Value); authErr == nil {
			return id, tokenName, nil
		}
		// Invalid or expired token falls through to reissue.
	}

	clientID = uuid.NewString()
	newToken, err := auth.CreateGuestJWT(clientID, "")
	if err != nil {
		return "", "", err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     authCookie,
		Value:    newToken,
		HttpOnly: true,
		Path:     "/",
	})
	return clientID, "", nil
}
