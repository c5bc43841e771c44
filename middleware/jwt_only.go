package middleware

import (
	"net/http"

	"github.com/MrEthical07/shopauth"
	"github.com/MrEthical07/shopauth/permission"
)

// Authenticate only demands a valid access token. Handlers read the caller
// with [IdentityFromContext].
func Authenticate(engine *shopauth.Engine) func(http.Handler) http.Handler {
	return Require(engine, permission.Requirement{})
}
