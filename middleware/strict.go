package middleware

import (
	"net/http"

	"github.com/MrEthical07/shopauth"
	"github.com/MrEthical07/shopauth/permission"
)

// RequireLive is Require with req raised to critical sensitivity, so the
// caller's role graph is re-read instead of trusting token claims. Use it
// for refunds, role edits and user management.
func RequireLive(engine *shopauth.Engine, req permission.Requirement) func(http.Handler) http.Handler {
	return Require(engine, req.WithSensitivity(permission.SensitivityCritical))
}
