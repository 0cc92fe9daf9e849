package api

import (
	"crypto/subtle"
	"fmt"
	"net/http"

	"github.com/AaronLay10/xyzplot/internal/config"
)

// Role represents an authorization role.
type Role string

const (
	RoleAdmin  Role = "admin"  // may start sweeps
	RoleViewer Role = "viewer" // read-only access to outputs and events
)

// authConfig holds credentials loaded from environment variables.
type authConfig struct {
	adminUser  string
	adminPass  string
	viewerUser string
	viewerPass string
	enabled    bool
}

var auth *authConfig

// InitAuth loads credentials from XYZ_ADMIN_USER, XYZ_ADMIN_PASS,
// XYZ_VIEWER_USER and XYZ_VIEWER_PASS, each also readable through the
// *_FILE convention. Without admin credentials authentication is disabled.
func InitAuth() error {
	var vals [4]string
	for i, name := range []string{"XYZ_ADMIN_USER", "XYZ_ADMIN_PASS", "XYZ_VIEWER_USER", "XYZ_VIEWER_PASS"} {
		v, err := config.ResolveSecret(name)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", name, err)
		}
		vals[i] = v
	}

	auth = &authConfig{
		adminUser:  vals[0],
		adminPass:  vals[1],
		viewerUser: vals[2],
		viewerPass: vals[3],
		enabled:    vals[0] != "" && vals[1] != "",
	}
	return nil
}

// IsAuthEnabled returns true if authentication is configured.
func IsAuthEnabled() bool {
	return auth != nil && auth.enabled
}

// authenticate checks basic auth credentials and returns the role, or ""
// when they match nobody.
func authenticate(r *http.Request) Role {
	if auth == nil || !auth.enabled {
		return RoleAdmin
	}

	user, pass, ok := r.BasicAuth()
	if !ok {
		return ""
	}
	if matches(user, pass, auth.adminUser, auth.adminPass) {
		return RoleAdmin
	}
	if matches(user, pass, auth.viewerUser, auth.viewerPass) {
		return RoleViewer
	}
	return ""
}

func matches(user, pass, wantUser, wantPass string) bool {
	if wantUser == "" || wantPass == "" {
		return false
	}
	// Evaluate both so timing does not reveal which one differs.
	u := secureCompare(user, wantUser)
	p := secureCompare(pass, wantPass)
	return u && p
}

func secureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func requireAuth(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="xyzplot"`)
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}

// RequireRole wraps a handler and requires one of the specified roles.
func RequireRole(handler http.HandlerFunc, allowedRoles ...Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role := authenticate(r)
		if role == "" {
			requireAuth(w)
			return
		}
		for _, allowed := range allowedRoles {
			if role == allowed {
				handler(w, r)
				return
			}
		}
		http.Error(w, "Forbidden", http.StatusForbidden)
	}
}

// RequireAnyRole wraps a handler requiring admin OR viewer role.
func RequireAnyRole(handler http.HandlerFunc) http.HandlerFunc {
	return RequireRole(handler, RoleAdmin, RoleViewer)
}

// RequireAdmin wraps a handler requiring admin role only.
func RequireAdmin(handler http.HandlerFunc) http.HandlerFunc {
	return RequireRole(handler, RoleAdmin)
}
