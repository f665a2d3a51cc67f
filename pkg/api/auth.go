package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

const authCookie = "growbal_auth"

// cookieMaxAge keeps the login cookie for a week, matching the session
// idle window.
const cookieMaxAge = 7 * 24 * 3600

// Credential is one allowed login.
type Credential struct {
	OwnerID  int
	Password string
}

// CredentialStore authenticates a login attempt, returning the owner id.
type CredentialStore interface {
	Authenticate(email, password string) (int, bool)
}

// StaticCredentials is an in-memory credential store keyed by lowercase
// email.
type StaticCredentials map[string]Credential

// Authenticate implements CredentialStore with constant-time password
// comparison.
func (s StaticCredentials) Authenticate(email, password string) (int, bool) {
	cred, ok := s[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return 0, false
	}
	if subtle.ConstantTimeCompare([]byte(cred.Password), []byte(password)) != 1 {
		return 0, false
	}
	return cred.OwnerID, true
}

// ParseCredentials parses "email:password:owner_id" entries separated by
// commas.
func ParseCredentials(spec string) (StaticCredentials, error) {
	creds := StaticCredentials{}
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid credential entry %q: want email:password:owner_id", entry)
		}
		ownerID, err := strconv.Atoi(parts[2])
		if err != nil {
			return nil, fmt.Errorf("invalid owner id in credential entry %q: %w", entry, err)
		}
		creds[strings.ToLower(parts[0])] = Credential{OwnerID: ownerID, Password: parts[1]}
	}
	return creds, nil
}

// signOwner produces the cookie value "<owner_id>.<hmac>".
func signOwner(secret string, ownerID int) string {
	value := strconv.Itoa(ownerID)
	return value + "." + cookieSignature(secret, value)
}

// verifyOwner parses and verifies a cookie value, returning the owner id.
func verifyOwner(secret, cookie string) (int, bool) {
	value, sig, ok := strings.Cut(cookie, ".")
	if !ok {
		return 0, false
	}
	if subtle.ConstantTimeCompare([]byte(cookieSignature(secret, value)), []byte(sig)) != 1 {
		return 0, false
	}
	ownerID, err := strconv.Atoi(value)
	if err != nil {
		return 0, false
	}
	return ownerID, true
}

func cookieSignature(secret, value string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(value))
	return hex.EncodeToString(mac.Sum(nil))
}

const ownerKey = "owner_id"

// authMiddleware resolves the login cookie into the request context. It
// never rejects; handlers needing a login use requireAuth.
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if cookie, err := c.Cookie(authCookie); err == nil {
			if ownerID, ok := verifyOwner(s.cookieSecret, cookie); ok {
				c.Set(ownerKey, ownerID)
			}
		}
		c.Next()
	}
}

// requireAuth aborts unauthenticated requests.
func requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := c.Get(ownerKey); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "login required"})
		}
	}
}

// currentOwner returns the logged-in owner id, or nil for anonymous
// requests.
func currentOwner(c *gin.Context) *int {
	if v, ok := c.Get(ownerKey); ok {
		id := v.(int)
		return &id
	}
	return nil
}

// Login handles POST /login (form: email, password). On success it sets
// the signed auth cookie and redirects to the country selection page.
func (s *Server) Login(c *gin.Context) {
	email := c.PostForm("email")
	password := c.PostForm("password")
	ownerID, ok := s.creds.Authenticate(email, password)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
		return
	}

	c.SetCookie(authCookie, signOwner(s.cookieSecret, ownerID), cookieMaxAge, "/", "", false, true)
	c.Redirect(http.StatusSeeOther, "/country/")
}

// Logout handles POST /logout: clears the cookie and redirects to login.
func (s *Server) Logout(c *gin.Context) {
	c.SetCookie(authCookie, "", -1, "/", "", false, true)
	c.Redirect(http.StatusSeeOther, "/login")
}

// LoginPage handles GET /login for unauthenticated redirects.
func (s *Server) LoginPage(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "POST email and password to /login"})
}
