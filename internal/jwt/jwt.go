package jwt

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// IdentityToken is what the identity provider signs for a logged in user.
// The subject is the provider's user id.
type IdentityToken struct {
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"name,omitempty"`
	ImageURL    string `json:"picture,omitempty"`
	jwt.RegisteredClaims
}

const CookieName = "JWT"

var ErrNoToken = errors.New("no token was provided")

var jwtSecret []byte
var isHttps bool

func Setup(_key string, _isHttps bool) {
	jwtSecret = []byte(_key)
	isHttps = _isHttps
}

// CreateToken signs claims for lifetime and wraps the result in the cookie
// the verifier reads. Tokens normally come from the identity provider, this
// is for local development and tests.
func CreateToken(claims IdentityToken, lifetime time.Duration) (http.Cookie, error) {
	currentTime := time.Now().UTC()
	expirationDate := currentTime.Add(lifetime)

	claims.IssuedAt = jwt.NewNumericDate(currentTime)
	claims.ExpiresAt = jwt.NewNumericDate(expirationDate)

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)

	tokenString, err := token.SignedString(jwtSecret)
	if err != nil {
		return http.Cookie{}, err
	}

	return http.Cookie{
		Name:     CookieName,
		Value:    tokenString,
		Path:     "/",
		Expires:  expirationDate,
		HttpOnly: true,
		Secure:   isHttps,
		SameSite: http.SameSiteLaxMode,
	}, nil
}

func VerifyToken(tokenString string) (IdentityToken, error) {
	token, err := jwt.ParseWithClaims(tokenString, &IdentityToken{}, func(token *jwt.Token) (interface{}, error) {
		return jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return IdentityToken{}, err
	}

	claims, ok := token.Claims.(*IdentityToken)
	if !ok || claims.Subject == "" {
		return IdentityToken{}, errors.New("invalid token")
	}
	return *claims, nil
}

// FromRequest returns the raw token of the request, taken from the JWT cookie
// or else from a bearer Authorization header.
func FromRequest(r *http.Request) (string, error) {
	if cookie, err := r.Cookie(CookieName); err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}

	header := r.Header.Get("Authorization")
	if token, found := strings.CutPrefix(header, "Bearer "); found && token != "" {
		return token, nil
	}
	return "", ErrNoToken
}

// ExpiredCookie removes the JWT cookie from the browser.
func ExpiredCookie() *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
	}
}
