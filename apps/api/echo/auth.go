package echoapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/pkg/errors"

	"github.com/akcent-academy/crm/core"
)

const bearerPrefix = "Bearer "

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	Username string `json:"username,omitempty"`
	IsAdmin  bool   `json:"is_admin,omitempty"`
}

// JWTAccessChecker grants requests bearing a valid HS256 token with the is_admin claim.
type JWTAccessChecker struct {
	appName string
	secret  []byte
}

var _ core.AccessChecker = (*JWTAccessChecker)(nil)

func NewJWTAccessChecker(conf *core.Config) *JWTAccessChecker {
	return &JWTAccessChecker{appName: conf.AppName, secret: []byte(conf.Auth.SecretKey)}
}

func (c *JWTAccessChecker) Verify(r *http.Request) (bool, error) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, bearerPrefix) {
		return false, nil
	}

	claims := new(Claims)
	token, err := jwt.ParseWithClaims(strings.TrimPrefix(header, bearerPrefix), claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return c.secret, nil
	})
	if err != nil || !token.Valid {
		return false, nil
	}
	return claims.IsAdmin, nil
}

// AdminClaims returns the claims of an admin session valid for ttl.
func (c *JWTAccessChecker) AdminClaims(username string, ttl time.Duration) *Claims {
	now := time.Now()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    c.appName,
			Subject:   username,
			ExpiresAt: now.Add(ttl).Unix(),
			IssuedAt:  now.Unix(),
		},
		Username: username,
		IsAdmin:  true,
	}
}

// GenerateToken generates a signed JWT token string representing the Claims.
func (c *JWTAccessChecker) GenerateToken(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	ss, err := token.SignedString(c.secret)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}
