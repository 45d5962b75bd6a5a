// Package auth provides role-based authentication for FieldVision: a static
// user directory loaded from disk and JWT tokens carrying role and permission
// claims. Badge verification during the work-order flow uses the same
// directory through Lookup.
package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const PermCreateWorkOrder = "create_work_order"
const PermApproveWorkOrder = "approve_work_order"

// User is one entry in the reference directory. The directory is static
// seed data; nothing in the live path mutates it.
type User struct {
	Name        string   `json:"name"`
	Role        string   `json:"role"`
	Zone        string   `json:"zone"`
	Password    string   `json:"password"`
	Permissions []string `json:"permissions"`
}

func (u User) HasPermission(perm string) bool {
	for _, p := range u.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

// Directory is the badge/user reference store keyed by employee ID.
type Directory struct {
	users map[string]User
}

func LoadDirectory(path string) (*Directory, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read users file: %w", err)
	}
	var doc struct {
		Users map[string]User `json:"users"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse users file: %w", err)
	}
	if doc.Users == nil {
		doc.Users = make(map[string]User)
	}
	return &Directory{users: doc.Users}, nil
}

func NewDirectory(users map[string]User) *Directory {
	if users == nil {
		users = make(map[string]User)
	}
	return &Directory{users: users}
}

// Lookup returns the user for an employee ID. The second return is false for
// unknown IDs; callers treat that as a normal business outcome, not an error.
func (d *Directory) Lookup(userID string) (User, bool) {
	if d == nil {
		return User{}, false
	}
	u, ok := d.users[userID]
	return u, ok
}

// Authenticate checks login credentials against the directory.
func (d *Directory) Authenticate(userID, password string) (User, bool) {
	u, ok := d.Lookup(userID)
	if !ok || password == "" || u.Password != password {
		return User{}, false
	}
	return u, true
}

// Claims is the JWT payload issued at login and checked on every
// authenticated request and WebSocket upgrade.
type Claims struct {
	UserID      string   `json:"user_id"`
	Name        string   `json:"name"`
	Role        string   `json:"role"`
	Zone        string   `json:"zone"`
	Permissions []string `json:"permissions"`
	jwt.RegisteredClaims
}

func (c *Claims) HasPermission(perm string) bool {
	if c == nil {
		return false
	}
	for _, p := range c.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: ttl}
}

func (t *TokenIssuer) Issue(userID string, user User) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:      userID,
		Name:        user.Name,
		Role:        user.Role,
		Zone:        user.Zone,
		Permissions: user.Permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, &claims).SignedString(t.secret)
}

func (t *TokenIssuer) Verify(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", tok.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}
