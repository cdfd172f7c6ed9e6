package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
)

// Subject types carried in tokens.
const (
	SubjectPartner    = "partner"
	SubjectInfluencer = "influencer"
	SubjectCustomer   = "customer"
	SubjectAdmin      = "admin"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims represents the JWT claims
type Claims struct {
	SubjectID uuid.UUID `json:"sub_id"`
	UserType  string    `json:"user_type"`
	Email     string    `json:"email"`
	IsAdmin   bool      `json:"is_admin"`
	jwt.StandardClaims
}

// Token is what login endpoints hand back.
type Token struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"` // seconds
	TokenType   string `json:"token_type"`
}

// TokenIssuer signs and validates HS256 tokens with one shared secret.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer creates an issuer; ttl is the access token lifetime.
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Generate creates a signed access token for a subject.
func (i *TokenIssuer) Generate(subjectID uuid.UUID, userType, email string, isAdmin bool) (Token, error) {
	now := i.now()
	expiresAt := now.Add(i.ttl)

	claims := Claims{
		SubjectID: subjectID,
		UserType:  userType,
		Email:     email,
		IsAdmin:   isAdmin,
		StandardClaims: jwt.StandardClaims{
			Subject:   subjectID.String(),
			IssuedAt:  now.Unix(),
			ExpiresAt: expiresAt.Unix(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return Token{}, fmt.Errorf("sign token: %w", err)
	}

	return Token{
		AccessToken: signed,
		ExpiresIn:   int64(i.ttl / time.Second),
		TokenType:   "Bearer",
	}, nil
}

// Validate parses a token and returns its claims.
func (i *TokenIssuer) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.New("failed to parse token claims")
	}

	return claims, nil
}
