// Package token signs and verifies the HS256 access tokens carrying a
// user's id and role.
package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/millomarket/marketplace/internal/models"
)

const accessTTL = 24 * time.Hour

type Claims struct {
	UserID models.UserID
	Email  string
	Role   string
}

func Sign(user models.User, secret []byte) (string, error) {
	claims := jwt.MapClaims{
		"sub":   string(user.ID),
		"email": user.Email,
		"role":  user.Role,
		"exp":   time.Now().Add(accessTTL).Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(secret)
}

func Parse(raw string, secret []byte) (Claims, error) {
	t, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signature method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || !t.Valid {
		return Claims{}, fmt.Errorf("invalid token: %w", err)
	}

	mc, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, fmt.Errorf("cannot parse claims")
	}
	sub, _ := mc["sub"].(string)
	email, _ := mc["email"].(string)
	role, _ := mc["role"].(string)
	if sub == "" || role == "" {
		return Claims{}, fmt.Errorf("token missing sub or role")
	}

	return Claims{UserID: models.UserID(sub), Email: email, Role: role}, nil
}
