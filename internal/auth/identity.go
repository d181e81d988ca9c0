// Package auth adapts the external authentication collaborator: it turns an
// already-issued token into a verified {userID, role} principal. Credential
// verification itself never happens here.
package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"collectpay/internal/domain"
	"collectpay/pkg/errors"
)

// Principal is the verified identity the core operates on.
type Principal struct {
	UserID uuid.UUID
	Role   domain.Role
}

type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// ParsePrincipal validates the token signature and extracts the principal.
func (v *Verifier) ParsePrincipal(tokenString string) (*Principal, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, errors.ErrUnauthorized
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.ErrUnauthorized
	}

	sub, _ := claims["sub"].(string)
	userID, err := uuid.Parse(sub)
	if err != nil {
		return nil, errors.ErrUnauthorized
	}

	role, _ := claims["role"].(string)
	switch domain.Role(role) {
	case domain.RoleMerchant, domain.RoleCashier, domain.RoleFinance, domain.RoleAdmin:
	default:
		return nil, errors.ErrUnauthorized
	}

	return &Principal{UserID: userID, Role: domain.Role(role)}, nil
}
