// Package auth resolves the caller identity from the bearer token. Token
// validation itself is delegated to the fleet auth service and treated as a
// black box; the one rule enforced here is that yacht_id comes from the
// token, never from the request payload.
package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/yachtops/pms-backend/pkg/logger"
)

// Role is the crew permission ladder.
type Role string

const (
	RoleCrew          Role = "crew"
	RoleEngineer      Role = "engineer"
	RoleChiefEngineer Role = "chief_engineer"
	RoleCaptain       Role = "captain"
)

var roleRank = map[Role]int{
	RoleCrew:          0,
	RoleEngineer:      1,
	RoleChiefEngineer: 2,
	RoleCaptain:       3,
}

// AtLeast reports whether r meets the minimum role.
func (r Role) AtLeast(min Role) bool {
	rank, ok := roleRank[r]
	minRank, minOK := roleRank[min]
	return ok && minOK && rank >= minRank
}

// Identity is the resolved caller. YachtID is the tenant boundary for every
// downstream query.
type Identity struct {
	YachtID string
	UserID  string
	Role    Role
}

var ErrUnauthorized = errors.New("invalid or missing credentials")

// Resolver turns a bearer token into an Identity. The production resolver
// calls the fleet auth service; tests use a static map.
type Resolver interface {
	Resolve(ctx context.Context, token string) (Identity, error)
}

// StaticResolver is a fixed token table, used in development and tests.
type StaticResolver struct {
	Tokens map[string]Identity
}

func (s *StaticResolver) Resolve(_ context.Context, token string) (Identity, error) {
	id, ok := s.Tokens[token]
	if !ok {
		return Identity{}, ErrUnauthorized
	}
	return id, nil
}

const identityKey = "identity"

// Middleware extracts and resolves the bearer token, storing the Identity
// in the request locals. Requests without a resolvable token get 401.
func Middleware(resolver Resolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if token == "" || token == header {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing bearer token",
			})
		}

		identity, err := resolver.Resolve(c.Context(), token)
		if err != nil {
			logger.Warn("token resolution failed", zap.String("ip", c.IP()))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid credentials",
			})
		}
		if identity.YachtID == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid credentials",
			})
		}

		c.Locals(identityKey, identity)
		return c.Next()
	}
}

// FromContext returns the resolved identity for the request.
func FromContext(c *fiber.Ctx) (Identity, bool) {
	id, ok := c.Locals(identityKey).(Identity)
	return id, ok
}
