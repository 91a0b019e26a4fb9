package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleLadder(t *testing.T) {
	assert.True(t, RoleCrew.AtLeast(RoleCrew))
	assert.False(t, RoleCrew.AtLeast(RoleEngineer))
	assert.True(t, RoleEngineer.AtLeast(RoleCrew))
	assert.True(t, RoleChiefEngineer.AtLeast(RoleEngineer))
	assert.True(t, RoleCaptain.AtLeast(RoleChiefEngineer))
	assert.False(t, RoleChiefEngineer.AtLeast(RoleCaptain))
}

func TestUnknownRoleNeverQualifies(t *testing.T) {
	assert.False(t, Role("stowaway").AtLeast(RoleCrew))
	assert.False(t, RoleCaptain.AtLeast(Role("admiral")))
}

func TestStaticResolver(t *testing.T) {
	r := &StaticResolver{Tokens: map[string]Identity{
		"tok-1": {YachtID: "y-1", UserID: "u-1", Role: RoleEngineer},
	}}

	id, err := r.Resolve(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "y-1", id.YachtID)
	assert.Equal(t, RoleEngineer, id.Role)

	_, err = r.Resolve(context.Background(), "tok-unknown")
	assert.ErrorIs(t, err, ErrUnauthorized)
}
