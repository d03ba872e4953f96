package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouteDeleteUser(t *testing.T) {
	assert.Equal(t, "/users/usr_123/delete", RouteDeleteUser("usr_123"))
	assert.Equal(t, "/users/usr%20123/delete", RouteDeleteUser("usr 123"))
}

func TestRouteUserExists(t *testing.T) {
	route, err := RouteUserExists(UserExistsQuery{Email: "user@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "/auth/exists?email=user%40example.com", route)

	route, err = RouteUserExists(UserExistsQuery{
		Username:      "someone",
		ExcludeUserID: "usr_123",
	})
	require.NoError(t, err)
	assert.Equal(t, "/auth/exists?username=someone&excludeUserId=usr_123", route)
}

func TestRouteUserExistsRequiresIdentity(t *testing.T) {
	// An exclusion on its own identifies nobody to probe.
	_, err := RouteUserExists(UserExistsQuery{ExcludeUserID: "usr_123"})
	assert.Error(t, err)
}
