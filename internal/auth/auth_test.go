package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "unit-test-signing-key"

func TestIssueAndParse(t *testing.T) {
	token, exp, err := Issue(42, "mara", RoleTeacher, "schooltrack", testKey, time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	claims, err := Parse(token, testKey, "schooltrack")
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.OperatorID)
	assert.Equal(t, RoleTeacher, claims.Role)
	assert.Equal(t, "mara", claims.Subject)
}

func TestParseRejectsWrongKey(t *testing.T) {
	token, _, err := Issue(42, "mara", RoleTeacher, "schooltrack", testKey, time.Hour)
	require.NoError(t, err)

	_, err = Parse(token, "some-other-key", "schooltrack")
	assert.Error(t, err)
}

func TestParseRejectsExpiredToken(t *testing.T) {
	token, _, err := Issue(42, "mara", RoleTeacher, "schooltrack", testKey, -time.Minute)
	require.NoError(t, err)

	_, err = Parse(token, testKey, "schooltrack")
	assert.Error(t, err)
}

func TestParseRejectsIssuerMismatch(t *testing.T) {
	token, _, err := Issue(42, "mara", RoleTeacher, "someone-else", testKey, time.Hour)
	require.NoError(t, err)

	_, err = Parse(token, testKey, "schooltrack")
	assert.Error(t, err)
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse("not.a.token", testKey, "schooltrack")
	assert.Error(t, err)
}

func TestRoleLevels(t *testing.T) {
	assert.Equal(t, LevelTeacher, Level(RoleTeacher))
	assert.Equal(t, LevelITStaff, Level(RoleITStaff))
	assert.Equal(t, LevelAdmin, Level(RoleAdmin))
	assert.Equal(t, 0, Level("janitor"))
	assert.Equal(t, 0, Level(""))

	assert.True(t, Level(RoleAdmin) > Level(RoleITStaff))
	assert.True(t, Level(RoleITStaff) > Level(RoleTeacher))
}

func TestValidRole(t *testing.T) {
	assert.True(t, ValidRole(RoleTeacher))
	assert.True(t, ValidRole(RoleITStaff))
	assert.True(t, ValidRole(RoleAdmin))
	assert.False(t, ValidRole("superuser"))
	assert.False(t, ValidRole(""))
}

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("hunter2")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter2", hash)

	assert.True(t, CheckPassword(hash, "hunter2"))
	assert.False(t, CheckPassword(hash, "hunter3"))
	assert.False(t, CheckPassword("not-a-hash", "hunter2"))
}
