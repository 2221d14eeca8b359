package directory

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schooltrack/internal/store"
)

// openTestRepo connects to the database named by TEST_DATABASE_URL and
// clears the operators table. Tests that need Postgres skip when the
// variable is unset so the rest of the suite stays self-contained.
func openTestRepo(t *testing.T) (*Repository, *sql.DB) {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := store.NewDB(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Client.Close() })
	require.NoError(t, db.EnsureSchema(context.Background()))
	_, err = db.Client.ExecContext(context.Background(), `TRUNCATE operators RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	return NewRepository(db.Client), db.Client
}

func insertTestOperator(t *testing.T, r *Repository, username string) Operator {
	t.Helper()
	o, err := r.InsertOperator(context.Background(), Operator{
		Username:     username,
		PasswordHash: "x",
		Role:         "teacher",
		Active:       true,
	})
	require.NoError(t, err)
	return o
}

func TestAssignDutyKeepsSingleHolder(t *testing.T) {
	repo, db := openTestRepo(t)
	ctx := context.Background()

	a := insertTestOperator(t, repo, "ms-adler")
	b := insertTestOperator(t, repo, "mr-baker")
	c := insertTestOperator(t, repo, "dr-cole")

	// Put the table in a state older builds could produce, with more than
	// one row flagged.
	_, err := db.ExecContext(ctx, `UPDATE operators SET on_duty = TRUE WHERE id IN ($1, $2)`, a.ID, b.ID)
	require.NoError(t, err)

	require.NoError(t, repo.AssignDuty(ctx, c.ID))

	var flagged int64
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM operators WHERE on_duty`).Scan(&flagged))
	assert.EqualValues(t, 1, flagged)

	holder, err := repo.DutyHolder(ctx)
	require.NoError(t, err)
	require.NotNil(t, holder)
	assert.Equal(t, c.ID, holder.ID)
}

func TestAssignDutyUnknownOperator(t *testing.T) {
	repo, _ := openTestRepo(t)
	ctx := context.Background()

	a := insertTestOperator(t, repo, "ms-adler")
	require.NoError(t, repo.AssignDuty(ctx, a.ID))

	err := repo.AssignDuty(ctx, a.ID+1000)
	assert.ErrorIs(t, err, sql.ErrNoRows)

	// The failed call rolled back, so the previous holder keeps the flag.
	holder, err := repo.DutyHolder(ctx)
	require.NoError(t, err)
	require.NotNil(t, holder)
	assert.Equal(t, a.ID, holder.ID)
}

func TestDutyHolderNoneAssigned(t *testing.T) {
	repo, _ := openTestRepo(t)

	insertTestOperator(t, repo, "ms-adler")

	holder, err := repo.DutyHolder(context.Background())
	require.NoError(t, err)
	assert.Nil(t, holder)
}
