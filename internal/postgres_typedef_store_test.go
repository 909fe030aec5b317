package internal

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/lychee-technology/cohort"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTypeDef() *cohort.TypeDef {
	return &cohort.TypeDef{
		GUID:     "guid-1",
		Name:     "Asset",
		Category: cohort.TypeDefCategoryEntity,
		Version:  1,
	}
}

func typeDefBody(t *testing.T, td *cohort.TypeDef) []byte {
	t.Helper()
	body, err := json.Marshal(td)
	require.NoError(t, err)
	return body
}

// =============================================================================
// AddTypeDef
// =============================================================================

func TestPostgresTypeDefStore_AddTypeDef(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresTypeDefStore(mock, "typedefs")
	td := testTypeDef()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM typedefs WHERE guid = \$1`).
		WithArgs(td.GUID).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(`INSERT INTO typedefs`).
		WithArgs(td.GUID, td.Version, td.Name, string(td.Category), typeDefBody(t, td)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.AddTypeDef(context.Background(), td))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTypeDefStore_AddTypeDefDuplicate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresTypeDefStore(mock, "typedefs")
	td := testTypeDef()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM typedefs WHERE guid = \$1`).
		WithArgs(td.GUID).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))

	err = store.AddTypeDef(context.Background(), td)
	require.Error(t, err)
	assert.True(t, cohort.IsConflictError(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// =============================================================================
// AddTypeDefVersion
// =============================================================================

func TestPostgresTypeDefStore_AddTypeDefVersion(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresTypeDefStore(mock, "typedefs")
	td := testTypeDef()
	td.Version = 2

	latest := int64(1)
	mock.ExpectQuery(`SELECT MAX\(version\) FROM typedefs WHERE guid = \$1`).
		WithArgs(td.GUID).
		WillReturnRows(pgxmock.NewRows([]string{"max"}).AddRow(&latest))
	mock.ExpectExec(`INSERT INTO typedefs`).
		WithArgs(td.GUID, td.Version, td.Name, string(td.Category), typeDefBody(t, td)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.AddTypeDefVersion(context.Background(), td))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTypeDefStore_AddTypeDefVersionUnknownGUID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresTypeDefStore(mock, "typedefs")
	td := testTypeDef()
	td.Version = 2

	mock.ExpectQuery(`SELECT MAX\(version\) FROM typedefs WHERE guid = \$1`).
		WithArgs(td.GUID).
		WillReturnRows(pgxmock.NewRows([]string{"max"}).AddRow((*int64)(nil)))

	err = store.AddTypeDefVersion(context.Background(), td)
	require.Error(t, err)
	assert.True(t, cohort.IsNotFoundError(err))
}

func TestPostgresTypeDefStore_AddTypeDefVersionMustAdvance(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresTypeDefStore(mock, "typedefs")
	td := testTypeDef() // version 1

	latest := int64(3)
	mock.ExpectQuery(`SELECT MAX\(version\) FROM typedefs WHERE guid = \$1`).
		WithArgs(td.GUID).
		WillReturnRows(pgxmock.NewRows([]string{"max"}).AddRow(&latest))

	err = store.AddTypeDefVersion(context.Background(), td)
	require.Error(t, err)
	assert.True(t, cohort.IsPatchError(err))
}

// =============================================================================
// Reads
// =============================================================================

func TestPostgresTypeDefStore_GetLatestTypeDef(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresTypeDefStore(mock, "typedefs")
	td := testTypeDef()

	mock.ExpectQuery(`SELECT body FROM typedefs WHERE guid = \$1 ORDER BY version DESC LIMIT 1`).
		WithArgs(td.GUID).
		WillReturnRows(pgxmock.NewRows([]string{"body"}).AddRow(typeDefBody(t, td)))

	got, err := store.GetLatestTypeDef(context.Background(), td.GUID)
	require.NoError(t, err)
	assert.Equal(t, td.Name, got.Name)
	assert.Equal(t, td.Version, got.Version)
}

func TestPostgresTypeDefStore_GetLatestTypeDefNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresTypeDefStore(mock, "typedefs")

	mock.ExpectQuery(`SELECT body FROM typedefs WHERE guid = \$1 ORDER BY version DESC LIMIT 1`).
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{"body"}))

	_, err = store.GetLatestTypeDef(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, cohort.IsNotFoundError(err))
}

func TestPostgresTypeDefStore_GetTypeDefVersion(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresTypeDefStore(mock, "typedefs")
	td := testTypeDef()

	mock.ExpectQuery(`SELECT body FROM typedefs WHERE guid = \$1 AND version = \$2`).
		WithArgs(td.GUID, int64(1)).
		WillReturnRows(pgxmock.NewRows([]string{"body"}).AddRow(typeDefBody(t, td)))

	got, err := store.GetTypeDefVersion(context.Background(), td.GUID, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)
}

func TestPostgresTypeDefStore_GetTypeDefByName(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresTypeDefStore(mock, "typedefs")
	td := testTypeDef()

	mock.ExpectQuery(`SELECT body FROM typedefs WHERE name = \$1 ORDER BY version DESC LIMIT 1`).
		WithArgs(td.Name).
		WillReturnRows(pgxmock.NewRows([]string{"body"}).AddRow(typeDefBody(t, td)))

	got, err := store.GetTypeDefByName(context.Background(), td.Name)
	require.NoError(t, err)
	assert.Equal(t, td.GUID, got.GUID)
}

func TestPostgresTypeDefStore_ListTypeDefs(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresTypeDefStore(mock, "typedefs")
	first := testTypeDef()
	second := testTypeDef()
	second.GUID = "guid-2"
	second.Name = "Server"

	mock.ExpectQuery(`SELECT DISTINCT ON \(guid\) body FROM typedefs`).
		WillReturnRows(pgxmock.NewRows([]string{"body"}).
			AddRow(typeDefBody(t, first)).
			AddRow(typeDefBody(t, second)))

	got, err := store.ListTypeDefs(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Asset", got[0].Name)
	assert.Equal(t, "Server", got[1].Name)
}
