package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func testSchema() Schema {
	return Schema{
		"products": {"id", "name", "price", "stock", "created_at"},
		"orders":   {"id", "total", "created_at"},
	}
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "db.json"), testSchema())
	require.NoError(t, err)
	return s
}

func TestCreateAndGet(t *testing.T) {
	s := openTestStore(t)

	created, err := s.Create("products", Record{"name": "mug", "price": 9.5, "stock": 3})
	require.NoError(t, err)
	require.NotEmpty(t, created["id"])
	require.NotEmpty(t, created["created_at"])

	id := created["id"].(string)
	require.Regexp(t, `^product-\d+-[0-9a-f]{9}$`, id)

	got, err := s.GetByID("products", id)
	require.NoError(t, err)
	require.Equal(t, "mug", got["name"])
	require.Equal(t, 9.5, got["price"])
}

func TestUpdateKeepsIdentity(t *testing.T) {
	s := openTestStore(t)

	created, err := s.Create("products", Record{"name": "mug", "price": 9.5})
	require.NoError(t, err)
	id := created["id"].(string)

	updated, err := s.Update("products", id, Record{
		"name":       "cup",
		"id":         "product-evil",
		"created_at": "1999-01-01T00:00:00Z",
	})
	require.NoError(t, err)
	require.Equal(t, "cup", updated["name"])
	require.Equal(t, id, updated["id"])
	require.Equal(t, created["created_at"], updated["created_at"])
	// untouched fields survive the patch
	require.Equal(t, 9.5, updated["price"])
}

func TestDelete(t *testing.T) {
	s := openTestStore(t)

	created, err := s.Create("products", Record{"name": "mug"})
	require.NoError(t, err)
	id := created["id"].(string)

	deleted, err := s.Delete("products", id)
	require.NoError(t, err)
	require.Equal(t, "mug", deleted["name"])

	_, err = s.GetByID("products", id)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = s.Delete("products", id)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUnknownTableAndField(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetAll("nope")
	require.ErrorIs(t, err, ErrUnknownTable)

	_, err = s.Create("nope", Record{"name": "x"})
	require.ErrorIs(t, err, ErrUnknownTable)

	_, err = s.Create("products", Record{"name": "x", "weight": 3})
	require.ErrorIs(t, err, ErrValidation)
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.json")

	s, err := Open(path, testSchema())
	require.NoError(t, err)
	created, err := s.Create("products", Record{"name": "mug", "stock": 3})
	require.NoError(t, err)

	reopened, err := Open(path, testSchema())
	require.NoError(t, err)
	got, err := reopened.GetByID("products", created["id"].(string))
	require.NoError(t, err)
	require.Equal(t, "mug", got["name"])
	// numbers come back as float64 after the JSON round trip
	require.Equal(t, float64(3), got["stock"])
}

func TestCorruptFileRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := Open(path, testSchema())
	require.ErrorIs(t, err, ErrPersistence)
}

func TestMutateRollsBackOnError(t *testing.T) {
	s := openTestStore(t)

	created, err := s.Create("products", Record{"name": "mug", "stock": 5})
	require.NoError(t, err)
	id := created["id"].(string)

	boom := os.ErrInvalid
	err = s.Mutate(func(tx *Tx) error {
		if _, err := tx.Update("products", id, Record{"stock": 0}); err != nil {
			return err
		}
		if _, err := tx.Create("orders", Record{"total": 10.0}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.GetByID("products", id)
	require.NoError(t, err)
	require.Equal(t, float64(5), got["stock"])

	n, err := s.Count("orders")
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestMutateSeesOwnWrites(t *testing.T) {
	s := openTestStore(t)

	err := s.Mutate(func(tx *Tx) error {
		created, err := tx.Create("products", Record{"name": "mug", "stock": 5})
		if err != nil {
			return err
		}
		id := created["id"].(string)
		if _, err := tx.Update("products", id, Record{"stock": 4}); err != nil {
			return err
		}
		got, err := tx.GetByID("products", id)
		if err != nil {
			return err
		}
		require.Equal(t, float64(4), got["stock"])
		return nil
	})
	require.NoError(t, err)
}

func TestReadsReturnCopies(t *testing.T) {
	s := openTestStore(t)

	created, err := s.Create("products", Record{"name": "mug"})
	require.NoError(t, err)
	id := created["id"].(string)

	got, err := s.GetByID("products", id)
	require.NoError(t, err)
	got["name"] = "tampered"

	again, err := s.GetByID("products", id)
	require.NoError(t, err)
	require.Equal(t, "mug", again["name"])
}

// Values written with caller-side Go types must land in the store exactly as
// they would come back from disk, or equality lookups diverge between a fresh
// process and a long-running one.
func TestWritesAreCanonicalized(t *testing.T) {
	type label string
	s := openTestStore(t)

	created, err := s.Create("products", Record{"name": label("mug"), "stock": 5})
	require.NoError(t, err)
	id := created["id"].(string)

	got, err := s.GetByID("products", id)
	require.NoError(t, err)
	require.IsType(t, "", got["name"])
	require.Equal(t, float64(5), got["stock"])

	// a typed patch value still matches a plain-string lookup afterwards
	_, err = s.Update("products", id, Record{"name": label("cup")})
	require.NoError(t, err)

	recs, err := s.FindBy("products", map[string]any{"name": "cup"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
}

func TestFindBy(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Create("products", Record{"name": "mug", "stock": 1})
	require.NoError(t, err)
	_, err = s.Create("products", Record{"name": "hat", "stock": 2})
	require.NoError(t, err)

	recs, err := s.FindBy("products", map[string]any{"name": "hat"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, "hat", recs[0]["name"])
}
