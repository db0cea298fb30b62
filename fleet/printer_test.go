package fleet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spoolworks/printfarm/errors"
	pftesting "github.com/spoolworks/printfarm/internal/testing"
)

func TestHasTags(t *testing.T) {
	p := &Printer{Tags: []string{"enclosed", "0.4mm", "pei-sheet"}}

	assert.True(t, p.HasTags(nil))
	assert.True(t, p.HasTags([]string{"enclosed"}))
	assert.True(t, p.HasTags([]string{"enclosed", "0.4mm"}))
	assert.False(t, p.HasTags([]string{"enclosed", "0.6mm"}))

	bare := &Printer{}
	assert.True(t, bare.HasTags(nil))
	assert.False(t, bare.HasTags([]string{"enclosed"}))
}

func TestCanLoadColors(t *testing.T) {
	p := &Printer{Slots: []string{"pla:red", "pla:white"}}
	compat := map[string][]string{
		"pla:crimson": {"pla:red", "pla:darkred"},
	}

	assert.True(t, p.CanLoadColors(nil, compat))
	assert.True(t, p.CanLoadColors([]string{"pla:red"}, compat))
	assert.True(t, p.CanLoadColors([]string{"pla:crimson"}, compat), "compat table substitution")
	assert.True(t, p.CanLoadColors([]string{"pla:red", "pla:crimson"}, compat))
	assert.False(t, p.CanLoadColors([]string{"pla:black"}, compat))
	assert.False(t, p.CanLoadColors([]string{"pla:red", "pla:black"}, compat),
		"every requested color must be satisfied")
}

func TestStoreRoundTrip(t *testing.T) {
	conn := pftesting.CreateTestDB(t)
	store := NewStore(conn)

	p, err := New("prusa-1")
	require.NoError(t, err)
	p.Tags = []string{"enclosed"}
	p.Slots = []string{"pla:red"}
	require.NoError(t, store.Create(p))

	got, err := store.Get(p.ID)
	require.NoError(t, err)
	assert.Equal(t, "prusa-1", got.Name)
	assert.True(t, got.Active)
	assert.Equal(t, []string{"enclosed"}, got.Tags)
	assert.Equal(t, []string{"pla:red"}, got.Slots)

	got.Slots = []string{"pla:white", "petg:black"}
	require.NoError(t, store.Update(got))

	again, err := store.Get(p.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"pla:white", "petg:black"}, again.Slots)
}

func TestStoreNotFound(t *testing.T) {
	conn := pftesting.CreateTestDB(t)
	store := NewStore(conn)

	_, err := store.Get("nope")
	assert.True(t, errors.IsNotFound(err))
	assert.True(t, errors.IsNotFound(store.Delete("nope")))
	assert.True(t, errors.IsNotFound(store.SetActive("nope", false)))
}

func TestStoreListActive(t *testing.T) {
	conn := pftesting.CreateTestDB(t)
	store := NewStore(conn)

	a, err := New("alpha")
	require.NoError(t, err)
	require.NoError(t, store.Create(a))

	b, err := New("beta")
	require.NoError(t, err)
	require.NoError(t, store.Create(b))

	require.NoError(t, store.SetActive(b.ID, false))

	active, err := store.ListActive()
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "alpha", active[0].Name)

	all, err := store.List()
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
