package cookiestore

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_RoundTripDropsExpired(t *testing.T) {
	store := &FileStore{Dir: t.TempDir()}

	err := store.Save("Mock Council", []*http.Cookie{
		{Name: "disclaimer", Value: "accepted", Path: "/"},
		{Name: "old", Value: "x", Expires: time.Now().Add(-time.Hour)},
	})
	require.NoError(t, err)

	cookies, err := store.Load("Mock Council")
	require.NoError(t, err)
	require.Len(t, cookies, 1)
	assert.Equal(t, "disclaimer", cookies[0].Name)
	assert.Equal(t, "accepted", cookies[0].Value)
}

func TestFileStore_MissingIsNotFound(t *testing.T) {
	store := &FileStore{Dir: t.TempDir()}
	_, err := store.Load("Nowhere")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, store.Delete("Nowhere"))
}

func TestFileStore_PathIsSanitised(t *testing.T) {
	store := &FileStore{Dir: "/tmp/cookies"}
	assert.Equal(t, "/tmp/cookies/.._etc_passwd.json", store.path("../etc/passwd"))
}
