package eventhook

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFire_NoCommandIsNoop(t *testing.T) {
	h := New("")
	h.Fire(context.Background(), SongStart, Fields{})
	// No panic, no observable effect; nothing more to assert.
}

func TestFire_WritesKeyValueBlockToCommandStdin(t *testing.T) {
	out, err := os.CreateTemp(t.TempDir(), "eventhook-out")
	require.NoError(t, err)
	defer out.Close()

	h := New("cat > " + out.Name())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	h.Fire(ctx, SongStart, Fields{
		Artist:       "Test Artist",
		Title:        "Test Title",
		SongDuration: 180,
		SongPlayed:   42,
		Rating:       "love",
		Stations:     []string{"Station A", "Station B"},
	})

	contents, err := os.ReadFile(out.Name())
	require.NoError(t, err)
	body := string(contents)

	assert.Contains(t, body, "artist=Test Artist\n")
	assert.Contains(t, body, "title=Test Title\n")
	assert.Contains(t, body, "songDuration=180\n")
	assert.Contains(t, body, "songPlayed=42\n")
	assert.Contains(t, body, "rating=love\n")
	assert.Contains(t, body, "stationCount=2\n")
	assert.Contains(t, body, "station0=Station A\n")
	assert.Contains(t, body, "station1=Station B\n")
}

func TestFire_FailingCommandDoesNotPanic(t *testing.T) {
	h := New("exit 1")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	h.Fire(ctx, SongFinish, Fields{})
}
