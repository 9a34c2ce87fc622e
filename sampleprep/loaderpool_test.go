package sampleprep

import (
	"testing"

	"github.com/cbegin/organsampler/wav"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestLoaderPoolProcessesJobsToCompletion(t *testing.T) {
	pool := NewLoaderPool(2)

	const jobs = 4
	ids := make([]uuid.UUID, jobs)
	for i := 0; i < jobs; i++ {
		attack := makeRawPipe(4000, 1)
		attack.Markers = []wav.Marker{{Position: 500, Length: 3000, HasLoop: true}}
		attack.Frequency = 220
		id := uuid.New()
		ids[i] = id
		go pool.Submit(Job{ID: id, Attack: attack, Gain: 1, Bits: Bits16})
	}

	seen := map[uuid.UUID]bool{}
	for i := 0; i < jobs; i++ {
		res := <-pool.Results()
		require.NoError(t, res.Err)
		require.NotNil(t, res.Pipe)
		seen[res.ID] = true
	}
	pool.Close()

	require.Len(t, seen, jobs)
	for _, id := range ids {
		require.True(t, seen[id])
	}
	require.NoError(t, pool.Err())
}

func TestLoaderPoolRecordsFirstError(t *testing.T) {
	pool := NewLoaderPool(1)

	badAttack := makeRawPipe(100, 1) // no loop markers: Ingest returns ErrNoLoop
	go pool.Submit(Job{ID: uuid.New(), Attack: badAttack, Gain: 1, Bits: Bits16})

	res := <-pool.Results()
	require.ErrorIs(t, res.Err, ErrNoLoop)
	pool.Close()

	require.ErrorIs(t, pool.Err(), ErrNoLoop)
}
