package thread

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder collects published snapshots.
type recorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *recorder) listen(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *recorder) all() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Snapshot(nil), r.snaps...)
}

func TestStore_SubscribeDeliversCurrent(t *testing.T) {
	st := NewStore(NewSnapshot("agent"))
	rec := &recorder{}
	unsubscribe := st.Subscribe(rec.listen)
	defer unsubscribe()

	got := rec.all()
	require.Len(t, got, 1)
	assert.Equal(t, "agent", got[0].AssistantID)
}

func TestStore_ApplyPublishesChanges(t *testing.T) {
	st := NewStore(NewSnapshot("agent"))
	rec := &recorder{}
	st.Subscribe(rec.listen)

	assert.True(t, st.Apply(ProgressEvent("one")))
	assert.False(t, st.Apply(UIRemoveEvent("nothing")))
	assert.True(t, st.Apply(ProgressEvent("two")))

	got := rec.all()
	require.Len(t, got, 3)
	assert.Equal(t, uint64(1), got[1].Version)
	assert.Equal(t, uint64(2), got[2].Version)
	assert.Equal(t, []string{"one", "two"}, st.Snapshot().ProgressNotes)
}

func TestStore_Unsubscribe(t *testing.T) {
	st := NewStore(NewSnapshot("agent"))
	rec := &recorder{}
	unsubscribe := st.Subscribe(rec.listen)
	unsubscribe()
	unsubscribe()

	st.Apply(ProgressEvent("ignored by listener"))
	assert.Len(t, rec.all(), 1)
}

func TestStore_UpdateWithoutChange(t *testing.T) {
	st := NewStore(NewSnapshot("agent"))
	snap, changed := st.Update(func(s Snapshot) (Snapshot, bool) { return s, false })
	assert.False(t, changed)
	assert.Equal(t, uint64(0), snap.Version)
}

func TestStore_ConcurrentApplyKeepsEveryNote(t *testing.T) {
	st := NewStore(NewSnapshot("agent"))
	rec := &recorder{}
	st.Subscribe(rec.listen)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st.Apply(ProgressEvent("tick"))
		}()
	}
	wg.Wait()

	snap := st.Snapshot()
	assert.Len(t, snap.ProgressNotes, 20)
	assert.Equal(t, uint64(20), snap.Version)

	// deliveries never go backwards
	var last uint64
	for _, s := range rec.all()[1:] {
		assert.Greater(t, s.Version, last)
		assert.Len(t, s.ProgressNotes, int(s.Version))
		last = s.Version
	}
}
