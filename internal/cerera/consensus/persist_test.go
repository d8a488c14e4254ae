package consensus

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-process Store fake, standing in for storage.PogrebKV in
// tests so persistence round-trips don't touch disk.
type memStore struct {
	mu   sync.Mutex
	data map[string]map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string]map[string][]byte)}
}

func (s *memStore) Get(namespace string, key []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ns, ok := s.data[namespace]
	if !ok {
		return nil, nil
	}
	return ns[string(key)], nil
}

func (s *memStore) WriteBatch(namespace string, puts map[string][]byte, deletes [][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ns, ok := s.data[namespace]
	if !ok {
		ns = make(map[string][]byte)
		s.data[namespace] = ns
	}
	for k, v := range puts {
		ns[k] = v
	}
	for _, k := range deletes {
		delete(ns, string(k))
	}
	return nil
}

func TestEngineResumesFromPersistedSnapshot(t *testing.T) {
	engines, notifies, _, validators := buildMesh(t, 1)
	store := newMemStore()
	engines[0].AttachStore(store)

	require.NoError(t, engines[0].Request([]byte("value-1")))
	require.Eventually(t, func() bool {
		return notifies[0].commitCount() == 1
	}, time.Second, time.Millisecond)

	wantView := engines[0].View()
	wantSeq := engines[0].LastExeSeq()
	require.Greater(t, wantSeq, uint64(0))

	// A freshly constructed engine pointed at the same store must resume
	// exactly where the committed one left off.
	cfg := engines[0].cfg
	resumed := NewEngine(cfg, validators, 0, nil, nil, JSONCodec{}, &recordingNotify{})
	resumed.AttachStore(store)

	assert.Equal(t, wantView, resumed.View())
	assert.Equal(t, wantSeq, resumed.LastExeSeq())
}

func TestEngineAttachStoreWithoutPriorSnapshotIsNoop(t *testing.T) {
	engines, _, _, _ := buildMesh(t, 1)
	store := newMemStore()
	viewBefore := engines[0].View()
	seqBefore := engines[0].LastExeSeq()

	engines[0].AttachStore(store)

	assert.Equal(t, viewBefore, engines[0].View())
	assert.Equal(t, seqBefore, engines[0].LastExeSeq())
}
