package replicator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/you-humble/pdftrack/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memSource map[string][]byte

func (m memSource) Get(ctx context.Context, name string) (io.ReadCloser, domain.Artifact, error) {
	b, ok := m[name]
	if !ok {
		return nil, domain.Artifact{}, fmt.Errorf("no artifact %s", name)
	}
	return io.NopCloser(bytes.NewReader(b)), domain.Artifact{Name: name, Size: int64(len(b)), MIMEType: "text/plain"}, nil
}

type memMirror struct {
	mu       sync.Mutex
	files    map[string][]byte
	meta     map[string]domain.Artifact
	failLeft int
	puts     int
}

func newMemMirror() *memMirror {
	return &memMirror{files: make(map[string][]byte), meta: make(map[string]domain.Artifact)}
}

func (m *memMirror) Put(ctx context.Context, r io.Reader, a domain.Artifact) (domain.Artifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	if m.failLeft > 0 {
		m.failLeft--
		return domain.Artifact{}, errors.New("mirror unavailable")
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return domain.Artifact{}, err
	}
	m.files[a.Name] = b
	m.meta[a.Name] = a
	return a, nil
}

func (m *memMirror) get(name string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.files[name]
	return b, ok
}

type results struct {
	mu   sync.Mutex
	errs map[string]error
	runs map[string]int
}

func newResults() *results {
	return &results{errs: make(map[string]error), runs: make(map[string]int)}
}

func (r *results) record(a domain.Artifact, attempts int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs[a.Name] = err
	r.runs[a.Name] = attempts
}

func TestReplicator_DrainsQueueOnStop(t *testing.T) {
	src := memSource{}
	for i := range 5 {
		src[fmt.Sprintf("out%d.xlsx", i)] = []byte(fmt.Sprintf("content-%d", i))
	}
	mirror := newMemMirror()
	res := newResults()

	r := New(src, mirror, 8, 2, 0, WithResultFunc(res.record))
	r.Start(context.Background())

	for i := range 5 {
		require.True(t, r.Enqueue(domain.Artifact{Name: fmt.Sprintf("out%d.xlsx", i)}))
	}
	require.NoError(t, r.Stop(context.Background()))

	for i := range 5 {
		name := fmt.Sprintf("out%d.xlsx", i)
		b, ok := mirror.get(name)
		require.True(t, ok)
		assert.Equal(t, fmt.Sprintf("content-%d", i), string(b))
		assert.NoError(t, res.errs[name])
	}

	assert.False(t, r.Enqueue(domain.Artifact{Name: "late.xlsx"}))
	require.NoError(t, r.Stop(context.Background()))
}

func TestReplicator_FillsMissingMetadataFromSource(t *testing.T) {
	mirror := newMemMirror()
	r := New(memSource{"a.xlsx": []byte("abc")}, mirror, 1, 1, 0)
	r.Start(context.Background())

	require.True(t, r.Enqueue(domain.Artifact{Name: "a.xlsx", SHA256: "h"}))
	require.NoError(t, r.Stop(context.Background()))

	got := mirror.meta["a.xlsx"]
	assert.Equal(t, int64(3), got.Size)
	assert.Equal(t, "text/plain", got.MIMEType)
	assert.Equal(t, "h", got.SHA256)
}

func TestReplicator_Retries(t *testing.T) {
	mirror := newMemMirror()
	mirror.failLeft = 2
	res := newResults()

	r := New(memSource{"out.xlsx": []byte("data")}, mirror, 1, 1, 3,
		WithRetryDelay(time.Millisecond), WithResultFunc(res.record))
	r.Start(context.Background())

	require.True(t, r.Enqueue(domain.Artifact{Name: "out.xlsx"}))
	require.NoError(t, r.Stop(context.Background()))

	b, ok := mirror.get("out.xlsx")
	require.True(t, ok)
	assert.Equal(t, "data", string(b))
	assert.Equal(t, 3, mirror.puts)
	assert.Equal(t, 3, res.runs["out.xlsx"])
	assert.NoError(t, res.errs["out.xlsx"])
}

func TestReplicator_GivesUp(t *testing.T) {
	mirror := newMemMirror()
	mirror.failLeft = 10
	res := newResults()

	r := New(memSource{"out.xlsx": []byte("data")}, mirror, 1, 1, 1,
		WithRetryDelay(time.Millisecond), WithResultFunc(res.record))
	r.Start(context.Background())

	require.True(t, r.Enqueue(domain.Artifact{Name: "out.xlsx"}))
	require.NoError(t, r.Stop(context.Background()))

	_, ok := mirror.get("out.xlsx")
	assert.False(t, ok)
	assert.Equal(t, 2, mirror.puts)
	assert.Error(t, res.errs["out.xlsx"])
}

func TestReplicator_MissingSource(t *testing.T) {
	res := newResults()
	r := New(memSource{}, newMemMirror(), 1, 1, 0, WithResultFunc(res.record))
	r.Start(context.Background())

	require.True(t, r.Enqueue(domain.Artifact{Name: "gone.xlsx"}))
	require.NoError(t, r.Stop(context.Background()))

	require.Error(t, res.errs["gone.xlsx"])
	assert.Contains(t, res.errs["gone.xlsx"].Error(), "open artifact")
}

func TestReplicator_EnqueueFullQueue(t *testing.T) {
	r := New(memSource{}, newMemMirror(), 1, 1, 0)

	assert.True(t, r.Enqueue(domain.Artifact{Name: "a"}))
	assert.False(t, r.Enqueue(domain.Artifact{Name: "b"}))
}
