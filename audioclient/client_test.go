package audioclient

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/audiocast/audioserver"
	"github.com/cyberinferno/audiocast/formatcache"
	"github.com/cyberinferno/audiocast/logger"
)

var testFormat = []byte{0xFE, 0xED, 0xFA, 0xCE}

// fakeCapture is a minimal server-side capture collaborator.
type fakeCapture struct{}

func (fakeCapture) StartLoopbackRecording(audioserver.AudioSink, audioserver.CaptureConfig) error {
	return nil
}
func (fakeCapture) Stop()                           {}
func (fakeCapture) GetFormatBinary() ([]byte, error) { return testFormat, nil }

// fakePlayback records what the client hands it.
type fakePlayback struct {
	mu      sync.Mutex
	format  []byte
	started bool
	played  [][]byte
}

func (p *fakePlayback) Init(blob []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.format = blob
	return nil
}

func (p *fakePlayback) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = true
	return nil
}

func (p *fakePlayback) Play(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.played = append(p.played, data)
}

func (p *fakePlayback) snapshot() (format []byte, started bool, played [][]byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.format, p.started, append([][]byte(nil), p.played...)
}

func startTestServer(t *testing.T, mutate func(*audioserver.Config)) *audioserver.Server {
	t.Helper()

	cfg := audioserver.DefaultConfig("127.0.0.1", 0)
	if mutate != nil {
		mutate(&cfg)
	}

	srv := audioserver.New(cfg, fakeCapture{}, formatcache.NewMemoryCache(time.Minute, time.Minute), logger.NewNopLogger())
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Stop)

	return srv
}

func startTestClient(t *testing.T, srv *audioserver.Server, mutate func(*Config)) (*Client, *fakePlayback) {
	t.Helper()

	cfg := DefaultConfig("127.0.0.1", srv.Port())
	if mutate != nil {
		mutate(&cfg)
	}

	playback := &fakePlayback{}
	client := New(cfg, playback, logger.NewNopLogger())
	require.NoError(t, client.Start())
	t.Cleanup(client.Stop)

	return client, playback
}

func TestClient_handshake(t *testing.T) {
	srv := startTestServer(t, nil)
	client, playback := startTestClient(t, srv, nil)

	assert.True(t, client.IsRunning())
	assert.Equal(t, uint32(1), client.SessionID())

	format, started, _ := playback.snapshot()
	assert.Equal(t, testFormat, format)
	assert.True(t, started)
}

func TestClient_doubleStart(t *testing.T) {
	srv := startTestServer(t, nil)
	client, _ := startTestClient(t, srv, nil)

	assert.ErrorIs(t, client.Start(), ErrAlreadyRunning)
}

func TestClient_receivesAudio(t *testing.T) {
	srv := startTestServer(t, nil)
	client, playback := startTestClient(t, srv, nil)
	require.True(t, client.IsRunning())

	payload := []byte{10, 20, 30, 40, 50, 60, 70, 80}
	// The registration datagram may still be in flight; retry until the
	// fan-out reaches the playback engine.
	require.Eventually(t, func() bool {
		srv.BroadcastAudioData(payload, 4)
		_, _, played := playback.snapshot()
		return len(played) > 0
	}, 2*time.Second, 20*time.Millisecond)

	_, _, played := playback.snapshot()
	assert.Equal(t, payload, played[0])
}

func TestClient_stop(t *testing.T) {
	srv := startTestServer(t, nil)
	client, _ := startTestClient(t, srv, nil)

	client.Stop()
	assert.False(t, client.IsRunning())

	// Repeat stop is harmless.
	client.Stop()
}

func TestClient_serverGoesAway(t *testing.T) {
	srv := startTestServer(t, nil)
	client, _ := startTestClient(t, srv, nil)
	require.True(t, client.IsRunning())

	srv.Stop()

	waitDone := make(chan struct{})
	go func() {
		client.Wait()
		close(waitDone)
	}()

	select {
	case <-waitDone:
	case <-time.After(5 * time.Second):
		t.Fatal("client did not wind down after server shutdown")
	}
	assert.False(t, client.IsRunning())
}

func TestClient_heartbeatKeepsSessionAlive(t *testing.T) {
	srv := startTestServer(t, func(cfg *audioserver.Config) {
		cfg.HeartbeatInterval = 20 * time.Millisecond
		cfg.HeartbeatTimeout = 150 * time.Millisecond
	})
	client, _ := startTestClient(t, srv, func(cfg *Config) {
		cfg.HeartbeatInterval = 20 * time.Millisecond
	})

	// Several eviction windows pass; the client's heartbeats must keep the
	// server from dropping it.
	time.Sleep(500 * time.Millisecond)
	assert.True(t, client.IsRunning())
}

func TestClient_startFailsWithoutServer(t *testing.T) {
	cfg := DefaultConfig("127.0.0.1", 1)
	cfg.DialTimeout = 200 * time.Millisecond

	client := New(cfg, &fakePlayback{}, logger.NewNopLogger())
	assert.Error(t, client.Start())
	assert.False(t, client.IsRunning())
}
