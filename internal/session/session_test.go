package session

import (
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/relabs-tech/safe_space/internal/physio"
	"github.com/relabs-tech/safe_space/internal/serialport"
)

const telemetry = `{"eda_raw":1.2,"bvp_ir_raw":3.4,"temp_c":36.5,"acc_x_raw":0,"acc_y_raw":0,"acc_z_raw":0}`

// scriptedPort returns one chunk per Read, then EOF (a driver timeout).
type scriptedPort struct {
	mu     sync.Mutex
	chunks []string
	err    error
	closed bool
}

func (p *scriptedPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return 0, p.err
	}
	if len(p.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(b, p.chunks[0])
	p.chunks[0] = p.chunks[0][n:]
	if p.chunks[0] == "" {
		p.chunks = p.chunks[1:]
	}
	return n, nil
}

func (p *scriptedPort) Write(b []byte) (int, error) { return len(b), nil }

func (p *scriptedPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

type portBox struct {
	ports  map[string]*scriptedPort
	opened []string
	// closedAtOpen records, for each open, whether every earlier port
	// was already closed.
	closedAtOpen []bool
}

func (b *portBox) open(name string, opts serialport.Options) (io.ReadWriteCloser, error) {
	allClosed := true
	for _, prev := range b.opened {
		if p := b.ports[prev]; p != nil && !p.closed {
			allClosed = false
		}
	}
	b.closedAtOpen = append(b.closedAtOpen, allClosed)
	b.opened = append(b.opened, name)

	p, ok := b.ports[name]
	if !ok {
		return nil, errors.New("no such port")
	}
	return p, nil
}

func newTestSession(box *portBox) *Session {
	s := New(box.open, Config{}, zap.NewNop())
	s.now = func() time.Time { return time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC) }
	return s
}

func TestReadOne_Disconnected(t *testing.T) {
	s := newTestSession(&portBox{})
	res := s.ReadOne()
	assert.Equal(t, Disconnected, res.Status)
	assert.ErrorIs(t, res.Err, ErrNotConnected)
	assert.False(t, s.IsOpen())
}

func TestReadOne_Parsed(t *testing.T) {
	port := &scriptedPort{chunks: []string{telemetry + "\r\n"}}
	s := newTestSession(&portBox{ports: map[string]*scriptedPort{"/dev/ttyUSB0": port}})
	require.NoError(t, s.Connect("/dev/ttyUSB0"))

	res := s.ReadOne()
	require.Equal(t, Parsed, res.Status)
	assert.Equal(t, "2026-03-14 09:26:53", res.Timestamp)
	assert.Equal(t, telemetry, res.Line)
	assert.Equal(t, telemetry, s.LatestLine())

	stored, ok := s.Log().Get("2026-03-14 09:26:53")
	require.True(t, ok)
	assert.Equal(t, 36.5, stored.Payload["temp_c"])
	assert.Equal(t, physio.Vitals{EDA: 1.2, BVPIR: 3.4, TempC: 36.5}, stored.Vitals())
}

func TestReadOne_MalformedKeepsState(t *testing.T) {
	port := &scriptedPort{chunks: []string{telemetry + "\n", "not json\n"}}
	s := newTestSession(&portBox{ports: map[string]*scriptedPort{"COM3": port}})
	require.NoError(t, s.Connect("COM3"))

	require.Equal(t, Parsed, s.ReadOne().Status)

	res := s.ReadOne()
	assert.Equal(t, Malformed, res.Status)
	assert.Equal(t, "not json", res.Line)
	assert.ErrorIs(t, res.Err, physio.ErrMalformed)
	assert.Contains(t, res.Message(), "Invalid Data Format: not json")

	assert.Equal(t, telemetry, s.LatestLine())
	assert.Equal(t, 1, s.Log().Len())
}

func TestReadOne_NoData(t *testing.T) {
	port := &scriptedPort{chunks: []string{"   \n"}}
	s := newTestSession(&portBox{ports: map[string]*scriptedPort{"COM3": port}})
	require.NoError(t, s.Connect("COM3"))

	assert.Equal(t, NoData, s.ReadOne().Status, "whitespace line")
	assert.Equal(t, NoData, s.ReadOne().Status, "timeout")
	assert.Equal(t, 0, s.Log().Len())
	assert.Empty(t, s.LatestLine())
}

func TestReadOne_LineSplitAcrossReads(t *testing.T) {
	half := len(telemetry) / 2
	port := &scriptedPort{chunks: []string{telemetry[:half], telemetry[half:] + "\n"}}
	s := newTestSession(&portBox{ports: map[string]*scriptedPort{"COM3": port}})
	require.NoError(t, s.Connect("COM3"))

	assert.Equal(t, Parsed, s.ReadOne().Status)
}

func TestReadOne_ReadFailed(t *testing.T) {
	port := &scriptedPort{err: errors.New("device unplugged")}
	s := newTestSession(&portBox{ports: map[string]*scriptedPort{"COM3": port}})
	require.NoError(t, s.Connect("COM3"))

	res := s.ReadOne()
	assert.Equal(t, ReadFailed, res.Status)
	assert.EqualError(t, res.Err, "device unplugged")
	assert.True(t, s.IsOpen())
}

func TestConnect_ClosesBeforeOpen(t *testing.T) {
	box := &portBox{ports: map[string]*scriptedPort{
		"A": {},
		"B": {},
	}}
	s := newTestSession(box)

	require.NoError(t, s.Connect("A"))
	firstID := s.ID()
	assert.NotEqual(t, uuid.Nil, firstID)

	require.NoError(t, s.Connect("B"))
	assert.True(t, box.ports["A"].closed)
	assert.Equal(t, []bool{true, true}, box.closedAtOpen)
	assert.Equal(t, "B", s.PortName())
	assert.NotEqual(t, firstID, s.ID())
}

func TestConnect_FailureLeavesSessionUnbound(t *testing.T) {
	box := &portBox{ports: map[string]*scriptedPort{"A": {}}}
	s := newTestSession(box)
	require.NoError(t, s.Connect("A"))

	err := s.Connect("missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect missing")
	assert.False(t, s.IsOpen())
	assert.Empty(t, s.PortName())
	assert.True(t, box.ports["A"].closed)
}

func TestConnect_EmptyNameDisconnects(t *testing.T) {
	box := &portBox{ports: map[string]*scriptedPort{"A": {}}}
	s := newTestSession(box)
	require.NoError(t, s.Connect("A"))

	require.NoError(t, s.Connect(""))
	assert.False(t, s.IsOpen())
	assert.True(t, box.ports["A"].closed)
	assert.Equal(t, []string{"A"}, box.opened)
	assert.Equal(t, uuid.Nil, s.ID())
}

func TestLog_OrderAndReplace(t *testing.T) {
	l := NewLog()
	l.Record("2026-01-01 10:00:00", map[string]float64{"eda_raw": 1})
	l.Record("2026-01-01 10:00:01", map[string]float64{"eda_raw": 2})
	l.Record("2026-01-01 10:00:00", map[string]float64{"eda_raw": 3})

	entries := l.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "2026-01-01 10:00:00", entries[0].Timestamp)
	assert.Equal(t, 3.0, entries[0].Payload["eda_raw"])

	b, err := json.Marshal(l)
	require.NoError(t, err)
	assert.Equal(t, `{"2026-01-01 10:00:00":{"eda_raw":3},"2026-01-01 10:00:01":{"eda_raw":2}}`, string(b))
}

func TestSession_ConcurrentReadsAndSnapshots(t *testing.T) {
	chunks := make([]string, 50)
	for i := range chunks {
		chunks[i] = telemetry + "\n"
	}
	port := &scriptedPort{chunks: chunks}
	s := newTestSession(&portBox{ports: map[string]*scriptedPort{"COM3": port}})
	require.NoError(t, s.Connect("COM3"))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for range chunks {
			s.ReadOne()
		}
	}()
	go func() {
		defer wg.Done()
		for range chunks {
			line := s.LatestLine()
			assert.True(t, line == "" || strings.HasPrefix(line, "{"))
			_ = s.Log().Entries()
		}
	}()
	wg.Wait()

	assert.Equal(t, telemetry, s.LatestLine())
}

// noisePort never sends a newline: every Read returns 'x' bytes.
type noisePort struct {
	delay  time.Duration
	fill   bool
	mu     sync.Mutex
	closed bool
}

func (p *noisePort) Read(b []byte) (int, error) {
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	n := 1
	if p.fill {
		n = len(b)
	}
	for i := range n {
		b[i] = 'x'
	}
	return n, nil
}

func (p *noisePort) Write(b []byte) (int, error) { return len(b), nil }

func (p *noisePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func newNoiseSession(t *testing.T, port *noisePort) *Session {
	t.Helper()
	open := func(string, serialport.Options) (io.ReadWriteCloser, error) { return port, nil }
	s := New(open, Config{ReadTimeout: 100 * time.Millisecond}, zap.NewNop())
	require.NoError(t, s.Connect("COM9"))
	return s
}

func readOneWithin(t *testing.T, s *Session, limit time.Duration) Result {
	t.Helper()
	done := make(chan Result, 1)
	go func() { done <- s.ReadOne() }()
	select {
	case res := <-done:
		return res
	case <-time.After(limit):
		t.Fatalf("ReadOne still blocked after %v", limit)
		return Result{}
	}
}

func TestReadOne_StreamWithoutNewlineTimesOut(t *testing.T) {
	port := &noisePort{delay: time.Millisecond}
	s := newNoiseSession(t, port)

	res := readOneWithin(t, s, 2*time.Second)
	assert.Equal(t, ReadFailed, res.Status)
	assert.ErrorIs(t, res.Err, ErrNoLineEnd)
	assert.Equal(t, 0, s.Log().Len())

	// the port lock is free again
	s.Disconnect()
	assert.False(t, s.IsOpen())
	assert.True(t, port.closed)
}

func TestReadOne_LineTooLong(t *testing.T) {
	s := newNoiseSession(t, &noisePort{fill: true})

	res := readOneWithin(t, s, 2*time.Second)
	assert.Equal(t, ReadFailed, res.Status)
	assert.ErrorIs(t, res.Err, ErrLineTooLong)
	assert.True(t, s.IsOpen())
}
