package serialport

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakePort struct {
	mu     sync.Mutex
	closed bool
	block  chan struct{}
}

func (f *fakePort) Read(p []byte) (int, error) { return 0, io.EOF }

func (f *fakePort) Write(p []byte) (int, error) {
	if f.block != nil {
		<-f.block
		return 0, os.ErrClosed
	}
	return len(p), nil
}

func (f *fakePort) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed && f.block != nil {
		close(f.block)
	}
	f.closed = true
	return nil
}

func (f *fakePort) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func TestOpenTimeout_Success(t *testing.T) {
	want := &fakePort{}
	open := func(name string, opts Options) (io.ReadWriteCloser, error) {
		assert.Equal(t, "/dev/ttyUSB0", name)
		assert.Equal(t, uint(DefaultBaudRate), opts.BaudRate)
		return want, nil
	}

	got, err := OpenTimeout(open, "/dev/ttyUSB0", Options{BaudRate: DefaultBaudRate}, time.Second)
	require.NoError(t, err)
	assert.Same(t, want, got)
}

func TestOpenTimeout_Error(t *testing.T) {
	busy := errors.New("device busy")
	open := func(string, Options) (io.ReadWriteCloser, error) { return nil, busy }

	_, err := OpenTimeout(open, "COM3", Options{}, time.Second)
	assert.ErrorIs(t, err, busy)
}

func TestOpenTimeout_LatePortIsClosed(t *testing.T) {
	release := make(chan struct{})
	late := &fakePort{}
	open := func(string, Options) (io.ReadWriteCloser, error) {
		<-release
		return late, nil
	}

	_, err := OpenTimeout(open, "/dev/ttyACM0", Options{}, 20*time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)

	close(release)
	require.Eventually(t, late.isClosed, time.Second, 5*time.Millisecond)
}

func TestWriteTimeout(t *testing.T) {
	require.NoError(t, WriteTimeout(&fakePort{}, []byte("PING\n"), time.Second))

	stuck := &fakePort{block: make(chan struct{})}
	err := WriteTimeout(stuck, []byte("PING\n"), 20*time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)
	assert.True(t, stuck.isClosed())
}

func TestInterCharTimeoutMS(t *testing.T) {
	assert.Equal(t, uint(100), interCharTimeoutMS(0))
	assert.Equal(t, uint(1000), interCharTimeoutMS(time.Second))
	assert.Equal(t, uint(2000), interCharTimeoutMS(1950*time.Millisecond))
	assert.Equal(t, uint(25500), interCharTimeoutMS(time.Minute))
}

func TestList(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"ttyUSB1", "ttyUSB0", "ttyACM0", "other"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o600))
	}

	ports, err := List([]string{
		filepath.Join(dir, "ttyUSB*"),
		filepath.Join(dir, "ttyACM*"),
		filepath.Join(dir, "tty*"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "ttyACM0"),
		filepath.Join(dir, "ttyUSB0"),
		filepath.Join(dir, "ttyUSB1"),
	}, ports)

	_, err = List([]string{"[bad"})
	assert.Error(t, err)
}

func TestMockDevice_Handshake(t *testing.T) {
	open := WithMock(func(string, Options) (io.ReadWriteCloser, error) {
		return nil, errors.New("no hardware")
	})

	dev, err := open(MockPortName, Options{})
	require.NoError(t, err)
	defer dev.Close()

	_, err = dev.Write([]byte("PI"))
	require.NoError(t, err)
	_, err = dev.Write([]byte("NG\n"))
	require.NoError(t, err)

	r := bufio.NewReader(dev)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "PONG\n", line)

	line, err = r.ReadString('\n')
	require.NoError(t, err)
	var sample map[string]float64
	require.NoError(t, json.Unmarshal([]byte(line), &sample))
	assert.Contains(t, sample, "eda_raw")
	assert.Contains(t, sample, "temp_c")

	_, err = open("/dev/ttyUSB0", Options{})
	assert.EqualError(t, err, "no hardware")
}

func TestMockDevice_Closed(t *testing.T) {
	dev := NewMockDevice()
	require.NoError(t, dev.Close())
	_, err := dev.Read(make([]byte, 8))
	assert.ErrorIs(t, err, os.ErrClosed)
}

type blockingReader struct {
	fakePort
	unblock chan struct{}
}

func (b *blockingReader) Read(p []byte) (int, error) {
	<-b.unblock
	return 0, os.ErrClosed
}

func (b *blockingReader) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		close(b.unblock)
	}
	b.closed = true
	return nil
}

func TestReadLineTimeout(t *testing.T) {
	dev := NewMockDevice()
	defer dev.Close()
	_, err := dev.Write([]byte("PING\n"))
	require.NoError(t, err)

	line, err := ReadLineTimeout(dev, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "PONG\n", line)

	// nothing arrives: the driver returns EOF after its own timeout
	line, err = ReadLineTimeout(&fakePort{}, time.Second)
	require.NoError(t, err)
	assert.Empty(t, line)

	stuck := &blockingReader{unblock: make(chan struct{})}
	_, err = ReadLineTimeout(stuck, 20*time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)
	assert.True(t, stuck.closed)
}
