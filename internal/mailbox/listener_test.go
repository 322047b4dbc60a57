package mailbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sender = "5550100@vtext.com"

// fakeMailbox is an in-memory Session. Messages are keyed by UID.
type fakeMailbox struct {
	mu       sync.Mutex
	messages map[uint32][]byte
	from     map[uint32]string
	seen     map[uint32]bool
	order    []uint32

	fetchErr  map[uint32]error
	searchErr error
	markErr   error
	closed    int
}

func newFakeMailbox() *fakeMailbox {
	return &fakeMailbox{
		messages: map[uint32][]byte{},
		from:     map[uint32]string{},
		seen:     map[uint32]bool{},
		fetchErr: map[uint32]error{},
	}
}

func (f *fakeMailbox) add(uid uint32, from, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[uid] = []byte(fmt.Sprintf("From: %s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s", from, body))
	f.from[uid] = from
	f.order = append(f.order, uid)
}

func (f *fakeMailbox) SearchUnseen(_ context.Context, from string) ([]uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	var out []uint32
	for _, uid := range f.order {
		if !f.seen[uid] && f.from[uid] == from {
			out = append(out, uid)
		}
	}
	return out, nil
}

func (f *fakeMailbox) FetchRaw(_ context.Context, uid uint32) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fetchErr[uid]; err != nil {
		return nil, err
	}
	return f.messages[uid], nil
}

func (f *fakeMailbox) MarkSeen(_ context.Context, uid uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return f.markErr
	}
	f.seen[uid] = true
	return nil
}

func (f *fakeMailbox) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

type fakeDialer struct {
	mu    sync.Mutex
	box   *fakeMailbox
	errs  []error
	dials int
}

func (d *fakeDialer) Dial(context.Context) (Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if len(d.errs) > 0 {
		err := d.errs[0]
		d.errs = d.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return d.box, nil
}

func newTestListener(d Dialer) *Listener {
	return NewListener(d, Config{
		Sender:        sender,
		PollInterval:  time.Millisecond,
		CutoffPhrases: []string{"YOUR ACCOUNT"},
	}, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func TestListen_ReturnsFirstQualifyingMessage(t *testing.T) {
	box := newFakeMailbox()
	box.add(1, "someone@else.com", "spam")
	box.add(2, sender, "new buy milk\r\nYOUR ACCOUNT footer")
	box.add(3, sender, "all")
	l := newTestListener(&fakeDialer{box: box})

	body, err := l.Listen(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "new buy milk", body)
	assert.True(t, box.seen[2])
	assert.False(t, box.seen[3], "backlog is not drained")
	assert.False(t, box.seen[1])
	assert.Equal(t, StateIdle, l.State())

	body, err = l.Listen(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "all", body)
}

func TestListen_SkipsFailedFetch(t *testing.T) {
	box := newFakeMailbox()
	box.add(1, sender, "new first")
	box.add(2, sender, "new second")
	box.fetchErr[1] = errors.New("connection reset")
	l := newTestListener(&fakeDialer{box: box})

	body, err := l.Listen(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "new second", body)
	assert.False(t, box.seen[1], "failed candidate stays unread")
}

func TestListen_WaitsForMessage(t *testing.T) {
	box := newFakeMailbox()
	l := newTestListener(&fakeDialer{box: box})

	go func() {
		time.Sleep(20 * time.Millisecond)
		box.add(7, sender, "help")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	body, err := l.Listen(ctx)
	require.NoError(t, err)
	assert.Equal(t, "help", body)
}

func TestListen_Cancelled(t *testing.T) {
	l := newTestListener(&fakeDialer{box: newFakeMailbox()})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := l.Listen(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestListen_AuthFailureIsFatal(t *testing.T) {
	d := &fakeDialer{errs: []error{&AuthError{Account: "bot@example.com", Message: "bad password"}}}
	l := newTestListener(d)

	_, err := l.Listen(context.Background())
	require.Error(t, err)
	assert.True(t, IsAuthError(err))
	assert.Equal(t, 1, d.dials)
	assert.Equal(t, StateDisconnected, l.State())
}

func TestListen_RetriesTransientConnectFailure(t *testing.T) {
	box := newFakeMailbox()
	box.add(1, sender, "all")
	d := &fakeDialer{box: box, errs: []error{errors.New("dial tcp: refused"), nil}}
	l := newTestListener(d)

	body, err := l.Listen(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "all", body)
	assert.Equal(t, 2, d.dials)
}

func TestListen_ReconnectsAfterSearchFailure(t *testing.T) {
	box := newFakeMailbox()
	box.add(1, sender, "all")
	box.searchErr = errors.New("connection closed")
	d := &fakeDialer{box: box}
	l := newTestListener(d)

	go func() {
		time.Sleep(10 * time.Millisecond)
		box.mu.Lock()
		box.searchErr = nil
		box.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	body, err := l.Listen(ctx)
	require.NoError(t, err)
	assert.Equal(t, "all", body)

	d.mu.Lock()
	defer d.mu.Unlock()
	assert.GreaterOrEqual(t, d.dials, 2)
}

func TestListen_MarkSeenFailureDoesNotReturnBody(t *testing.T) {
	box := newFakeMailbox()
	box.add(1, sender, "new once")
	box.markErr = errors.New("store failed")
	l := newTestListener(&fakeDialer{box: box})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := l.Listen(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, box.seen[1])
}

func TestListen_DiscardsUnreadableMessage(t *testing.T) {
	box := newFakeMailbox()
	box.add(1, sender, "ignored")
	box.messages[1] = []byte("From: " + sender + "\r\nContent-Type: multipart/mixed; boundary=b\r\n\r\n" +
		"--b\r\nContent-Type: image/png\r\n\r\nPNG\r\n--b--\r\n")
	box.add(2, sender, "all")
	l := newTestListener(&fakeDialer{box: box})

	body, err := l.Listen(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "all", body)
	assert.True(t, box.seen[1])
}

func TestClose(t *testing.T) {
	box := newFakeMailbox()
	box.add(1, sender, "all")
	l := newTestListener(&fakeDialer{box: box})

	_, err := l.Listen(context.Background())
	require.NoError(t, err)

	require.NoError(t, l.Close())
	assert.Equal(t, 1, box.closed)
	assert.Equal(t, StateDisconnected, l.State())
	require.NoError(t, l.Close())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "SEARCHING", StateSearching.String())
	assert.Equal(t, "State(99)", State(99).String())
}
