package reply

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/smstask/internal/model"
	"github.com/nhle/smstask/internal/store"
)

func TestCreated(t *testing.T) {
	got := Created(model.Summary{ID: 1, Description: "Pet the goose"}, nil)
	assert.Equal(t, "[NEW TASK]\n - task: \"Pet the goose\"\n - ID: 1", got)

	long := Created(model.Summary{ID: 2, Description: strings.Repeat("ab", 40)}, nil)
	assert.Contains(t, long, "\""+strings.Repeat("ab", 15)+"\"")
}

func TestCreated_ErrorsAreReadable(t *testing.T) {
	internal := fmt.Errorf("%w (max = 10)", store.ErrCapacityExceeded)

	full := Created(model.Summary{}, internal)
	assert.Contains(t, full, "All 10 slots are taken")
	assert.NotContains(t, full, internal.Error())

	invalid := Created(model.Summary{}, fmt.Errorf("%w: description is 101 characters", store.ErrValidation))
	assert.Contains(t, invalid, "at most 100 characters")
	assert.NotContains(t, invalid, "validation failed")

	down := Created(model.Summary{}, errors.New("dial tcp 127.0.0.1:8007: connection refused"))
	assert.Equal(t, Failure(), down)
}

func TestAll(t *testing.T) {
	assert.Equal(t, "[ALL]\nYou currently have no tasks being tracked.", All(nil))

	got := All([]model.Task{
		{ID: 1, Description: "Pet the goose"},
		{ID: 4, Description: "Water ferns"},
	})
	assert.Equal(t, "[ALL]\n - id: 1\n - task: Pet the goose\n - id: 4\n - task: Water ferns", got)
}

func TestDeleted(t *testing.T) {
	assert.Equal(t, "[DEL TASK]\n - task: \"Pet the goose\"\n - ID: 1",
		Deleted(model.Summary{ID: 1, Description: "Pet the goose"}, true))

	missing := Deleted(model.Summary{}, false)
	assert.Contains(t, missing, "Nothing deleted")
}

func TestHelpAndMalformed(t *testing.T) {
	for _, body := range []string{Help(), Malformed()} {
		for _, verb := range []string{"'new'", "'all'", "'del'", "'help'"} {
			assert.Contains(t, body, verb)
		}
	}
	assert.True(t, strings.HasPrefix(Help(), "[HELP]"))
	assert.True(t, strings.HasPrefix(Malformed(), "[UNRECOGNIZED COMMAND]"))
}

func TestReminder(t *testing.T) {
	assert.Equal(t, "Daily reminder of current tasks:\n    3: Call mom",
		Reminder([]model.Task{{ID: 3, Description: "Call mom"}}))
	assert.Contains(t, Reminder(nil), "(none)")
}

type recordingRelay struct {
	from string
	to   []string
	msg  []byte
	err  error
}

func (r *recordingRelay) Deliver(_ context.Context, from string, to []string, msg []byte) error {
	r.from, r.to, r.msg = from, to, msg
	return r.err
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestChannel_Send(t *testing.T) {
	relay := &recordingRelay{}
	ch := NewChannel(relay, "bot@example.com", "5550100@vzwpix.com", WithLogger(discard()))
	ch.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }

	ch.Send(context.Background(), "[ALL]\n - id: 1\n - task: café")

	assert.Equal(t, "bot@example.com", relay.from)
	assert.Equal(t, []string{"5550100@vzwpix.com"}, relay.to)

	mr, err := mail.CreateReader(bytes.NewReader(relay.msg))
	require.NoError(t, err)

	from, err := mr.Header.AddressList("From")
	require.NoError(t, err)
	assert.Equal(t, "bot@example.com", from[0].Address)

	to, err := mr.Header.AddressList("To")
	require.NoError(t, err)
	assert.Equal(t, "5550100@vzwpix.com", to[0].Address)

	id, err := mr.Header.MessageID()
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(id, "@smstask"))

	date, err := mr.Header.Date()
	require.NoError(t, err)
	assert.True(t, date.Equal(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)))

	part, err := mr.NextPart()
	require.NoError(t, err)
	body, err := io.ReadAll(part.Body)
	require.NoError(t, err)
	// Quoted-printable turns line breaks into CRLF on the wire.
	assert.Equal(t, "[ALL]\n - id: 1\n - task: café", strings.ReplaceAll(string(body), "\r\n", "\n"))
}

func TestChannel_SendSwallowsRelayErrors(t *testing.T) {
	relay := &recordingRelay{err: errors.New("535 authentication failed")}
	ch := NewChannel(relay, "bot@example.com", "5550100@vzwpix.com", WithLogger(discard()))

	assert.NotPanics(t, func() {
		ch.Send(context.Background(), Help())
	})
	assert.NotEmpty(t, relay.msg)
}

func TestSMTPRelay_DialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	host, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	require.NoError(t, ln.Close())

	relay := SMTPRelay{Host: host, Port: port, Username: "bot", Password: "x"}
	err = relay.Deliver(context.Background(), "bot@example.com", []string{"5550100@vzwpix.com"}, []byte("hi"))
	assert.Error(t, err)
}
