package dispatch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/mathbot/internal/command"
	"github.com/mattjoyce/mathbot/internal/history"
	"github.com/mattjoyce/mathbot/internal/log"
	"github.com/mattjoyce/mathbot/internal/storage"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR", "json") // Suppress logs in tests
	os.Exit(m.Run())
}

type invocationObservation struct {
	command, result string
}

type stubRecorder struct {
	mu          sync.Mutex
	invocations []invocationObservation
}

func (r *stubRecorder) ObserveRender(string, time.Duration) {}

func (r *stubRecorder) ObserveInvocation(cmd, result string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invocations = append(r.invocations, invocationObservation{cmd, result})
}

type failingHistory struct{}

func (failingHistory) Record(context.Context, history.Entry) error {
	return errors.New("disk full")
}

func echoDescriptor() command.Descriptor {
	return command.Descriptor{
		Name:        "echo",
		Description: "Echo text back",
		Params:      []command.Param{{Name: "text", Description: "text to echo", Required: true}},
		Handler: command.HandlerFunc(func(_ context.Context, inv command.Invocation) (command.Reply, error) {
			switch inv.Arg("text") {
			case "fail":
				return command.Reply{}, errors.New("backend exploded: secret detail")
			case "panic":
				panic("boom")
			case "quiet":
				return command.Reply{Text: "..."}, nil
			}
			return command.TextReply(inv.Arg("text"), "echoed"), nil
		}),
	}
}

func setupDispatcher(t *testing.T, hist history.Recorder) (*Dispatcher, *stubRecorder) {
	t.Helper()
	reg, err := command.NewRegistry(echoDescriptor())
	require.NoError(t, err)
	rec := &stubRecorder{}
	return New(reg, hist, rec), rec
}

func TestDispatchSuccess(t *testing.T) {
	disp, rec := setupDispatcher(t, nil)

	reply, err := disp.Dispatch(context.Background(), command.Invocation{
		Command: "echo",
		Args:    map[string]string{"text": "hello"},
		Source:  "cli",
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", reply.Text)
	assert.Equal(t, []invocationObservation{{"echo", "echoed"}}, rec.invocations)
}

func TestDispatchDefaultsResultToOK(t *testing.T) {
	disp, rec := setupDispatcher(t, nil)

	_, err := disp.Dispatch(context.Background(), command.Invocation{
		Command: "echo",
		Args:    map[string]string{"text": "quiet"},
	})
	require.NoError(t, err)
	assert.Equal(t, []invocationObservation{{"echo", "ok"}}, rec.invocations)
}

func TestDispatchUnknownCommand(t *testing.T) {
	disp, rec := setupDispatcher(t, nil)

	_, err := disp.Dispatch(context.Background(), command.Invocation{Command: "nope"})
	assert.ErrorIs(t, err, ErrUnknownCommand)
	assert.Empty(t, rec.invocations)
}

func TestDispatchMissingParams(t *testing.T) {
	disp, rec := setupDispatcher(t, nil)

	_, err := disp.Dispatch(context.Background(), command.Invocation{
		Command: "echo",
		Args:    map[string]string{"text": ""},
	})
	assert.ErrorIs(t, err, ErrMissingParams)
	assert.Contains(t, err.Error(), "text")
	assert.Empty(t, rec.invocations)
}

func TestDispatchWhitespaceArgReachesHandler(t *testing.T) {
	disp, _ := setupDispatcher(t, nil)

	reply, err := disp.Dispatch(context.Background(), command.Invocation{
		Command: "echo",
		Args:    map[string]string{"text": "   "},
	})
	require.NoError(t, err)
	assert.Equal(t, "   ", reply.Text)
}

func TestDispatchHandlerErrorIsSanitized(t *testing.T) {
	for _, text := range []string{"fail", "panic"} {
		t.Run(text, func(t *testing.T) {
			disp, rec := setupDispatcher(t, nil)

			reply, err := disp.Dispatch(context.Background(), command.Invocation{
				Command: "echo",
				Args:    map[string]string{"text": text},
			})
			require.NoError(t, err)
			assert.Equal(t, command.GenericErrorMessage, reply.Text)
			assert.NotContains(t, reply.Text, "secret")
			assert.Nil(t, reply.Attachment)
			assert.Equal(t, []invocationObservation{{"echo", "error"}}, rec.invocations)
		})
	}
}

func TestDispatchRecordsHistory(t *testing.T) {
	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	store := history.New(db)
	disp, _ := setupDispatcher(t, store)

	_, err = disp.Dispatch(context.Background(), command.Invocation{
		ID:      "inv-ok",
		Command: "ECHO",
		Args:    map[string]string{"text": "hi"},
		Source:  "discord",
		User:    "u1",
		Channel: "c1",
	})
	require.NoError(t, err)
	_, err = disp.Dispatch(context.Background(), command.Invocation{
		ID:      "inv-fail",
		Command: "echo",
		Args:    map[string]string{"text": "fail"},
		Source:  "api",
	})
	require.NoError(t, err)

	ok, err := store.Get(context.Background(), "inv-ok")
	require.NoError(t, err)
	assert.Equal(t, "echo", ok.Command)
	assert.Equal(t, "echoed", ok.Outcome)
	assert.Equal(t, "u1", ok.User)
	assert.Equal(t, "c1", ok.Channel)

	failed, err := store.Get(context.Background(), "inv-fail")
	require.NoError(t, err)
	assert.Equal(t, "error", failed.Outcome)
	assert.Contains(t, failed.Error, "backend exploded")
}

func TestDispatchAssignsInvocationID(t *testing.T) {
	var seen string
	reg, err := command.NewRegistry(command.Descriptor{
		Name:        "whoami",
		Description: "Report the invocation id",
		Handler: command.HandlerFunc(func(_ context.Context, inv command.Invocation) (command.Reply, error) {
			seen = inv.ID
			return command.Reply{}, nil
		}),
	})
	require.NoError(t, err)

	_, err = New(reg, nil, nil).Dispatch(context.Background(), command.Invocation{Command: "whoami"})
	require.NoError(t, err)
	assert.Len(t, seen, 36)
}

func TestDispatchHistoryFailureKeepsReply(t *testing.T) {
	disp, _ := setupDispatcher(t, failingHistory{})

	reply, err := disp.Dispatch(context.Background(), command.Invocation{
		Command: "echo",
		Args:    map[string]string{"text": "still here"},
	})
	require.NoError(t, err)
	assert.Equal(t, "still here", reply.Text)
}

func TestDispatchConcurrent(t *testing.T) {
	disp, rec := setupDispatcher(t, nil)

	const n = 16
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := disp.Dispatch(context.Background(), command.Invocation{
				Command: "echo",
				Args:    map[string]string{"text": "x"},
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Len(t, rec.invocations, n)
}
