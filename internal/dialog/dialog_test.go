package dialog

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/antoniostano/coachroom/internal/catalog"
	"github.com/antoniostano/coachroom/internal/rooms"
)

type fakeExperts map[string]bool

func (f fakeExperts) Expert(name string) (catalog.Persona, bool) {
	if f[name] {
		return catalog.Persona{Name: name}, true
	}
	return catalog.Persona{}, false
}

// gatedCreator blocks each Create until release is closed.
type gatedCreator struct {
	mu      sync.Mutex
	calls   []rooms.CreateRequest
	entered chan struct{}
	release chan struct{}
	err     error
}

func newGatedCreator() *gatedCreator {
	return &gatedCreator{entered: make(chan struct{}, 8), release: make(chan struct{})}
}

func (c *gatedCreator) Create(_ context.Context, req rooms.CreateRequest) (rooms.Room, error) {
	c.mu.Lock()
	c.calls = append(c.calls, req)
	c.mu.Unlock()
	c.entered <- struct{}{}
	<-c.release
	if c.err != nil {
		return rooms.Room{}, c.err
	}
	return rooms.Room{ID: "room-1", Topic: req.Topic, ExpertName: req.ExpertName}, nil
}

func (c *gatedCreator) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func TestSubmitCreatesOnceAndDisablesWhileInFlight(t *testing.T) {
	creator := newGatedCreator()
	d := New(creator, fakeExperts{"Joey": true}, "Mock Interview", "u1")
	require.NoError(t, d.SetTopic("behavioral questions"))
	require.NoError(t, d.SelectExpert("Joey"))
	require.True(t, d.CanSubmit())

	type result struct {
		id  string
		err error
	}
	done := make(chan result, 1)
	go func() {
		id, err := d.Submit(context.Background())
		done <- result{id, err}
	}()
	<-creator.entered

	require.True(t, d.Submitting())
	require.False(t, d.CanSubmit())

	_, err := d.Submit(context.Background())
	require.ErrorIs(t, err, ErrSubmitInFlight)
	require.ErrorIs(t, d.SetTopic("other"), ErrSubmitInFlight)

	close(creator.release)
	res := <-done
	require.NoError(t, res.err)
	require.Equal(t, "room-1", res.id)
	require.Equal(t, 1, creator.callCount())
	require.False(t, d.Submitting())
	require.Equal(t, "room-1", d.RoomID())

	creator.mu.Lock()
	req := creator.calls[0]
	creator.mu.Unlock()
	require.Equal(t, "Mock Interview", req.CoachingOption)
	require.Equal(t, "u1", req.CreatedBy)
}

func TestSubmitFailureKeepsFieldsAndReenables(t *testing.T) {
	creator := newGatedCreator()
	creator.err = &rooms.RemoteError{Op: "create", Err: errors.New("connection reset")}
	close(creator.release)

	d := New(creator, fakeExperts{"Joey": true}, "Ques Ans Prep", "u1")
	require.NoError(t, d.SetTopic("kubernetes"))
	require.NoError(t, d.SelectExpert("Joey"))

	_, err := d.Submit(context.Background())
	require.ErrorIs(t, err, rooms.ErrRemoteService)

	require.Equal(t, "kubernetes", d.Topic())
	require.Equal(t, "Joey", d.ExpertName())
	require.False(t, d.Submitting())
	require.True(t, d.CanSubmit())
	require.ErrorIs(t, d.LastError(), rooms.ErrRemoteService)

	creator.err = nil
	id, err := d.Submit(context.Background())
	require.NoError(t, err)
	require.Equal(t, "room-1", id)
	require.NoError(t, d.LastError())
	require.Equal(t, 2, creator.callCount())
}

func TestSubmitValidatesBeforeCallingStore(t *testing.T) {
	creator := newGatedCreator()
	close(creator.release)
	d := New(creator, fakeExperts{"Joey": true}, "Meditation", "u1")

	_, err := d.Submit(context.Background())
	require.ErrorIs(t, err, ErrTopicRequired)

	require.NoError(t, d.SetTopic("breathing"))
	require.NoError(t, d.SelectExpert("Nobody"))
	_, err = d.Submit(context.Background())
	require.ErrorIs(t, err, ErrUnknownExpert)

	require.Zero(t, creator.callCount())
}

func TestSubmitWithKeepsFirstCallersValues(t *testing.T) {
	creator := newGatedCreator()
	d := New(creator, fakeExperts{"Joey": true, "Sallie": true}, "Mock Interview", "u1")

	done := make(chan error, 1)
	go func() {
		_, err := d.SubmitWith(context.Background(), "first topic", "Joey")
		done <- err
	}()
	<-creator.entered

	_, err := d.SubmitWith(context.Background(), "second topic", "Sallie")
	require.ErrorIs(t, err, ErrSubmitInFlight)
	require.Equal(t, "first topic", d.Topic())
	require.Equal(t, "Joey", d.ExpertName())

	close(creator.release)
	require.NoError(t, <-done)
	require.Equal(t, 1, creator.callCount())
	require.Equal(t, "first topic", creator.calls[0].Topic)
	require.Equal(t, "Joey", creator.calls[0].ExpertName)
}

func TestRegistrySharesDialogPerUserAndOption(t *testing.T) {
	r := NewRegistry(newGatedCreator(), fakeExperts{})
	a := r.Open("u1", "Mock Interview")
	require.Same(t, a, r.Open("u1", "Mock Interview"))
	require.NotSame(t, a, r.Open("u2", "Mock Interview"))
	require.NotSame(t, a, r.Open("u1", "Meditation"))
	require.Equal(t, 3, r.Len())

	r.Close("u1", "Mock Interview")
	require.Equal(t, 2, r.Len())
	require.NotSame(t, a, r.Open("u1", "Mock Interview"))
}
