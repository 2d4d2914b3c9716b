package demo

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/large-farva/vibrator-engine/internal/manager"
	"github.com/large-farva/vibrator-engine/internal/vibrator"
)

type fakeSubmitter struct {
	mu   sync.Mutex
	reqs []manager.Request
	err  error
}

func (f *fakeSubmitter) Submit(_ context.Context, req manager.Request) (*vibrator.Vibration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return vibrator.NewVibration(req.Caller, req.Effect), nil
}

func (f *fakeSubmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}

func TestPatternsAreValid(t *testing.T) {
	for _, p := range Patterns {
		t.Run(p.Name, func(t *testing.T) {
			e, err := p.Build()
			require.NoError(t, err)
			assert.NoError(t, e.Validate())
		})
	}
}

func TestStepCyclesPatterns(t *testing.T) {
	s := &fakeSubmitter{}
	r := New(s, nil)

	for range len(Patterns) + 1 {
		require.NotNil(t, r.Step(context.Background()))
	}
	require.Len(t, s.reqs, len(Patterns)+1)
	for i, req := range s.reqs {
		p := Patterns[i%len(Patterns)]
		assert.Equal(t, p.Name, req.Caller.Reason)
		assert.Equal(t, p.Usage, req.Caller.Usage)
		assert.Equal(t, UID, req.Caller.UID)
	}
}

func TestStepRejected(t *testing.T) {
	r := New(&fakeSubmitter{err: errors.New("busy")}, nil)
	assert.Nil(t, r.Step(context.Background()))
}

func TestRunSubmitsUntilCancelled(t *testing.T) {
	s := &fakeSubmitter{}
	r := New(s, nil)
	r.Interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(ctx)
	}()
	require.Eventually(t, func() bool { return s.count() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("runner did not stop")
	}
}
