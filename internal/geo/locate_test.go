package geo

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeProvider struct {
	watch   func(ctx context.Context) (<-chan Fix, error)
	current func(ctx context.Context) (Location, error)
}

func (f *fakeProvider) Watch(ctx context.Context) (<-chan Fix, error) {
	if f.watch == nil {
		return nil, errors.New("watch unsupported")
	}
	return f.watch(ctx)
}

func (f *fakeProvider) Current(ctx context.Context) (Location, error) {
	if f.current == nil {
		<-ctx.Done()
		return Location{}, ctx.Err()
	}
	return f.current(ctx)
}

func watchDelivering(fx Fix) func(ctx context.Context) (<-chan Fix, error) {
	return func(ctx context.Context) (<-chan Fix, error) {
		ch := make(chan Fix, 1)
		ch <- fx
		return ch, nil
	}
}

func watchSilent() func(ctx context.Context) (<-chan Fix, error) {
	return func(ctx context.Context) (<-chan Fix, error) {
		return make(chan Fix), nil
	}
}

func TestAcquireWatchWins(t *testing.T) {
	want := Location{Latitude: 10, Longitude: 106, Accuracy: 8}
	p := &fakeProvider{
		watch: watchDelivering(Fix{Location: want}),
		current: func(ctx context.Context) (Location, error) {
			t.Error("single-shot should not be consulted when the watch delivers first")
			return Location{}, nil
		},
	}
	got, err := Acquire(context.Background(), p)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if got != want {
		t.Errorf("Acquire = %+v, want %+v", got, want)
	}
}

func TestAcquireFallbackWins(t *testing.T) {
	want := Location{Latitude: 1, Longitude: 2, Accuracy: 20}
	p := &fakeProvider{
		watch: watchSilent(),
		current: func(ctx context.Context) (Location, error) {
			return want, nil
		},
	}
	got, err := Acquire(context.Background(), p)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if got != want {
		t.Errorf("Acquire = %+v, want %+v", got, want)
	}
}

func TestAcquireWatchUnavailable(t *testing.T) {
	want := Location{Latitude: 3, Longitude: 4, Accuracy: 30}
	p := &fakeProvider{
		current: func(ctx context.Context) (Location, error) {
			return want, nil
		},
	}
	got, err := Acquire(context.Background(), p)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if got != want {
		t.Errorf("Acquire = %+v, want %+v", got, want)
	}
}

func TestAcquireClassifiedErrors(t *testing.T) {
	for _, sentinel := range []error{ErrPermissionDenied, ErrPositionUnavailable} {
		p := &fakeProvider{watch: watchDelivering(Fix{Err: sentinel})}
		_, err := Acquire(context.Background(), p)
		if !errors.Is(err, sentinel) {
			t.Errorf("Acquire error = %v, want %v", err, sentinel)
		}
	}
}

func TestAcquireTimeout(t *testing.T) {
	p := &fakeProvider{watch: watchSilent()}
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err := Acquire(ctx, p)
	if !errors.Is(err, ErrLocationTimeout) {
		t.Errorf("Acquire error = %v, want ErrLocationTimeout", err)
	}
}

func TestAcquireCancelsWatch(t *testing.T) {
	watchCancelled := make(chan struct{})
	p := &fakeProvider{
		watch: func(ctx context.Context) (<-chan Fix, error) {
			go func() {
				<-ctx.Done()
				close(watchCancelled)
			}()
			return make(chan Fix), nil
		},
		current: func(ctx context.Context) (Location, error) {
			return Location{Latitude: 5}, nil
		},
	}
	if _, err := Acquire(context.Background(), p); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	select {
	case <-watchCancelled:
	case <-time.After(time.Second):
		t.Error("losing watch was not cancelled after the fallback fix won")
	}
}
