package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebouncer_SingleEvent_PassesThrough(t *testing.T) {
	// Given: a debouncer with short window
	d := NewDebouncer(50 * time.Millisecond)
	defer d.Stop()

	// When: a single event is added
	d.Add(FileEvent{Path: "/w/tile_01.tif", Operation: OpCreate, Timestamp: time.Now()})

	// Then: the event passes through after the debounce window
	select {
	case events := <-d.Output():
		require.Len(t, events, 1)
		assert.Equal(t, "/w/tile_01.tif", events[0].Path)
		assert.Equal(t, OpCreate, events[0].Operation)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timeout waiting for debounced event")
	}
}

func TestDebouncer_RepeatedWrites_Coalesce(t *testing.T) {
	// Given: a debouncer with short window
	d := NewDebouncer(100 * time.Millisecond)
	defer d.Stop()

	// When: a tile is created and then written in several chunks
	d.Add(FileEvent{Path: "/w/tile.tif", Operation: OpCreate, Timestamp: time.Now()})
	for i := 0; i < 5; i++ {
		d.Add(FileEvent{Path: "/w/tile.tif", Operation: OpWrite, Timestamp: time.Now()})
		time.Sleep(10 * time.Millisecond)
	}

	// Then: one CREATE comes out
	select {
	case events := <-d.Output():
		require.Len(t, events, 1)
		assert.Equal(t, OpCreate, events[0].Operation)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for debounced events")
	}
}

func TestDebouncer_CreateThenRemove_NoEvent(t *testing.T) {
	// Given: a debouncer with short window
	d := NewDebouncer(50 * time.Millisecond)
	defer d.Stop()

	// When: a file is created and removed inside the window
	d.Add(FileEvent{Path: "/w/scratch.tif", Operation: OpCreate, Timestamp: time.Now()})
	d.Add(FileEvent{Path: "/w/scratch.tif", Operation: OpRemove, Timestamp: time.Now()})

	// Then: nothing is emitted
	select {
	case events := <-d.Output():
		assert.Empty(t, events)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestDebouncer_WriteThenRemove_RemoveOnly(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)
	defer d.Stop()

	d.Add(FileEvent{Path: "/w/old.tif", Operation: OpWrite, Timestamp: time.Now()})
	d.Add(FileEvent{Path: "/w/old.tif", Operation: OpRemove, Timestamp: time.Now()})

	select {
	case events := <-d.Output():
		require.Len(t, events, 1)
		assert.Equal(t, OpRemove, events[0].Operation)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timeout waiting for debounced event")
	}
}

func TestDebouncer_RemoveThenCreate_WriteEvent(t *testing.T) {
	// Given: a debouncer with short window
	d := NewDebouncer(50 * time.Millisecond)
	defer d.Stop()

	// When: a tile is replaced
	d.Add(FileEvent{Path: "/w/replaced.tif", Operation: OpRemove, Timestamp: time.Now()})
	d.Add(FileEvent{Path: "/w/replaced.tif", Operation: OpCreate, Timestamp: time.Now()})

	// Then: a WRITE is emitted
	select {
	case events := <-d.Output():
		require.Len(t, events, 1)
		assert.Equal(t, OpWrite, events[0].Operation)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timeout waiting for debounced event")
	}
}

func TestDebouncer_DifferentFiles_OrderedByTime(t *testing.T) {
	// Given: a debouncer with short window
	d := NewDebouncer(50 * time.Millisecond)
	defer d.Stop()
	base := time.Now()

	// When: events for different files arrive out of map order
	d.Add(FileEvent{Path: "/w/c.tif", Operation: OpCreate, Timestamp: base.Add(2 * time.Millisecond)})
	d.Add(FileEvent{Path: "/w/a.tif", Operation: OpCreate, Timestamp: base})
	d.Add(FileEvent{Path: "/w/b.tif", Operation: OpWrite, Timestamp: base.Add(time.Millisecond)})

	// Then: the batch is ordered oldest first
	select {
	case events := <-d.Output():
		require.Len(t, events, 3)
		assert.Equal(t, "/w/a.tif", events[0].Path)
		assert.Equal(t, "/w/b.tif", events[1].Path)
		assert.Equal(t, "/w/c.tif", events[2].Path)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timeout waiting for debounced events")
	}
}

func TestDebouncer_ZeroWindow_EmitsImmediately(t *testing.T) {
	// Given: debouncing disabled
	d := NewDebouncer(0)
	defer d.Stop()

	// When: two writes for the same path are added
	d.Add(FileEvent{Path: "/w/t.tif", Operation: OpCreate, Timestamp: time.Now()})
	d.Add(FileEvent{Path: "/w/t.tif", Operation: OpWrite, Timestamp: time.Now()})

	// Then: both come out as separate batches without waiting
	for _, want := range []Operation{OpCreate, OpWrite} {
		select {
		case events := <-d.Output():
			require.Len(t, events, 1)
			assert.Equal(t, want, events[0].Operation)
		default:
			t.Fatalf("expected %s to be emitted synchronously", want)
		}
	}
}

func TestDebouncer_Stop_ClosesOutput(t *testing.T) {
	// Given: a debouncer
	d := NewDebouncer(50 * time.Millisecond)

	// When: stopped twice
	d.Stop()
	d.Stop()

	// Then: output channel is closed and Add is ignored
	d.Add(FileEvent{Path: "/w/late.tif", Operation: OpCreate})
	_, ok := <-d.Output()
	assert.False(t, ok, "channel should be closed")
}
