package store

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	require.NotNil(t, store)

	// should start empty
	assert.Empty(t, store.GetAll())
}

func TestMemoryStore_Update(t *testing.T) {
	store := NewMemoryStore()
	errMsg := "ping failed: code 5"

	store.Update(SessionRecord{
		Name:      "account-1",
		Token:     "abcd…wxyz",
		Status:    "disconnected",
		Retries:   1,
		AccountID: "u1",
		ClientID:  "client-1",
		UpdatedAt: time.Now(),
		Error:     &errMsg,
	})

	all := store.GetAll()
	require.Len(t, all, 1)
	assert.Equal(t, "account-1", all[0].Name)
	assert.Equal(t, "disconnected", all[0].Status)
	assert.Equal(t, 1, all[0].Retries)
	require.NotNil(t, all[0].Error)
	assert.Equal(t, errMsg, *all[0].Error)
}

func TestMemoryStore_UpdateOverwrites(t *testing.T) {
	store := NewMemoryStore()

	store.Update(SessionRecord{Name: "account-1", Status: "connected"})
	store.Update(SessionRecord{Name: "account-1", Status: "none_connection"})

	all := store.GetAll()
	require.Len(t, all, 1)
	assert.Equal(t, "none_connection", all[0].Status)
}

func TestMemoryStore_GetAllSortedByName(t *testing.T) {
	store := NewMemoryStore()

	store.Update(SessionRecord{Name: "account-3", Status: "connected"})
	store.Update(SessionRecord{Name: "account-1", Status: "disconnected"})
	store.Update(SessionRecord{Name: "account-2", Status: "none_connection"})

	all := store.GetAll()
	require.Len(t, all, 3)
	assert.Equal(t, "account-1", all[0].Name)
	assert.Equal(t, "account-2", all[1].Name)
	assert.Equal(t, "account-3", all[2].Name)
}

func TestMemoryStore_GetAllIsCopy(t *testing.T) {
	store := NewMemoryStore()
	store.Update(SessionRecord{Name: "account-1", Status: "connected"})

	all := store.GetAll()
	all[0].Status = "mutated"

	assert.Equal(t, "connected", store.GetAll()[0].Status)
}

func TestMemoryStore_Subscribe(t *testing.T) {
	store := NewMemoryStore()

	ch := store.Subscribe()
	require.NotNil(t, ch)

	go store.Update(SessionRecord{Name: "account-1", Status: "connected"})

	select {
	case record := <-ch:
		assert.Equal(t, "account-1", record.Name)
	case <-time.After(time.Second):
		t.Fatal("Subscribe() channel did not receive update")
	}
}

func TestMemoryStore_MultipleSubscribers(t *testing.T) {
	store := NewMemoryStore()

	ch1 := store.Subscribe()
	ch2 := store.Subscribe()
	ch3 := store.Subscribe()

	// update should fan out to all subscribers
	go store.Update(SessionRecord{Name: "account-1", Status: "connected"})

	received := 0
	timeout := time.After(time.Second)

	for received < 3 {
		select {
		case <-ch1:
			received++
		case <-ch2:
			received++
		case <-ch3:
			received++
		case <-timeout:
			t.Fatalf("only received %d/3 updates", received)
		}
	}
}

func TestMemoryStore_Unsubscribe(t *testing.T) {
	store := NewMemoryStore()

	ch := store.Subscribe()
	store.Unsubscribe(ch)
	store.Unsubscribe(ch)

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel should be closed")
	case <-time.After(100 * time.Millisecond):
		t.Fatal("channel should be closed immediately")
	}
}

func TestMemoryStore_UnsubscribeStopsDelivery(t *testing.T) {
	store := NewMemoryStore()

	ch1 := store.Subscribe()
	ch2 := store.Subscribe()
	store.Unsubscribe(ch1)

	go store.Update(SessionRecord{Name: "account-1", Status: "connected"})

	select {
	case <-ch2:
	case <-time.After(time.Second):
		t.Fatal("ch2 should still receive updates")
	}
}

func TestMemoryStore_SlowSubscriberDoesNotBlock(t *testing.T) {
	store := NewMemoryStore()

	// never read
	_ = store.Subscribe()
	ch2 := store.Subscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 2*subscriberBuffer; i++ {
			store.Update(SessionRecord{Name: "account-1", Status: "connected"})
		}
		close(done)
	}()

	go func() {
		for range ch2 {
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Update() blocked on slow subscriber")
	}
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	store := NewMemoryStore()

	var wg sync.WaitGroup
	const numGoroutines = 10
	const numUpdates = 100

	for i := 0; i < numGoroutines; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			for j := 0; j < numUpdates; j++ {
				store.Update(SessionRecord{Name: "account-1", Retries: j})
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < numUpdates; j++ {
				_ = store.GetAll()
			}
		}()
		go func() {
			defer wg.Done()
			ch := store.Subscribe()
			time.Sleep(10 * time.Millisecond)
			store.Unsubscribe(ch)
		}()
	}

	wg.Wait()
	assert.Len(t, store.GetAll(), 1)
}
