package notify

import (
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/sportscarhub/storefront/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ownedBy(owner string) func(domain.OrderEvent) bool {
	return func(e domain.OrderEvent) bool { return e.OwnerID == owner }
}

func TestHub_DeliversToMatchingSubscribers(t *testing.T) {
	hub := NewHub(4, zerolog.Nop())

	aliceCh, cancelAlice := hub.Subscribe(ownedBy("alice"))
	defer cancelAlice()
	allCh, cancelAll := hub.Subscribe(nil)
	defer cancelAll()

	hub.Publish(domain.OrderEvent{ID: "e1", OwnerID: "bob"})
	hub.Publish(domain.OrderEvent{ID: "e2", OwnerID: "alice"})

	require.Len(t, aliceCh, 1)
	assert.Equal(t, "e2", (<-aliceCh).ID)

	require.Len(t, allCh, 2)
	assert.Equal(t, "e1", (<-allCh).ID)
	assert.Equal(t, "e2", (<-allCh).ID)
}

func TestHub_SlowSubscriberDropsEvents(t *testing.T) {
	hub := NewHub(1, zerolog.Nop())
	ch, cancel := hub.Subscribe(nil)
	defer cancel()

	hub.Publish(domain.OrderEvent{ID: "e1"})
	hub.Publish(domain.OrderEvent{ID: "e2"})

	assert.Equal(t, "e1", (<-ch).ID)
	assert.Len(t, ch, 0)
}

func TestHub_CancelClosesChannelOnce(t *testing.T) {
	hub := NewHub(0, zerolog.Nop())
	ch, cancel := hub.Subscribe(nil)
	assert.Equal(t, 1, hub.Subscribers())

	cancel()
	cancel()

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, hub.Subscribers())

	// publishing after unsubscribe must not panic
	hub.Publish(domain.OrderEvent{ID: "e1"})
}

func TestHub_Close(t *testing.T) {
	hub := NewHub(0, zerolog.Nop())
	ch, cancel := hub.Subscribe(nil)

	hub.Close()
	_, open := <-ch
	assert.False(t, open)
	cancel()

	late, _ := hub.Subscribe(nil)
	_, open = <-late
	assert.False(t, open)
}

func TestHub_ConcurrentPublishAndSubscribe(t *testing.T) {
	hub := NewHub(64, zerolog.Nop())
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, cancel := hub.Subscribe(nil)
			cancel()
		}()
		go func() {
			defer wg.Done()
			hub.Publish(domain.OrderEvent{ID: "e"})
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, hub.Subscribers())
}
