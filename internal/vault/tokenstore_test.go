package vault

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenStore_EmptyReadsAbsent(t *testing.T) {
	t.Parallel()

	store := NewTokenStore()

	token, ok := store.Read()
	assert.False(t, ok)
	assert.Empty(t, token)
}

func TestTokenStore_ReplaceAndRead(t *testing.T) {
	t.Parallel()

	store := NewTokenStore()
	store.Replace("hvs.first")

	token, ok := store.Read()
	assert.True(t, ok)
	assert.Equal(t, "hvs.first", token)

	// Replace overwrites wholesale.
	store.Replace("hvs.second")
	token, ok = store.Read()
	assert.True(t, ok)
	assert.Equal(t, "hvs.second", token)
}

func TestTokenStore_Clear(t *testing.T) {
	t.Parallel()

	store := NewTokenStore()
	store.Replace("hvs.token")
	store.Clear()

	token, ok := store.Read()
	assert.False(t, ok)
	assert.Empty(t, token)

	// Clearing an empty store is a no-op.
	store.Clear()
	_, ok = store.Read()
	assert.False(t, ok)
}

// TestTokenStore_ConcurrentAccess hammers the store from readers and
// writers; a reader must always observe either absence or one complete
// token, never a torn value.
func TestTokenStore_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	store := NewTokenStore()
	valid := map[string]bool{}
	for i := 0; i < 8; i++ {
		valid[fmt.Sprintf("hvs.token-%d", i)] = true
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				store.Replace(fmt.Sprintf("hvs.token-%d", i))
				if j%10 == 0 {
					store.Clear()
				}
			}
		}(i)
	}

	errCh := make(chan string, 1)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				token, ok := store.Read()
				if ok && !valid[token] {
					select {
					case errCh <- token:
					default:
					}
					return
				}
				if !ok && token != "" {
					select {
					case errCh <- token:
					default:
					}
					return
				}
			}
		}()
	}

	wg.Wait()
	select {
	case torn := <-errCh:
		t.Fatalf("observed torn token %q", torn)
	default:
	}
}
