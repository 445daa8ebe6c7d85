package toggle

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStoreBasics(t *testing.T) {
	s := New()

	_, ok := s.Get("pump")
	assert.False(t, ok)

	prev := s.Set("pump", true)
	assert.False(t, prev)

	v, ok := s.Get("pump")
	assert.True(t, ok)
	assert.True(t, v)

	assert.False(t, s.Flip("pump"))
	assert.True(t, s.Flip("valve"), "unset toggles flip to true")

	all := s.All()
	assert.Equal(t, map[string]bool{"pump": false, "valve": true}, all)

	// Mutating the copy must not leak back into the store.
	all["pump"] = true
	v, _ = s.Get("pump")
	assert.False(t, v)
}

func TestStoreConcurrentAccess(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		name := fmt.Sprintf("t%d", i%5)
		go func() {
			defer wg.Done()
			s.Flip(name)
		}()
		go func() {
			defer wg.Done()
			s.Get(name)
			s.All()
		}()
	}
	wg.Wait()
	assert.Len(t, s.All(), 5)
}
