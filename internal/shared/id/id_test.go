package id

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypedIDsAreUnique(t *testing.T) {
	a, b := NewSessionID(), NewSessionID()
	assert.NotEqual(t, a, b)
	assert.False(t, a.IsNil())
	assert.True(t, NilSession.IsNil())

	r1, r2 := NewResourceID(), NewResourceID()
	assert.NotEqual(t, r1, r2)
	assert.False(t, r1.IsNil())
}

func TestParseRoundTrip(t *testing.T) {
	sid := NewSessionID()
	parsed, err := ParseSessionID(sid.String())
	require.NoError(t, err)
	assert.Equal(t, sid, parsed)

	rid := NewResourceID()
	parsedR, err := ParseResourceID(rid.String())
	require.NoError(t, err)
	assert.Equal(t, rid, parsedR)

	_, err = ParseSessionID("not-a-uuid")
	assert.Error(t, err)
}

func TestEventIDPrefixAndTimestamp(t *testing.T) {
	before := time.Now().Add(-time.Second)
	eid := NewEventID()

	if !strings.HasPrefix(eid.String(), EventPrefix+"_") {
		t.Fatalf("EventID should start with %q, got %s", EventPrefix+"_", eid)
	}

	ts, err := Timestamp(eid.String())
	require.NoError(t, err)
	assert.True(t, ts.After(before))
}

func TestEventIDsSortInEmissionOrder(t *testing.T) {
	gen := NewGenerator()
	prev := gen.Generate().String()
	for i := 0; i < 100; i++ {
		next := gen.Generate().String()
		if next <= prev {
			t.Fatalf("ULIDs not monotonic: %s <= %s", next, prev)
		}
		prev = next
	}
}

func TestConcurrentGeneration(t *testing.T) {
	gen := NewGenerator()
	var (
		mu   sync.Mutex
		seen = make(map[string]struct{})
		wg   sync.WaitGroup
	)

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s := gen.GenerateWithPrefix("evt")
				mu.Lock()
				seen[s] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 800)
}
