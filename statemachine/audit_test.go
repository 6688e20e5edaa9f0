package statemachine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditLogAppend(t *testing.T) {
	t.Parallel()

	log := NewAuditLog[lampState, lampTrigger]()

	_, ok := log.Last()
	assert.False(t, ok)
	assert.Empty(t, log.Strings())

	first := log.append(Entry[lampState, lampTrigger]{Time: fixedTestTime, From: lampOff, Trigger: turnOn, To: lampOn, Transitioned: true})
	second := log.append(Entry[lampState, lampTrigger]{Time: fixedTestTime, From: lampOn, Trigger: inspect, To: lampOn})

	assert.Equal(t, uint64(1), first.Seq)
	assert.Equal(t, uint64(2), second.Seq)
	assert.Equal(t, 2, log.Len())

	last, ok := log.Last()
	require.True(t, ok)
	assert.Equal(t, second, last)

	assert.Equal(t, []string{
		"2024-03-01 09:30:00 - In state Off. Fired trigger TurnOn. Transitioned to On",
		"2024-03-01 09:30:00 - In state On. Fired trigger Inspect.",
	}, log.Strings())
}

func TestAuditLogEntriesIsACopy(t *testing.T) {
	t.Parallel()

	log := NewAuditLog[lampState, lampTrigger]()
	log.append(Entry[lampState, lampTrigger]{From: lampOff, Trigger: smash, To: lampBroken, Transitioned: true})

	entries := log.Entries()
	entries[0].To = lampOn

	assert.Equal(t, lampBroken, log.Entries()[0].To)
}

func TestAuditLogConcurrentReaders(t *testing.T) {
	t.Parallel()

	log := NewAuditLog[lampState, lampTrigger]()

	var wg sync.WaitGroup

	for range 8 {
		wg.Add(2)

		go func() {
			defer wg.Done()

			log.append(Entry[lampState, lampTrigger]{From: lampOn, Trigger: inspect, To: lampOn})
		}()

		go func() {
			defer wg.Done()

			_ = log.Strings()
		}()
	}

	wg.Wait()

	entries := log.Entries()
	require.Len(t, entries, 8)

	for i, e := range entries {
		assert.Equal(t, uint64(i+1), e.Seq)
	}
}
