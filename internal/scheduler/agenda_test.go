package scheduler

import (
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/shaiso/vibeweaver/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pending(startBy float64, p domain.Priority) domain.PendingAction {
	return domain.PendingAction{
		RuleID:      uuid.New(),
		Action:      domain.PlayAction(),
		Priority:    p,
		StartByBeat: startBy,
	}
}

func TestAgenda_EarliestFirst(t *testing.T) {
	a := NewAgenda()
	late := pending(90, domain.PriorityCritical)
	early := pending(70, domain.PriorityIdle)
	mid := pending(80, domain.PriorityNormal)

	require.True(t, a.Push(late))
	require.True(t, a.Push(early))
	require.True(t, a.Push(mid))

	var got []float64
	for a.Len() > 0 {
		p, ok := a.Pop()
		require.True(t, ok)
		got = append(got, p.StartByBeat)
	}
	assert.Equal(t, []float64{70, 80, 90}, got)
}

func TestAgenda_TieBreaks(t *testing.T) {
	a := NewAgenda()
	low := pending(50, domain.PriorityLow)
	high := pending(50, domain.PriorityHigh)
	highLater := pending(50, domain.PriorityHigh)

	a.Push(low)
	a.Push(high)
	a.Push(highLater)

	order := a.Pending()
	require.Len(t, order, 3)
	assert.Equal(t, high.RuleID, order[0].RuleID, "higher priority first, then push order")
	assert.Equal(t, highLater.RuleID, order[1].RuleID)
	assert.Equal(t, low.RuleID, order[2].RuleID)
	assert.Equal(t, 3, a.Len(), "Pending does not consume")
}

func TestAgenda_DuplicateAndRemove(t *testing.T) {
	a := NewAgenda()
	p := pending(10, domain.PriorityNormal)

	assert.True(t, a.Push(p))
	assert.False(t, a.Push(p))
	assert.Equal(t, 1, a.Len())
	assert.True(t, a.Contains(p.RuleID))

	assert.True(t, a.Remove(p.RuleID))
	assert.False(t, a.Remove(p.RuleID))
	assert.False(t, a.Contains(p.RuleID))

	_, ok := a.Peek()
	assert.False(t, ok)
	_, ok = a.Pop()
	assert.False(t, ok)
}

func TestAgenda_Clear(t *testing.T) {
	a := NewAgenda()
	p := pending(1, domain.PriorityNormal)
	a.Push(p)
	a.Push(pending(2, domain.PriorityNormal))

	a.Clear()
	assert.Equal(t, 0, a.Len())
	assert.True(t, a.Push(p), "cleared entry can be pushed again")
}

// Выдача никогда не идёт против порядка (start_by, -priority),
// в том числе после удалений из середины кучи.
func TestAgenda_PopOrderRandomized(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	a := NewAgenda()
	var ids []uuid.UUID

	for i := 0; i < 300; i++ {
		p := pending(float64(rng.Intn(40)), domain.Priorities[rng.Intn(len(domain.Priorities))])
		a.Push(p)
		ids = append(ids, p.RuleID)
	}
	for i := 0; i < 50; i++ {
		a.Remove(ids[rng.Intn(len(ids))])
	}

	prev, ok := a.Pop()
	require.True(t, ok)
	for a.Len() > 0 {
		next, _ := a.Pop()
		require.LessOrEqual(t, prev.StartByBeat, next.StartByBeat)
		if prev.StartByBeat == next.StartByBeat {
			require.GreaterOrEqual(t, prev.Priority, next.Priority)
		}
		prev = next
	}
}
