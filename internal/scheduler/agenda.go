package scheduler

import (
	"container/heap"

	"github.com/google/uuid"
	"github.com/shaiso/vibeweaver/internal/domain"
)

// Agenda — очередь дедлайн-действий.
//
// Порядок выдачи: по возрастанию StartByBeat (раньше — первым);
// при равном StartByBeat первым идёт более высокий Priority;
// при полном равенстве — порядок постановки.
//
// container/heap — min-heap, поэтому инверсия сравнения не нужна:
// Less напрямую описывает "выдать раньше".
type Agenda struct {
	items agendaHeap
	byID  map[uuid.UUID]*agendaItem
	seq   uint64
}

type agendaItem struct {
	pending domain.PendingAction
	seq     uint64
	index   int
}

// NewAgenda создаёт пустую agenda.
func NewAgenda() *Agenda {
	return &Agenda{byID: make(map[uuid.UUID]*agendaItem)}
}

// Push добавляет запись. Идентичность записи — RuleID.
// Повторная постановка того же правила возвращает false и ничего не меняет.
func (a *Agenda) Push(p domain.PendingAction) bool {
	if _, exists := a.byID[p.RuleID]; exists {
		return false
	}
	a.seq++
	item := &agendaItem{pending: p, seq: a.seq}
	heap.Push(&a.items, item)
	a.byID[p.RuleID] = item
	return true
}

// Peek возвращает ближайшую запись, не извлекая её.
func (a *Agenda) Peek() (domain.PendingAction, bool) {
	if len(a.items) == 0 {
		return domain.PendingAction{}, false
	}
	return a.items[0].pending, true
}

// Pop извлекает ближайшую запись.
func (a *Agenda) Pop() (domain.PendingAction, bool) {
	if len(a.items) == 0 {
		return domain.PendingAction{}, false
	}
	item := heap.Pop(&a.items).(*agendaItem)
	delete(a.byID, item.pending.RuleID)
	return item.pending, true
}

// Remove удаляет запись правила, если она есть.
func (a *Agenda) Remove(ruleID uuid.UUID) bool {
	item, ok := a.byID[ruleID]
	if !ok {
		return false
	}
	heap.Remove(&a.items, item.index)
	delete(a.byID, ruleID)
	return true
}

// Contains проверяет, стоит ли правило в agenda.
func (a *Agenda) Contains(ruleID uuid.UUID) bool {
	_, ok := a.byID[ruleID]
	return ok
}

// Len возвращает число записей.
func (a *Agenda) Len() int {
	return len(a.items)
}

// Pending возвращает записи в порядке выдачи, не изменяя agenda.
func (a *Agenda) Pending() []domain.PendingAction {
	cp := make(agendaHeap, len(a.items))
	for i, item := range a.items {
		dup := *item
		cp[i] = &dup
	}

	out := make([]domain.PendingAction, 0, len(cp))
	for cp.Len() > 0 {
		out = append(out, heap.Pop(&cp).(*agendaItem).pending)
	}
	return out
}

// Clear удаляет все записи.
func (a *Agenda) Clear() {
	a.items = nil
	clear(a.byID)
}

// agendaHeap реализует heap.Interface.
type agendaHeap []*agendaItem

func (h agendaHeap) Len() int { return len(h) }

func (h agendaHeap) Less(i, j int) bool {
	a, b := h[i].pending, h[j].pending
	if a.StartByBeat != b.StartByBeat {
		return a.StartByBeat < b.StartByBeat
	}
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return h[i].seq < h[j].seq
}

func (h agendaHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *agendaHeap) Push(x any) {
	item := x.(*agendaItem)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *agendaHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}
