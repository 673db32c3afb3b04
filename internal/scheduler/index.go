package scheduler

import (
	"slices"

	"github.com/google/uuid"
	"github.com/shaiso/vibeweaver/internal/domain"
)

// RuleIndex — правила, разложенные по категориям триггеров.
//
// Внутри категории правила отсортированы по убыванию приоритета;
// при равном приоритете сохраняется порядок вставки.
// Все операции тотальны: промах по id — no-op.
type RuleIndex struct {
	byTrigger map[domain.TriggerType][]domain.Rule
}

// NewRuleIndex создаёт пустой индекс.
func NewRuleIndex() *RuleIndex {
	return &RuleIndex{byTrigger: make(map[domain.TriggerType][]domain.Rule)}
}

// Insert добавляет правило в корзину его категории перед первым
// правилом со строго меньшим приоритетом.
func (idx *RuleIndex) Insert(rule domain.Rule) {
	category := rule.Trigger.Category()
	bucket := idx.byTrigger[category]

	pos := slices.IndexFunc(bucket, func(r domain.Rule) bool {
		return r.Priority < rule.Priority
	})
	if pos < 0 {
		pos = len(bucket)
	}

	idx.byTrigger[category] = slices.Insert(bucket, pos, rule)
}

// Remove удаляет правило с данным id из всех корзин.
// Правило живёт ровно в одной категории, поэтому обход всех корзин безопасен.
func (idx *RuleIndex) Remove(id uuid.UUID) {
	for category, bucket := range idx.byTrigger {
		idx.byTrigger[category] = slices.DeleteFunc(bucket, func(r domain.Rule) bool {
			return r.ID == id
		})
	}
}

// Get возвращает правила категории в порядке приоритета.
// Срез принадлежит индексу и не должен изменяться вызывающим.
func (idx *RuleIndex) Get(category domain.TriggerType) []domain.Rule {
	return idx.byTrigger[category]
}

// Rebuild очищает индекс и вставляет правила заново (загрузка сессии).
func (idx *RuleIndex) Rebuild(rules []domain.Rule) {
	idx.Clear()
	for _, r := range rules {
		idx.Insert(r)
	}
}

// Clear удаляет все корзины.
func (idx *RuleIndex) Clear() {
	clear(idx.byTrigger)
}

// Contains проверяет, есть ли правило в индексе.
func (idx *RuleIndex) Contains(id uuid.UUID) bool {
	_, ok := idx.Lookup(id)
	return ok
}

// Lookup возвращает копию правила по id.
func (idx *RuleIndex) Lookup(id uuid.UUID) (domain.Rule, bool) {
	for _, bucket := range idx.byTrigger {
		for _, r := range bucket {
			if r.ID == id {
				return r, true
			}
		}
	}
	return domain.Rule{}, false
}

// Len возвращает общее число правил.
func (idx *RuleIndex) Len() int {
	n := 0
	for _, bucket := range idx.byTrigger {
		n += len(bucket)
	}
	return n
}

// All возвращает копии всех правил: категории в порядке domain.TriggerTypes,
// внутри категории — в порядке приоритета.
func (idx *RuleIndex) All() []domain.Rule {
	out := make([]domain.Rule, 0, idx.Len())
	for _, category := range domain.TriggerTypes {
		out = append(out, idx.byTrigger[category]...)
	}
	return out
}
