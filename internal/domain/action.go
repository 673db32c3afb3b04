package domain

import (
	"encoding/json"
	"fmt"
)

// ActionType — тип действия.
//
// Планировщик не интерпретирует действия: тип и параметры
// передаются исполнителю как есть.
type ActionType string

// Известные типы действий.
const (
	ActionSample            ActionType = "sample"
	ActionSchedule          ActionType = "schedule"
	ActionSampleAndSchedule ActionType = "sample_and_schedule"
	ActionPlay              ActionType = "play"
	ActionPause             ActionType = "pause"
	ActionStop              ActionType = "stop"
	ActionSeek              ActionType = "seek"
	ActionAudition          ActionType = "audition"
	ActionNotify            ActionType = "notify"
)

// Action — что сделать при срабатывании правила ("что").
//
// Params хранится в сыром виде (JSON) и не разбирается
// ни планировщиком, ни хранилищем.
type Action struct {
	Type   ActionType      `json:"type"`
	Params json.RawMessage `json:"params,omitempty"`
}

// NewAction создаёт действие с произвольными параметрами.
func NewAction(t ActionType, params any) (Action, error) {
	if t == "" {
		return Action{}, ErrInvalidAction
	}
	if params == nil {
		return Action{Type: t}, nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return Action{}, fmt.Errorf("marshal action params: %w", err)
	}
	return Action{Type: t, Params: raw}, nil
}

// mustAction — для конструкторов с заведомо сериализуемыми параметрами.
func mustAction(t ActionType, params any) Action {
	a, err := NewAction(t, params)
	if err != nil {
		panic(err)
	}
	return a
}

// PlayAction — начать воспроизведение.
func PlayAction() Action { return Action{Type: ActionPlay} }

// PauseAction — пауза.
func PauseAction() Action { return Action{Type: ActionPause} }

// StopAction — остановка.
func StopAction() Action { return Action{Type: ActionStop} }

// SeekAction — перемотка на долю.
func SeekAction(beat float64) Action {
	return mustAction(ActionSeek, map[string]any{"beat": beat})
}

// NotifyAction — уведомление.
func NotifyAction(message string) Action {
	return mustAction(ActionNotify, map[string]any{"message": message})
}

// SampleAction — запрос генерации в пространстве space.
func SampleAction(space, prompt string) Action {
	params := map[string]any{"space": space}
	if prompt != "" {
		params["prompt"] = prompt
	}
	return mustAction(ActionSample, params)
}

// SampleAndScheduleAction — сгенерировать и поставить на таймлайн в доле at.
func SampleAndScheduleAction(space, prompt string, at float64) Action {
	params := map[string]any{"space": space, "at": at}
	if prompt != "" {
		params["prompt"] = prompt
	}
	return mustAction(ActionSampleAndSchedule, params)
}

// ScheduleAction — поставить готовый контент на таймлайн.
func ScheduleAction(contentHash string, at, gain float64) Action {
	return mustAction(ActionSchedule, map[string]any{
		"content_hash": contentHash,
		"at":           at,
		"gain":         gain,
	})
}

// AuditionAction — прослушать контент.
func AuditionAction(contentHash string, duration float64) Action {
	return mustAction(ActionAudition, map[string]any{
		"content_hash": contentHash,
		"duration":     duration,
	})
}

// Space возвращает пространство генерации из параметров, если оно есть.
// Используется хостом для выбора оценки времени; планировщик его не вызывает.
func (a Action) Space() string {
	if len(a.Params) == 0 {
		return ""
	}
	var p struct {
		Space string `json:"space"`
	}
	if err := json.Unmarshal(a.Params, &p); err != nil {
		return ""
	}
	return p.Space
}
