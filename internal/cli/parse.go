package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shaiso/vibeweaver/internal/domain"
	"gopkg.in/yaml.v3"
)

// ParseTrigger разбирает триггер в форме TYPE[:ARG]:
//
//	beat:4  marker:chorus  deadline:32  artifact  artifact:drums
//	job_complete:JOB_ID  transport:playing
func ParseTrigger(s string) (domain.Trigger, error) {
	kind, arg, _ := strings.Cut(strings.TrimSpace(s), ":")
	if kind == "job" {
		kind = string(domain.TriggerJobComplete)
	}

	t, err := domain.ParseTriggerType(kind)
	if err != nil {
		return domain.Trigger{}, err
	}

	var trigger domain.Trigger
	switch t {
	case domain.TriggerBeat:
		n, err := strconv.ParseUint(arg, 10, 32)
		if err != nil {
			return domain.Trigger{}, fmt.Errorf("%w: beat divisor %q", domain.ErrInvalidTrigger, arg)
		}
		trigger = domain.BeatTrigger(uint32(n))
	case domain.TriggerDeadline:
		beat, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return domain.Trigger{}, fmt.Errorf("%w: deadline beat %q", domain.ErrInvalidTrigger, arg)
		}
		trigger = domain.DeadlineTrigger(beat)
	case domain.TriggerMarker:
		trigger = domain.MarkerTrigger(arg)
	case domain.TriggerArtifact:
		if arg == "" {
			trigger = domain.ArtifactTrigger()
		} else {
			trigger = domain.TaggedArtifactTrigger(arg)
		}
	case domain.TriggerJobComplete:
		trigger = domain.JobCompleteTrigger(arg)
	case domain.TriggerTransport:
		trigger = domain.TransportTrigger(arg)
	}

	if err := trigger.Validate(); err != nil {
		return domain.Trigger{}, err
	}
	return trigger, nil
}

// ParseParams разбирает параметры действия KEY=VALUE.
// Значение читается как YAML-скаляр: 4 — число, true — bool, остальное — строка.
func ParseParams(kvs []string) (map[string]any, error) {
	if len(kvs) == 0 {
		return nil, nil
	}

	params := make(map[string]any, len(kvs))
	for _, kv := range kvs {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid param format %q, expected KEY=VALUE", kv)
		}

		var v any
		if err := yaml.Unmarshal([]byte(value), &v); err != nil || v == nil {
			v = value
		}
		if _, isMap := v.(map[string]any); isMap {
			v = value
		}
		if _, isList := v.([]any); isList {
			v = value
		}
		params[key] = v
	}
	return params, nil
}

// BuildAction собирает действие из типа и параметров KEY=VALUE.
func BuildAction(actionType string, kvs []string) (domain.Action, error) {
	params, err := ParseParams(kvs)
	if err != nil {
		return domain.Action{}, err
	}
	if params == nil {
		return domain.NewAction(domain.ActionType(actionType), nil)
	}
	return domain.NewAction(domain.ActionType(actionType), params)
}
