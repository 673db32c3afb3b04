package domain

import (
	"encoding/json"
	"strings"
)

// BroadcastKind — вид события шины.
type BroadcastKind string

const (
	BroadcastBeatTick              BroadcastKind = "beat_tick"
	BroadcastMarkerReached         BroadcastKind = "marker_reached"
	BroadcastArtifactCreated       BroadcastKind = "artifact_created"
	BroadcastJobStateChanged       BroadcastKind = "job_state_changed"
	BroadcastTransportStateChanged BroadcastKind = "transport_state_changed"
	BroadcastUnknown               BroadcastKind = "unknown"
)

// Состояния job, на которые реагируют правила JobComplete.
const (
	JobStateComplete = "complete"
	JobStateFailed   = "failed"
)

// Значения по умолчанию для неполных сообщений шины.
const (
	DefaultTempoBPM       = 120.0
	DefaultTransportState = "stopped"
	DefaultJobState       = "unknown"
)

// Broadcast — событие, пришедшее по шине.
//
// Закрытый набор вариантов: Kind определяет значимые поля.
//
//	beat_tick               → Beat, TempoBPM
//	marker_reached          → Name, Beat
//	artifact_created        → ArtifactID, ContentHash, Tags
//	job_state_changed       → JobID, State, ArtifactID
//	transport_state_changed → State, PositionBeats
//	unknown                 → Topic, Data
type Broadcast struct {
	Kind BroadcastKind `json:"kind"`

	Beat          float64  `json:"beat,omitempty"`
	TempoBPM      float64  `json:"tempo_bpm,omitempty"`
	Name          string   `json:"name,omitempty"`
	ArtifactID    string   `json:"artifact_id,omitempty"`
	ContentHash   string   `json:"content_hash,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	JobID         string   `json:"job_id,omitempty"`
	State         string   `json:"state,omitempty"`
	PositionBeats float64  `json:"position_beats,omitempty"`

	Topic string `json:"topic,omitempty"`
	Data  []byte `json:"data,omitempty"`
}

// BeatTick создаёт событие доли.
func BeatTick(beat, tempoBPM float64) Broadcast {
	return Broadcast{Kind: BroadcastBeatTick, Beat: beat, TempoBPM: tempoBPM}
}

// MarkerReached создаёт событие маркера.
func MarkerReached(name string, beat float64) Broadcast {
	return Broadcast{Kind: BroadcastMarkerReached, Name: name, Beat: beat}
}

// ArtifactCreated создаёт событие нового артефакта.
func ArtifactCreated(artifactID, contentHash string, tags ...string) Broadcast {
	return Broadcast{Kind: BroadcastArtifactCreated, ArtifactID: artifactID, ContentHash: contentHash, Tags: tags}
}

// JobStateChanged создаёт событие смены состояния job.
func JobStateChanged(jobID, state, artifactID string) Broadcast {
	return Broadcast{Kind: BroadcastJobStateChanged, JobID: jobID, State: state, ArtifactID: artifactID}
}

// TransportStateChanged создаёт событие транспорта.
func TransportStateChanged(state string, positionBeats float64) Broadcast {
	return Broadcast{Kind: BroadcastTransportStateChanged, State: state, PositionBeats: positionBeats}
}

// IsTerminalJobState возвращает true для состояний, завершающих job.
func IsTerminalJobState(state string) bool {
	return state == JobStateComplete || state == JobStateFailed
}

// ParseBroadcast превращает topic + тело сообщения в Broadcast.
//
// Вид определяется по префиксу topic до первой точки
// (job., artifact., transport., beat., marker.).
// Некорректный JSON не ошибка: поля получают значения по умолчанию.
// Неизвестный префикс даёт BroadcastUnknown.
func ParseBroadcast(topic string, data []byte) Broadcast {
	var body struct {
		JobID         *string  `json:"job_id"`
		State         *string  `json:"state"`
		ArtifactID    *string  `json:"artifact_id"`
		ContentHash   *string  `json:"content_hash"`
		Tags          []any    `json:"tags"`
		PositionBeats *float64 `json:"position_beats"`
		Beat          *float64 `json:"beat"`
		TempoBPM      *float64 `json:"tempo_bpm"`
		Name          *string  `json:"name"`
	}
	if len(data) > 0 {
		_ = json.Unmarshal(data, &body)
	}

	prefix, _, _ := strings.Cut(topic, ".")
	switch prefix {
	case "job":
		return Broadcast{
			Kind:       BroadcastJobStateChanged,
			JobID:      strOr(body.JobID, ""),
			State:      strOr(body.State, DefaultJobState),
			ArtifactID: strOr(body.ArtifactID, ""),
		}
	case "artifact":
		tags := make([]string, 0, len(body.Tags))
		for _, t := range body.Tags {
			if s, ok := t.(string); ok {
				tags = append(tags, s)
			}
		}
		return Broadcast{
			Kind:        BroadcastArtifactCreated,
			ArtifactID:  strOr(body.ArtifactID, ""),
			ContentHash: strOr(body.ContentHash, ""),
			Tags:        tags,
		}
	case "transport":
		return Broadcast{
			Kind:          BroadcastTransportStateChanged,
			State:         strOr(body.State, DefaultTransportState),
			PositionBeats: floatOr(body.PositionBeats, 0),
		}
	case "beat":
		return Broadcast{
			Kind:     BroadcastBeatTick,
			Beat:     floatOr(body.Beat, 0),
			TempoBPM: floatOr(body.TempoBPM, DefaultTempoBPM),
		}
	case "marker":
		return Broadcast{
			Kind: BroadcastMarkerReached,
			Name: strOr(body.Name, ""),
			Beat: floatOr(body.Beat, 0),
		}
	default:
		return Broadcast{Kind: BroadcastUnknown, Topic: topic, Data: data}
	}
}

func strOr(p *string, def string) string {
	if p == nil {
		return def
	}
	return *p
}

func floatOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}
