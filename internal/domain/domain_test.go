package domain

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Priority ---

func TestPriority_Ordering(t *testing.T) {
	assert.Greater(t, PriorityCritical, PriorityHigh)
	assert.Greater(t, PriorityHigh, PriorityNormal)
	assert.Greater(t, PriorityNormal, PriorityLow)
	assert.Greater(t, PriorityLow, PriorityIdle)
}

func TestParsePriority(t *testing.T) {
	tests := []struct {
		in      string
		want    Priority
		wantErr bool
	}{
		{"critical", PriorityCritical, false},
		{"HIGH", PriorityHigh, false},
		{" normal ", PriorityNormal, false},
		{"", PriorityNormal, false},
		{"low", PriorityLow, false},
		{"idle", PriorityIdle, false},
		{"urgent", DefaultPriority, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePriority(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnknownPriority)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPriority_JSON(t *testing.T) {
	data, err := json.Marshal(struct {
		P Priority `json:"p"`
	}{PriorityHigh})
	require.NoError(t, err)
	assert.JSONEq(t, `{"p":"high"}`, string(data))

	var out struct {
		P Priority `json:"p"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"p":"critical"}`), &out))
	assert.Equal(t, PriorityCritical, out.P)

	assert.Error(t, json.Unmarshal([]byte(`{"p":3}`), &out))
}

// --- SafetyMargins ---

func TestSafetyMargins_Defaults(t *testing.T) {
	m := DefaultSafetyMargins()

	require.NoError(t, m.Validate())
	assert.Equal(t, 1.5, m.Margin(PriorityCritical))
	assert.Equal(t, 1.2, m.Margin(PriorityHigh))
	assert.Equal(t, 1.0, m.Margin(PriorityNormal))
	assert.Equal(t, 1.0, SafetyMargins{}.Margin(PriorityCritical), "unset level has no margin")
}

func TestSafetyMargins_Validate(t *testing.T) {
	below := SafetyMargins{PriorityLow: 0.8}
	assert.ErrorIs(t, below.Validate(), ErrInvalidMargin)

	inverted := SafetyMargins{PriorityCritical: 1.1, PriorityHigh: 1.3}
	assert.ErrorIs(t, inverted.Validate(), ErrInvalidMargin)

	clone := DefaultSafetyMargins().Clone()
	clone[PriorityIdle] = 2.0
	assert.Equal(t, 1.0, DefaultSafetyMargins().Margin(PriorityIdle))
}

// --- Trigger ---

func TestTrigger_Category(t *testing.T) {
	tests := []struct {
		trigger Trigger
		want    TriggerType
	}{
		{BeatTrigger(4), TriggerBeat},
		{MarkerTrigger("chorus"), TriggerMarker},
		{DeadlineTrigger(32), TriggerDeadline},
		{ArtifactTrigger(), TriggerArtifact},
		{TaggedArtifactTrigger("drums"), TriggerArtifact},
		{JobCompleteTrigger("job-1"), TriggerJobComplete},
		{TransportTrigger("playing"), TriggerTransport},
	}

	for _, tt := range tests {
		t.Run(tt.trigger.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.trigger.Category())
			assert.NoError(t, tt.trigger.Validate())
		})
	}
}

func TestTrigger_Validate(t *testing.T) {
	assert.ErrorIs(t, Trigger{Type: "cron"}.Validate(), ErrUnknownTrigger)
	assert.ErrorIs(t, Trigger{Type: TriggerMarker}.Validate(), ErrInvalidTrigger)
	assert.ErrorIs(t, Trigger{Type: TriggerJobComplete}.Validate(), ErrInvalidTrigger)
	assert.ErrorIs(t, Trigger{Type: TriggerTransport}.Validate(), ErrInvalidTrigger)
	assert.NoError(t, BeatTrigger(0).Validate(), "zero divisor is accepted and never matches")
}

func TestTrigger_JSONRoundTrip(t *testing.T) {
	in := TaggedArtifactTrigger("bass")

	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out Trigger
	require.NoError(t, json.Unmarshal(data, &out))
	require.NotNil(t, out.Tag)
	assert.Equal(t, "bass", *out.Tag)
	assert.Equal(t, TriggerArtifact, out.Type)
}

// --- Rule ---

func TestNewRule(t *testing.T) {
	session := uuid.New()
	r := NewRule(session, BeatTrigger(4), PlayAction())

	assert.NotEqual(t, uuid.Nil, r.ID)
	assert.Equal(t, session, r.SessionID)
	assert.Equal(t, DefaultPriority, r.Priority)
	assert.True(t, r.Enabled())
	assert.False(t, r.OneShot)

	high := r.WithPriority(PriorityHigh).AsOneShot()
	assert.Equal(t, PriorityHigh, high.Priority)
	assert.True(t, high.OneShot)
	assert.Equal(t, DefaultPriority, r.Priority, "builders return a copy")
}

func TestRule_ZeroValueEnabled(t *testing.T) {
	r := Rule{Trigger: BeatTrigger(4), Action: PlayAction(), Priority: PriorityNormal}
	assert.True(t, r.Enabled())

	r.Disabled = true
	assert.False(t, r.Enabled())
}

func TestRule_UnmarshalJSONDefaults(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		priority Priority
		enabled  bool
	}{
		{
			name:     "minimal",
			data:     `{"trigger":{"type":"beat","divisor":4},"action":{"type":"play"}}`,
			priority: PriorityNormal,
			enabled:  true,
		},
		{
			name:     "explicit priority",
			data:     `{"trigger":{"type":"beat","divisor":4},"action":{"type":"play"},"priority":"idle"}`,
			priority: PriorityIdle,
			enabled:  true,
		},
		{
			name:     "enabled false",
			data:     `{"trigger":{"type":"beat","divisor":4},"action":{"type":"play"},"enabled":false}`,
			priority: PriorityNormal,
			enabled:  false,
		},
		{
			name:     "disabled true",
			data:     `{"trigger":{"type":"beat","divisor":4},"action":{"type":"play"},"disabled":true}`,
			priority: PriorityNormal,
			enabled:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var r Rule
			require.NoError(t, json.Unmarshal([]byte(tt.data), &r))
			assert.Equal(t, tt.priority, r.Priority)
			assert.Equal(t, tt.enabled, r.Enabled())
			assert.Equal(t, TriggerBeat, r.Trigger.Type)
			assert.Equal(t, uint32(4), r.Trigger.Divisor)
		})
	}
}

func TestRule_JSONRoundTripKeepsState(t *testing.T) {
	r := NewRule(uuid.New(), MarkerTrigger("drop"), PauseAction()).WithPriority(PriorityLow)
	r.Disabled = true

	data, err := json.Marshal(r)
	require.NoError(t, err)

	var out Rule
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, r.ID, out.ID)
	assert.Equal(t, PriorityLow, out.Priority)
	assert.True(t, out.Disabled)
}

// --- Action ---

func TestAction_Space(t *testing.T) {
	assert.Equal(t, "orpheus", SampleAction("orpheus", "").Space())
	assert.Equal(t, "musicgen", SampleAndScheduleAction("musicgen", "lofi", 16).Space())
	assert.Equal(t, "", PlayAction().Space())

	_, err := NewAction("", nil)
	assert.ErrorIs(t, err, ErrInvalidAction)
}

// --- ParseBroadcast ---

func TestParseBroadcast(t *testing.T) {
	tests := []struct {
		name  string
		topic string
		data  string
		want  Broadcast
	}{
		{
			name:  "job",
			topic: "job.state_changed",
			data:  `{"job_id":"abc123","state":"complete","artifact_id":"art456"}`,
			want:  JobStateChanged("abc123", "complete", "art456"),
		},
		{
			name:  "job defaults",
			topic: "job.state_changed",
			data:  `{}`,
			want:  JobStateChanged("", DefaultJobState, ""),
		},
		{
			name:  "beat",
			topic: "beat.tick",
			data:  `{"beat":4.0,"tempo_bpm":130.0}`,
			want:  BeatTick(4, 130),
		},
		{
			name:  "beat defaults",
			topic: "beat.tick",
			data:  ``,
			want:  BeatTick(0, DefaultTempoBPM),
		},
		{
			name:  "artifact drops non-string tags",
			topic: "artifact.created",
			data:  `{"artifact_id":"a1","content_hash":"h1","tags":["drums",7,"loop"]}`,
			want:  ArtifactCreated("a1", "h1", "drums", "loop"),
		},
		{
			name:  "transport",
			topic: "transport.state",
			data:  `{"state":"playing","position_beats":12.5}`,
			want:  TransportStateChanged("playing", 12.5),
		},
		{
			name:  "transport defaults on bad json",
			topic: "transport.state",
			data:  `not json`,
			want:  TransportStateChanged(DefaultTransportState, 0),
		},
		{
			name:  "marker",
			topic: "marker.reached",
			data:  `{"name":"drop","beat":64}`,
			want:  MarkerReached("drop", 64),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseBroadcast(tt.topic, []byte(tt.data))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseBroadcast_Unknown(t *testing.T) {
	got := ParseBroadcast("midi.note", []byte(`{"note":60}`))

	assert.Equal(t, BroadcastUnknown, got.Kind)
	assert.Equal(t, "midi.note", got.Topic)
	assert.Equal(t, []byte(`{"note":60}`), got.Data)
}
