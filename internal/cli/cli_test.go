package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/shaiso/vibeweaver/internal/domain"
	"github.com/shaiso/vibeweaver/internal/mq"
	"github.com/shaiso/vibeweaver/internal/repo/sqlite"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTrigger(t *testing.T) {
	tests := []struct {
		in      string
		want    domain.Trigger
		wantErr bool
	}{
		{in: "beat:4", want: domain.BeatTrigger(4)},
		{in: "marker:chorus", want: domain.MarkerTrigger("chorus")},
		{in: "deadline:32.5", want: domain.DeadlineTrigger(32.5)},
		{in: "artifact", want: domain.ArtifactTrigger()},
		{in: "artifact:drums", want: domain.TaggedArtifactTrigger("drums")},
		{in: "job:j-1", want: domain.JobCompleteTrigger("j-1")},
		{in: "job_complete:j-2", want: domain.JobCompleteTrigger("j-2")},
		{in: "Transport:playing", want: domain.TransportTrigger("playing")},
		{in: "beat:four", wantErr: true},
		{in: "beat:-1", wantErr: true},
		{in: "marker", wantErr: true},
		{in: "deadline:soon", wantErr: true},
		{in: "lyrics:hook", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTrigger(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseParams(t *testing.T) {
	params, err := ParseParams([]string{"space=drums", "beat=16", "gain=0.8", "loop=true", "prompt=a: b", "empty="})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"space":  "drums",
		"beat":   16,
		"gain":   0.8,
		"loop":   true,
		"prompt": "a: b",
		"empty":  "",
	}, params)

	_, err = ParseParams([]string{"novalue"})
	assert.Error(t, err)

	params, err = ParseParams(nil)
	require.NoError(t, err)
	assert.Nil(t, params)
}

func TestBuildAction(t *testing.T) {
	a, err := BuildAction("seek", []string{"beat=32"})
	require.NoError(t, err)
	assert.Equal(t, domain.ActionSeek, a.Type)
	assert.JSONEq(t, `{"beat":32}`, string(a.Params))

	a, err = BuildAction("play", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.PlayAction(), a)

	_, err = BuildAction("", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidAction)
}

// cliEnv — CLI поверх файла SQLite с перехваченным выводом.
type cliEnv struct {
	path   string
	stdout bytes.Buffer
	stderr bytes.Buffer
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	return &cliEnv{path: filepath.Join(t.TempDir(), "rules.db")}
}

func (e *cliEnv) storeFn(context.Context) (Store, error) {
	return sqlite.Open(e.path)
}

func (e *cliEnv) outputFn() *Output {
	return NewOutputTo(&e.stdout, &e.stderr, true)
}

func (e *cliEnv) run(t *testing.T, cmd *cobra.Command, args ...string) error {
	t.Helper()
	e.stdout.Reset()
	e.stderr.Reset()
	cmd.SetArgs(args)
	cmd.SetOut(&e.stderr)
	cmd.SetErr(&e.stderr)
	return cmd.ExecuteContext(context.Background())
}

func (e *cliEnv) store(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(e.path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRulesCmd_AddListDisableRemove(t *testing.T) {
	env := newCLIEnv(t)
	session := uuid.New()

	require.NoError(t, env.run(t, NewRulesCmd(env.storeFn, env.outputFn),
		"add", "--session", session.String(), "--trigger", "beat:4", "--action", "play"))
	require.NoError(t, env.run(t, NewRulesCmd(env.storeFn, env.outputFn),
		"add", "--session", session.String(), "--trigger", "marker:chorus", "--action", "sample",
		"--param", "space=drums", "--param", "prompt=breakbeat", "--priority", "high", "--one-shot"))
	assert.Contains(t, env.stderr.String(), "Rule created")

	var created domain.Rule
	require.NoError(t, json.Unmarshal(env.stdout.Bytes(), &created))
	assert.Equal(t, domain.PriorityHigh, created.Priority)
	assert.True(t, created.OneShot)
	assert.Equal(t, "drums", created.Action.Space())

	require.NoError(t, env.run(t, NewRulesCmd(env.storeFn, env.outputFn), "list", "--session", session.String()))
	var rules []domain.Rule
	require.NoError(t, json.Unmarshal(env.stdout.Bytes(), &rules))
	require.Len(t, rules, 2)

	require.NoError(t, env.run(t, NewRulesCmd(env.storeFn, env.outputFn), "list", "--type", "marker"))
	require.NoError(t, json.Unmarshal(env.stdout.Bytes(), &rules))
	require.Len(t, rules, 1)
	assert.Equal(t, created.ID, rules[0].ID)

	require.NoError(t, env.run(t, NewRulesCmd(env.storeFn, env.outputFn), "disable", created.ID.String()))
	got, err := env.store(t).GetRule(context.Background(), created.ID)
	require.NoError(t, err)
	assert.False(t, got.Enabled())

	require.NoError(t, env.run(t, NewRulesCmd(env.storeFn, env.outputFn), "enable", created.ID.String()))
	require.NoError(t, env.run(t, NewRulesCmd(env.storeFn, env.outputFn), "show", created.ID.String()))
	require.NoError(t, json.Unmarshal(env.stdout.Bytes(), &got))
	assert.True(t, got.Enabled())

	require.NoError(t, env.run(t, NewRulesCmd(env.storeFn, env.outputFn), "remove", created.ID.String()))
	assert.Error(t, env.run(t, NewRulesCmd(env.storeFn, env.outputFn), "remove", created.ID.String()))
}

func TestRulesCmd_AddRejects(t *testing.T) {
	env := newCLIEnv(t)
	session := uuid.New().String()

	err := env.run(t, NewRulesCmd(env.storeFn, env.outputFn),
		"add", "--session", session, "--trigger", "deadline:32", "--action", "play")
	assert.ErrorIs(t, err, errDeadlineRule)

	err = env.run(t, NewRulesCmd(env.storeFn, env.outputFn),
		"add", "--session", "not-a-uuid", "--trigger", "beat:4", "--action", "play")
	assert.Error(t, err)

	err = env.run(t, NewRulesCmd(env.storeFn, env.outputFn),
		"add", "--session", session, "--trigger", "beat:4", "--action", "play", "--priority", "urgent")
	assert.ErrorIs(t, err, domain.ErrUnknownPriority)
}

func TestStatsCmd_List(t *testing.T) {
	env := newCLIEnv(t)
	s := env.store(t)
	require.NoError(t, s.UpdateGenerationStats(context.Background(),
		domain.GenerationStats{Space: "drums", AvgDurationMs: 1500, SampleCount: 3}))

	require.NoError(t, env.run(t, NewStatsCmd(env.storeFn, env.outputFn), "list"))

	var stats []domain.GenerationStats
	require.NoError(t, json.Unmarshal(env.stdout.Bytes(), &stats))
	require.Len(t, stats, 1)
	assert.Equal(t, "drums", stats[0].Space)
	assert.Equal(t, uint64(3), stats[0].SampleCount)
}

func TestOutput_Table(t *testing.T) {
	var out, errOut bytes.Buffer
	o := NewOutputTo(&out, &errOut, false)

	o.Print([]string{"ID", "NAME"}, [][]string{{"1", "drums"}}, nil)
	o.Error("boom")

	assert.Equal(t, "ID  NAME\n--  ----\n1   drums\n", out.String())
	assert.Equal(t, "Error: boom\n", errOut.String())
}

type sentCommand struct {
	msgType mq.MessageType
	payload any
	topic   string
	body    []byte
}

type fakePublisher struct {
	sent     []sentCommand
	released int
}

func (f *fakePublisher) PublishCommand(_ context.Context, msgType mq.MessageType, payload any) error {
	f.sent = append(f.sent, sentCommand{msgType: msgType, payload: payload})
	return nil
}

func (f *fakePublisher) PublishBroadcast(_ context.Context, topic string, body []byte) error {
	f.sent = append(f.sent, sentCommand{topic: topic, body: body})
	return nil
}

func TestSendCmd(t *testing.T) {
	env := newCLIEnv(t)
	pub := &fakePublisher{}
	publisherFn := func(context.Context) (CommandPublisher, func(), error) {
		return pub, func() { pub.released++ }, nil
	}
	session := uuid.New()

	require.NoError(t, env.run(t, NewSendCmd(publisherFn, env.outputFn), "session", "open", session.String()))
	require.NoError(t, env.run(t, NewSendCmd(publisherFn, env.outputFn), "tempo", session.String(), "90"))
	require.NoError(t, env.run(t, NewSendCmd(publisherFn, env.outputFn),
		"deadline", session.String(), "--beat", "32", "--action", "sample", "--param", "space=strings", "--priority", "critical"))
	require.NoError(t, env.run(t, NewSendCmd(publisherFn, env.outputFn), "generation", session.String(), "strings", "2400"))
	require.NoError(t, env.run(t, NewSendCmd(publisherFn, env.outputFn),
		"rule", "add", session.String(), "--trigger", "beat:8", "--action", "pause"))
	require.NoError(t, env.run(t, NewSendCmd(publisherFn, env.outputFn), "broadcast", "beat.tick", `{"beat": 4}`))
	assert.Error(t, env.run(t, NewSendCmd(publisherFn, env.outputFn), "tempo", session.String(), "0"))
	assert.Error(t, env.run(t, NewSendCmd(publisherFn, env.outputFn), "broadcast", "beat.tick", "{"))

	require.Len(t, pub.sent, 6)
	assert.Equal(t, 6, pub.released)

	assert.Equal(t, mq.MessageTypeSessionOpen, pub.sent[0].msgType)
	assert.Equal(t, mq.SessionPayload{SessionID: session}, pub.sent[0].payload)
	assert.Equal(t, mq.TempoSetPayload{SessionID: session, TempoBPM: 90}, pub.sent[1].payload)

	deadline, ok := pub.sent[2].payload.(mq.DeadlineSchedulePayload)
	require.True(t, ok)
	assert.Equal(t, domain.DeadlineTrigger(32), deadline.Rule.Trigger)
	assert.Equal(t, domain.PriorityCritical, deadline.Rule.Priority)
	assert.Equal(t, "strings", deadline.Rule.Action.Space())

	assert.Equal(t, mq.GenerationRecordPayload{SessionID: session, Space: "strings", DurationMs: 2400}, pub.sent[3].payload)
	assert.Equal(t, mq.MessageTypeRuleAdd, pub.sent[4].msgType)
	assert.Equal(t, "beat.tick", pub.sent[5].topic)
}
