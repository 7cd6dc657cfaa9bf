package session

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"insurance-agent/internal/domain"
)

func sampleSession() *domain.Session {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &domain.Session{
		SessionID:       "sess-1",
		Step:            domain.StepProvider,
		CollectedFields: domain.PartialPatientRecord{Name: "Jane Doe", DateOfBirth: "04/12/1990"},
		Transcript: []domain.Message{
			{ID: 1, Sender: domain.SenderBot, Text: "What is your full name?", Timestamp: now},
			{ID: 2, Sender: domain.SenderUser, Text: "Jane Doe", Timestamp: now},
		},
		ConsentGiven:   true,
		CreatedAt:      now,
		LastActivityAt: now,
		Revision:       3,
	}
}

func TestMemoryStore_SaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	s := sampleSession()

	require.NoError(t, st.Save(ctx, "k", s))
	got, err := st.Load(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, s, got)

	// stored copies are independent of the caller's value
	got.Transcript[0].Text = "mutated"
	again, err := st.Load(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "What is your full name?", again.Transcript[0].Text)
}

func TestMemoryStore_MissingAndClear(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	got, err := st.Load(ctx, "absent")
	require.NoError(t, err)
	require.Nil(t, got)

	require.NoError(t, st.Save(ctx, "k", sampleSession()))
	require.NoError(t, st.Clear(ctx, "k"))
	got, err = st.Load(ctx, "k")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestDecode_Corrupt(t *testing.T) {
	cases := map[string]string{
		"not json":        `{{{`,
		"missing id":      `{"step":"name"}`,
		"unknown step":    `{"sessionId":"s","step":"dance"}`,
		"unknown sender":  `{"sessionId":"s","step":"name","transcript":[{"id":1,"sender":"robot","text":"x"}]}`,
		"future field":    `{"sessionId":"s","step":"dob","collectedFields":{"name":"Jane","insuranceProvider":"Aetna"}}`,
		"field at intro":  `{"sessionId":"s","step":"consent","collectedFields":{"name":"Jane"}}`,
		"unknown status":  `{"sessionId":"s","step":"result","result":{"status":"Maybe"}}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(raw))
			require.ErrorIs(t, err, ErrCorrupt)
		})
	}
}

func TestDecode_AllowsPassedFields(t *testing.T) {
	s, err := Decode([]byte(`{"sessionId":"s","step":"confirm","collectedFields":{"name":"Jane","dateOfBirth":"04/12/1990","insuranceProvider":"Aetna","policyId":"A1B2"}}`))
	require.NoError(t, err)
	require.True(t, s.CollectedFields.Complete())
}

func TestMemoryStore_LoadCorrupt(t *testing.T) {
	st := NewMemoryStore()
	st.Put("k", []byte("garbage"))
	_, err := st.Load(context.Background(), "k")
	require.ErrorIs(t, err, ErrCorrupt)
}

type fakeRedis struct {
	getVal  string
	getErr  error
	setErr  error
	delErr  error
	lastKey string
	lastVal []byte
	lastTTL time.Duration
	deleted []string
	exists  map[string]bool
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	f.lastKey = key
	return redis.NewStringResult(f.getVal, f.getErr)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.lastKey = key
	f.lastVal, _ = value.([]byte)
	f.lastTTL = expiration
	return redis.NewStatusResult("OK", f.setErr)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	f.deleted = append(f.deleted, keys...)
	return redis.NewIntResult(int64(len(keys)), f.delErr)
}

func (f *fakeRedis) Exists(ctx context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, k := range keys {
		if f.exists[k] {
			n++
		}
	}
	return redis.NewIntResult(n, f.getErr)
}

func TestNewRedisStore_Validates(t *testing.T) {
	_, err := NewRedisStore(nil, time.Hour)
	require.Error(t, err)

	st, err := NewRedisStore(&fakeRedis{}, 0)
	require.NoError(t, err)
	require.Equal(t, defaultRedisTTL, st.ttl)
}

func TestRedisStore_SaveThenLoad(t *testing.T) {
	ctx := context.Background()
	f := &fakeRedis{}
	st, err := NewRedisStore(f, time.Hour)
	require.NoError(t, err)

	s := sampleSession()
	require.NoError(t, st.Save(ctx, "browser-1", s))
	require.Equal(t, "insurance-agent:session:browser-1", f.lastKey)
	require.Equal(t, time.Hour, f.lastTTL)

	f.getVal = string(f.lastVal)
	got, err := st.Load(ctx, "browser-1")
	require.NoError(t, err)
	require.Equal(t, s, got)
}

func TestRedisStore_MissingKey(t *testing.T) {
	st, err := NewRedisStore(&fakeRedis{getErr: redis.Nil}, time.Hour)
	require.NoError(t, err)
	got, err := st.Load(context.Background(), "k")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestRedisStore_Errors(t *testing.T) {
	ctx := context.Background()
	st, err := NewRedisStore(&fakeRedis{getErr: errors.New("down"), setErr: errors.New("down"), delErr: errors.New("down")}, time.Hour)
	require.NoError(t, err)

	_, err = st.Load(ctx, "k")
	require.ErrorContains(t, err, "redis get")
	require.ErrorContains(t, st.Save(ctx, "k", sampleSession()), "redis set")
	require.ErrorContains(t, st.Clear(ctx, "k"), "redis del")
}

func TestRedisStore_Clear(t *testing.T) {
	f := &fakeRedis{}
	st, err := NewRedisStore(f, time.Hour)
	require.NoError(t, err)
	require.NoError(t, st.Clear(context.Background(), "k"))
	require.Equal(t, []string{"insurance-agent:session:k"}, f.deleted)
}

func TestMemoryStore_VerifiedMarkerSurvivesClear(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	ok, err := st.HasVerified(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, st.Save(ctx, "k", sampleSession()))
	require.NoError(t, st.MarkVerified(ctx, "k"))
	require.NoError(t, st.Clear(ctx, "k"))

	ok, err = st.HasVerified(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRedisStore_VerifiedMarker(t *testing.T) {
	ctx := context.Background()
	f := &fakeRedis{exists: map[string]bool{"insurance-agent:verified:seen": true}}
	st, err := NewRedisStore(f, time.Hour)
	require.NoError(t, err)

	require.NoError(t, st.MarkVerified(ctx, "k"))
	require.Equal(t, "insurance-agent:verified:k", f.lastKey)
	require.Equal(t, verifiedTTL, f.lastTTL)

	ok, err := st.HasVerified(ctx, "seen")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = st.HasVerified(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)
}

var allSteps = []domain.Step{
	domain.StepIntro, domain.StepConsent, domain.StepName, domain.StepDOB, domain.StepProvider,
	domain.StepPolicyID, domain.StepConfirm, domain.StepSubmitting, domain.StepResult,
	domain.StepError, domain.StepEnd,
}

// sessionAt builds a session at step holding only the fields that step has
// already collected.
func sessionAt(step domain.Step, id string, fields [4]string, msgs int, revision, at int64, consent bool) *domain.Session {
	ts := time.Unix(at, 0).UTC()
	s := &domain.Session{
		SessionID:      id,
		Step:           step,
		ConsentGiven:   consent,
		CreatedAt:      ts,
		LastActivityAt: ts.Add(time.Minute),
		Revision:       revision,
	}
	reached := len(domain.FieldSteps)
	switch step {
	case domain.StepIntro, domain.StepConsent:
		reached = 0
	default:
		for i, f := range domain.FieldSteps {
			if f == step {
				reached = i
			}
		}
	}
	for i := 0; i < reached; i++ {
		s.CollectedFields = s.CollectedFields.With(domain.FieldSteps[i], fields[i])
	}
	for i := 0; i < msgs; i++ {
		sender := domain.SenderBot
		if i%2 == 1 {
			sender = domain.SenderUser
		}
		s.Transcript = append(s.Transcript, domain.Message{ID: i + 1, Sender: sender, Text: fields[i%4], Timestamp: ts})
	}
	if step == domain.StepResult {
		s.Result = &domain.VerificationResult{Status: domain.StatusReviewNeeded, PlanName: fields[0], CoverageSummary: fields[1], NextSteps: fields[2]}
	}
	return s
}

func TestMemoryStore_RoundTripProperties(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("a session at any step loads back unchanged", prop.ForAll(
		func(stepIdx int, id, name, dob, provider, policy string, msgs int, revision, at int64, consent bool) bool {
			store := NewMemoryStore()
			want := sessionAt(allSteps[stepIdx], id, [4]string{name, dob, provider, policy}, msgs, revision, at, consent)
			if err := store.Save(context.Background(), "k", want); err != nil {
				return false
			}
			got, err := store.Load(context.Background(), "k")
			return err == nil && reflect.DeepEqual(want, got)
		},
		gen.IntRange(0, len(allSteps)-1),
		gen.Identifier(),
		gen.AlphaString(),
		gen.AlphaString(),
		gen.AlphaString(),
		gen.AlphaString(),
		gen.IntRange(0, 6),
		gen.Int64Range(0, 1_000_000),
		gen.Int64Range(0, 4_000_000_000),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
