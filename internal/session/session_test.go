package session

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SmitUplenchwar2687/wsreplay/internal/clock"
	"github.com/SmitUplenchwar2687/wsreplay/internal/metrics"
	"github.com/SmitUplenchwar2687/wsreplay/internal/playback"
	"github.com/SmitUplenchwar2687/wsreplay/internal/recorder"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type captureSender struct {
	sent    [][]byte
	failAt  int // 1-based send index to fail on, 0 = never
	failErr error
}

func (c *captureSender) Send(_ context.Context, rec []byte) error {
	if c.failAt > 0 && len(c.sent)+1 == c.failAt {
		return c.failErr
	}
	c.sent = append(c.sent, append([]byte(nil), rec...))
	return nil
}

func (c *captureSender) strings() []string {
	out := make([]string, len(c.sent))
	for i, b := range c.sent {
		out[i] = string(b)
	}
	return out
}

func writeCapture(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newSession(t *testing.T, content string, policy playback.Policy, opts ...Option) (*Session, *captureSender) {
	t.Helper()
	cfg := &Config{
		Delimiter:  '\n',
		SourcePath: writeCapture(t, content),
		Interval:   time.Second,
		Upfront:    policy,
	}
	require.NoError(t, cfg.Validate())
	sender := &captureSender{}
	opts = append([]Option{WithLogger(zerolog.Nop())}, opts...)
	sess, err := New(cfg, sender, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { sess.Close() })
	return sess, sender
}

// drain fires until the session stops re-arming and returns the number of fires.
func drain(t *testing.T, s *Session) int {
	t.Helper()
	fires := 0
	for {
		fires++
		rearm, err := s.Fire(context.Background())
		require.NoError(t, err)
		if !rearm {
			return fires
		}
		require.Less(t, fires, 10000, "session never went idle")
	}
}

func TestCount_ThreeRecordScenario(t *testing.T) {
	s, sender := newSession(t, "a\nb\nc\n", playback.Count(2))

	require.NoError(t, s.Open(context.Background()))
	assert.Equal(t, []string{"a\n", "b\n"}, sender.strings())
	assert.Equal(t, StateSteady, s.State())
	assert.True(t, s.Active())

	rearm, err := s.Fire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a\n", "b\n", "c\n"}, sender.strings())
	assert.False(t, rearm, "session must go idle after the last record")
	assert.Equal(t, StateIdle, s.State())
}

func TestCount_BurstIsFirstNRecordsInOrder(t *testing.T) {
	lines := []string{"r1\n", "r2\n", "r3\n", "r4\n", "r5\n"}
	s, sender := newSession(t, strings.Join(lines, ""), playback.Count(3))

	require.NoError(t, s.Open(context.Background()))
	assert.Equal(t, lines[:3], sender.strings())

	fires := drain(t, s)
	assert.Equal(t, 2, fires)
	assert.Equal(t, lines, sender.strings(), "steady state continues right after the burst")
}

func TestCount_PastEOFForwardsEmptyRecords(t *testing.T) {
	s, sender := newSession(t, "a\nb\n", playback.Count(5))

	require.NoError(t, s.Open(context.Background()))
	assert.Equal(t, []string{"a\n", "b\n", "", "", ""}, sender.strings())
	assert.EqualValues(t, 5, s.Sent())
	assert.False(t, s.Active())

	// A timer is still armed once; its fire sends one empty record.
	rearm, err := s.Fire(context.Background())
	require.NoError(t, err)
	assert.False(t, rearm)
	assert.Len(t, sender.sent, 6)
	assert.Empty(t, sender.sent[5])
}

func TestCount_Zero(t *testing.T) {
	s, sender := newSession(t, "a\n", playback.Count(0))

	require.NoError(t, s.Open(context.Background()))
	assert.Empty(t, sender.sent)
	assert.True(t, s.Active())

	assert.Equal(t, 1, drain(t, s))
	assert.Equal(t, []string{"a\n"}, sender.strings())
}

func TestPercentage_OneLargeRecordOvershoots(t *testing.T) {
	rec := strings.Repeat("x", 39) + "\n"
	s, sender := newSession(t, strings.Repeat(rec, 2)+strings.Repeat("y", 19)+"\n", playback.Percentage(0.1))

	require.NoError(t, s.Open(context.Background()))
	assert.Len(t, sender.sent, 1, "40 bytes already covers a 10 byte target")
	assert.Equal(t, rec, string(sender.sent[0]))
}

func TestPercentage_TightBound(t *testing.T) {
	content := "aa\nbbbb\nc\ndddddd\neeeee\nf\n"
	size := float64(len(content))

	for _, p := range []float64{0.05, 0.1, 0.25, 0.5, 0.75, 0.9, 1} {
		s, sender := newSession(t, content, playback.Percentage(p))
		require.NoError(t, s.Open(context.Background()))

		var total int
		for _, rec := range sender.sent {
			total += len(rec)
		}
		last := len(sender.sent[len(sender.sent)-1])
		target := size * p

		assert.GreaterOrEqual(t, float64(total), target, "p=%v", p)
		assert.Less(t, float64(total-last), target, "p=%v: burst must stop as soon as the target is met", p)
	}
}

func TestPercentage_ZeroStillSendsOneRecord(t *testing.T) {
	s, sender := newSession(t, "a\nb\n", playback.Percentage(0))

	require.NoError(t, s.Open(context.Background()))
	assert.Equal(t, []string{"a\n"}, sender.strings())
}

func TestPercentage_FullFile(t *testing.T) {
	s, sender := newSession(t, "a\nb\n", playback.Percentage(1))

	require.NoError(t, s.Open(context.Background()))
	assert.Equal(t, []string{"a\n", "b\n"}, sender.strings())
	assert.False(t, s.Active())
}

func TestEmptyFile(t *testing.T) {
	for _, policy := range []playback.Policy{playback.Count(1), playback.Percentage(0.8)} {
		t.Run(policy.String(), func(t *testing.T) {
			s, sender := newSession(t, "", policy)

			require.NoError(t, s.Open(context.Background()))
			require.NotEmpty(t, sender.sent)
			assert.Empty(t, sender.sent[0])
			assert.False(t, s.Active())

			rearm, err := s.Fire(context.Background())
			require.NoError(t, err)
			assert.False(t, rearm, "must never re-arm a second timer")
			assert.Equal(t, StateIdle, s.State())
		})
	}
}

func TestSteady_OneRecordPerFire(t *testing.T) {
	s, sender := newSession(t, "1\n2\n3\n4\n", playback.Count(1))
	require.NoError(t, s.Open(context.Background()))

	for i, want := range []string{"2\n", "3\n"} {
		rearm, err := s.Fire(context.Background())
		require.NoError(t, err)
		assert.True(t, rearm)
		assert.Len(t, sender.sent, i+2)
		assert.Equal(t, want, string(sender.sent[i+1]))
	}
}

func TestNullDelimiter(t *testing.T) {
	cfg := &Config{
		Delimiter:  0,
		SourcePath: writeCapture(t, "a\nb\x00c\x00"),
		Upfront:    playback.Count(1),
	}
	sender := &captureSender{}
	s, err := New(cfg, sender, WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Open(context.Background()))
	assert.Equal(t, []string{"a\nb\x00"}, sender.strings())
}

func TestIndependentCursors(t *testing.T) {
	path := writeCapture(t, "a\nb\nc\n")
	cfg := &Config{Delimiter: '\n', SourcePath: path, Upfront: playback.Count(2)}

	first := &captureSender{}
	s1, err := New(cfg, first, WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	defer s1.Close()
	second := &captureSender{}
	s2, err := New(cfg, second, WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	defer s2.Close()

	require.NoError(t, s1.Open(context.Background()))
	_, err = s1.Fire(context.Background())
	require.NoError(t, err)
	require.NoError(t, s2.Open(context.Background()))

	assert.Equal(t, []string{"a\n", "b\n", "c\n"}, first.strings())
	assert.Equal(t, []string{"a\n", "b\n"}, second.strings())
}

func TestSendErrorIsFatal(t *testing.T) {
	boom := errors.New("broken pipe")
	cfg := &Config{Delimiter: '\n', SourcePath: writeCapture(t, "a\nb\nc\n"), Upfront: playback.Count(3)}
	sender := &captureSender{failAt: 2, failErr: boom}
	s, err := New(cfg, sender, WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	defer s.Close()

	err = s.Open(context.Background())
	require.ErrorIs(t, err, boom)
	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, metrics.ReasonSend, serr.Op)
	assert.Len(t, sender.sent, 1, "no retry after a failed send")
}

func TestOpen_MissingFile(t *testing.T) {
	cfg := &Config{SourcePath: filepath.Join(t.TempDir(), "gone"), Upfront: playback.Count(1)}
	_, err := New(cfg, &captureSender{})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestStateGuards(t *testing.T) {
	s, _ := newSession(t, "a\nb\n", playback.Count(1))

	_, err := s.Fire(context.Background())
	assert.ErrorIs(t, err, ErrNotSteady, "fire before open")

	require.NoError(t, s.Open(context.Background()))
	assert.ErrorIs(t, s.Open(context.Background()), ErrNotSteady, "second open")

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, StateClosed, s.State())

	_, err = s.Fire(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Open(context.Background()), ErrClosed)
}

func TestFireWhenIdleIsNoop(t *testing.T) {
	s, sender := newSession(t, "a\n", playback.Count(1))
	require.NoError(t, s.Open(context.Background()))
	drain(t, s)
	n := len(sender.sent)

	rearm, err := s.Fire(context.Background())
	require.NoError(t, err)
	assert.False(t, rearm)
	assert.Len(t, sender.sent, n)
}

func TestRecorderTrace(t *testing.T) {
	var buf bytes.Buffer
	rec := recorder.New(&buf)
	s, _ := newSession(t, "a\nbb\n", playback.Count(1),
		WithRecorder(rec), WithClock(clock.NewVirtual(epoch)), WithID("sess-1"))

	require.NoError(t, s.Open(context.Background()))
	drain(t, s)

	got, err := recorder.Load(&buf)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for i := range got {
		assert.True(t, got[i].Time.Equal(epoch))
		got[i].Time = epoch
	}
	assert.Equal(t, recorder.Delivery{Time: epoch, SessionID: "sess-1", Seq: 1, Phase: metrics.PhaseBurst, Bytes: 2}, got[0])
	assert.Equal(t, recorder.Delivery{Time: epoch, SessionID: "sess-1", Seq: 2, Phase: metrics.PhaseSteady, Bytes: 3}, got[1])
}

func TestConfigValidate(t *testing.T) {
	good := Config{SourcePath: "x", Interval: time.Second, Upfront: playback.Count(1)}
	assert.NoError(t, good.Validate())

	noPath := good
	noPath.SourcePath = ""
	assert.Error(t, noPath.Validate())

	negative := good
	negative.Interval = -time.Second
	assert.Error(t, negative.Validate())

	noPolicy := good
	noPolicy.Upfront = playback.Policy{}
	assert.ErrorIs(t, noPolicy.Validate(), playback.ErrInvalidPolicy)
}
