package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optiforge/platform/optiforge/internal/models"
)

type fakeWriter struct {
	mu       sync.Mutex
	failures int
	calls    int
	msgs     []kafka.Message
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return errors.New("leader not available")
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

type fakeUploader struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakeUploader) Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = input
	b, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	f.body = b
	return &manager.UploadOutput{Key: input.Key}, nil
}

func solvedRun() models.RunRecord {
	at := time.Date(2024, time.February, 9, 23, 59, 0, 0, time.UTC)
	obj := int64(10)
	return models.RunRecord{
		ID:            "run-42",
		Status:        models.RunStatusSolved,
		CreatedAt:     at.Add(-time.Minute),
		UpdatedAt:     at,
		ProblemSpec:   models.ProblemSpec{Text: "minimize cost", Tables: []models.TableSpec{}},
		Solution:      &models.SolveResult{Status: models.SolveStatusOptimal, ObjectiveValue: &obj, Variables: map[string]int64{"x": 0, "y": 5}},
		ProviderName:  "stub",
		ProviderModel: "stub-model",
		Audit: models.AuditLog{Events: []models.AuditEvent{
			{At: at.Add(-time.Minute), Action: models.AuditActionCreated, Details: map[string]string{}},
			{At: at, Action: models.AuditActionSolved, Details: map[string]string{"status": "solved"}},
		}},
	}
}

func TestEventFromUsesLastEvent(t *testing.T) {
	ev, ok := EventFrom(solvedRun())
	require.True(t, ok)
	assert.Equal(t, "run-42", ev.RunID)
	assert.Equal(t, models.AuditActionSolved, ev.Action)
	assert.Equal(t, "solved", ev.Details["status"])
	assert.Equal(t, "stub", ev.ProviderName)

	_, ok = EventFrom(models.RunRecord{ID: "empty"})
	assert.False(t, ok)
}

func TestKafkaSinkRetriesAndKeysByRun(t *testing.T) {
	w := &fakeWriter{failures: 2}
	sink := newKafkaSink(w, KafkaConfig{MaxAttempts: 3, Backoff: time.Millisecond})

	ev, _ := EventFrom(solvedRun())
	require.NoError(t, sink.Publish(context.Background(), ev))
	assert.Equal(t, 3, w.calls)
	require.Len(t, w.msgs, 1)
	assert.Equal(t, []byte("run-42"), w.msgs[0].Key)

	var decoded Event
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	assert.Equal(t, ev, decoded)
}

func TestKafkaSinkGivesUp(t *testing.T) {
	w := &fakeWriter{failures: 10}
	sink := newKafkaSink(w, KafkaConfig{MaxAttempts: 2, Backoff: time.Millisecond})

	ev, _ := EventFrom(solvedRun())
	err := sink.Publish(context.Background(), ev)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed after 2 attempts")
	assert.Equal(t, 2, w.calls)
}

func TestNewKafkaSinkValidatesConfig(t *testing.T) {
	_, err := NewKafkaSink(KafkaConfig{Topic: "optiforge.runs"})
	assert.Error(t, err)
	_, err = NewKafkaSink(KafkaConfig{Brokers: []string{"localhost:9092"}})
	assert.Error(t, err)
}

func TestS3ArchiverWritesCanonicalRun(t *testing.T) {
	up := &fakeUploader{}
	a := &S3Archiver{bucket: "runs-bucket", prefix: "prod", uploader: up}

	key, err := a.ArchiveRun(context.Background(), solvedRun())
	require.NoError(t, err)
	assert.Equal(t, "prod/runs/2024/02/09/run-42.json", key)
	assert.Equal(t, "runs-bucket", aws.ToString(up.input.Bucket))
	assert.Equal(t, key, aws.ToString(up.input.Key))
	assert.Equal(t, "solved", up.input.Metadata["run-status"])

	var decoded models.RunRecord
	require.NoError(t, json.Unmarshal(up.body, &decoded))
	assert.Equal(t, solvedRun(), decoded)
	assert.Contains(t, string(up.body), `"audit":{"events":[`)
}

func TestS3ArchiverPropagatesUploadError(t *testing.T) {
	a := &S3Archiver{bucket: "b", uploader: &fakeUploader{err: errors.New("access denied")}}
	_, err := a.ArchiveRun(context.Background(), solvedRun())
	assert.ErrorContains(t, err, "access denied")
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (r *recordingSink) Publish(ctx context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func TestMultiSinkPublishesToAll(t *testing.T) {
	ok := &recordingSink{}
	failing := &recordingSink{err: errors.New("broker down")}
	ev, _ := EventFrom(solvedRun())

	err := MultiSink{ok, failing}.Publish(context.Background(), ev)
	assert.ErrorContains(t, err, "broker down")
	assert.Len(t, ok.events, 1)
	assert.Len(t, failing.events, 1)

	assert.NoError(t, MultiSink{}.Publish(context.Background(), ev))
}

func TestLogSinkWritesStructuredEvent(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	w := &fakeWriter{}
	sink := MultiSink{LogSink{Logger: logger}, newKafkaSink(w, KafkaConfig{MaxAttempts: 1, Backoff: time.Millisecond})}

	ev, _ := EventFrom(solvedRun())
	require.NoError(t, sink.Publish(context.Background(), ev))
	assert.Len(t, w.msgs, 1)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "audit event", line["msg"])
	assert.Equal(t, "run-42", line["run_id"])
	assert.Equal(t, "solved", line["action"])
	assert.Equal(t, "solved", line["detail.status"])
	assert.Equal(t, "stub", line["provider"])
}

func TestLogSinkWithoutLoggerIsNoop(t *testing.T) {
	ev, _ := EventFrom(solvedRun())
	assert.NoError(t, LogSink{}.Publish(context.Background(), ev))
}
