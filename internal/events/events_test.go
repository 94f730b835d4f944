package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/aldoetobex/legal-aid-backend/pkg/models"
)

func TestFromActivity(t *testing.T) {
	at := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	a := &models.CaseActivity{
		ID:        7,
		CaseID:    uuid.New(),
		ActorID:   uuid.New(),
		Action:    "Status changed",
		Details:   datatypes.JSON(`{"old_status":"open","new_status":"in_progress"}`),
		CreatedAt: at,
	}

	ev := FromActivity(a, "SLLS-2403-0001")
	assert.Equal(t, int64(7), ev.ActivityID)
	assert.Equal(t, a.CaseID, ev.CaseID)
	assert.Equal(t, "SLLS-2403-0001", ev.CaseNumber)
	assert.Equal(t, at, ev.At)

	body, err := json.Marshal(ev)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, "Status changed", decoded["action"])
	assert.Equal(t, map[string]any{"old_status": "open", "new_status": "in_progress"}, decoded["details"])
}

func TestNewWithoutBrokersIsNop(t *testing.T) {
	p := New(nil, "case-activities", nil)
	_, ok := p.(NopPublisher)
	require.True(t, ok)
	assert.NoError(t, p.Publish(context.Background(), CaseEvent{}))
	assert.NoError(t, p.Close())
}

func TestNewWithBrokers(t *testing.T) {
	p := New([]string{"localhost:9092"}, "case-activities", nil)
	kp, ok := p.(*KafkaPublisher)
	require.True(t, ok)
	assert.Equal(t, "case-activities", kp.w.Topic)
	assert.NoError(t, p.Close())
}

func TestKafkaWriterDoesNotBlockRequests(t *testing.T) {
	kp := NewKafkaPublisher([]string{"127.0.0.1:1"}, "case-activities", slog.New(slog.DiscardHandler))
	t.Cleanup(func() { _ = kp.Close() })

	assert.True(t, kp.w.Async)
	assert.LessOrEqual(t, kp.w.BatchTimeout, 10*time.Millisecond)
	require.NotNil(t, kp.w.Completion)

	start := time.Now()
	err := kp.Publish(context.Background(), CaseEvent{CaseID: uuid.New(), Action: "Case created"})
	assert.NoError(t, err)
	assert.Less(t, time.Since(start), 200*time.Millisecond)
}

func TestKafkaDeliveryFailureIsLogged(t *testing.T) {
	var buf bytes.Buffer
	kp := NewKafkaPublisher([]string{"127.0.0.1:1"}, "case-activities", slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { _ = kp.Close() })
	caseID := uuid.NewString()

	kp.w.Completion([]kafka.Message{{Key: []byte(caseID)}}, nil)
	assert.Empty(t, buf.String())

	kp.w.Completion([]kafka.Message{{Key: []byte(caseID)}}, errors.New("broker unreachable"))
	assert.Contains(t, buf.String(), "case event not delivered")
	assert.Contains(t, buf.String(), caseID)
	assert.Contains(t, buf.String(), "broker unreachable")
}
