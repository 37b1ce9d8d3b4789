package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/signalgate/signalgate/internal/model"
	"github.com/signalgate/signalgate/internal/pkg/apperrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func alertPayload() map[string]any {
	return map[string]any{
		"ticker":   "btcusdt",
		"action":   "buy",
		"price":    "100.5",
		"contracts": "2",
		"secret":   "hunter2",
	}
}

func TestIngestQueuesNormalizedTask(t *testing.T) {
	h := newHarness()
	q := &captureQueue{}
	p := NewPipelineService(h.store, instanceStoreFake{h.store}, q)

	sig, err := p.Ingest(context.Background(), "inst-1", "webhook", alertPayload())
	require.NoError(t, err)
	assert.Equal(t, model.SignalDispatched, sig.Status)

	jobs := q.enqueued()
	require.Len(t, jobs, 1)
	assert.Equal(t, TaskExecuteSignal, jobs[0].Name)

	var task ExecutionTask
	require.NoError(t, json.Unmarshal(jobs[0].Payload, &task))
	assert.Equal(t, "BTCUSDT", task.Intent.Symbol)
	assert.Equal(t, "buy", task.Intent.Side)
	assert.True(t, task.Intent.HasPrice)
	assert.True(t, task.Intent.HasAmount)
	assert.NotEmpty(t, task.IdempotencyKey)
	assert.Equal(t, "inst-1:"+task.IdempotencyKey, jobs[0].ID)
}

func TestIngestRedactsSecretsFromStoredPayload(t *testing.T) {
	h := newHarness()
	p := NewPipelineService(h.store, instanceStoreFake{h.store}, &captureQueue{})

	sig, err := p.Ingest(context.Background(), "inst-1", "webhook", alertPayload())
	require.NoError(t, err)

	stored := h.store.signals[sig.ID]
	assert.NotContains(t, stored.RawPayload, "hunter2")
	assert.Contains(t, stored.RawPayload, "btcusdt")
}

func TestIngestSameAlertYieldsSameJobID(t *testing.T) {
	h := newHarness()
	q := &captureQueue{}
	p := NewPipelineService(h.store, instanceStoreFake{h.store}, q)

	_, err := p.Ingest(context.Background(), "inst-1", "webhook", alertPayload())
	require.NoError(t, err)
	_, err = p.Ingest(context.Background(), "inst-1", "webhook", alertPayload())
	require.NoError(t, err)

	jobs := q.enqueued()
	require.Len(t, jobs, 2)
	assert.Equal(t, jobs[0].ID, jobs[1].ID, "identical alerts must collapse to one job identity")
}

func TestIngestExternalIDDedupIsScopedToInstance(t *testing.T) {
	h := newHarness()
	inst2 := *h.store.instances["inst-1"]
	inst2.ID = "inst-2"
	h.store.instances["inst-2"] = &inst2
	p := NewPipelineService(h.store, instanceStoreFake{h.store}, &captureQueue{})

	payload := alertPayload()
	payload["externalId"] = "tv-alert-7"

	first, err := p.Ingest(context.Background(), "inst-1", "webhook", payload)
	require.NoError(t, err)
	// A redelivery to the same instance collapses onto the original row.
	repeat, err := p.Ingest(context.Background(), "inst-1", "webhook", payload)
	require.NoError(t, err)
	assert.Equal(t, first.ID, repeat.ID)

	// The same upstream ID on another instance is a distinct signal.
	other, err := p.Ingest(context.Background(), "inst-2", "webhook", payload)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
	assert.Equal(t, "inst-2", h.store.signals[other.ID].BotInstanceID)
}

func TestIngestRejectsUnmappablePayload(t *testing.T) {
	h := newHarness()
	p := NewPipelineService(h.store, instanceStoreFake{h.store}, &captureQueue{})

	_, err := p.Ingest(context.Background(), "inst-1", "webhook", map[string]any{"note": "hello"})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrInvalidRequest, apperrors.Wrap(err).Type)
}

func TestIngestRejectsLongShortSides(t *testing.T) {
	h := newHarness()
	p := NewPipelineService(h.store, instanceStoreFake{h.store}, &captureQueue{})

	payload := alertPayload()
	payload["action"] = "long"

	_, err := p.Ingest(context.Background(), "inst-1", "webhook", payload)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrInvalidRequest, apperrors.Wrap(err).Type)
}

func TestIngestStoppedInstanceIs409(t *testing.T) {
	h := newHarness()
	h.store.instances["inst-1"].State = model.InstanceStopped
	p := NewPipelineService(h.store, instanceStoreFake{h.store}, &captureQueue{})

	_, err := p.Ingest(context.Background(), "inst-1", "webhook", alertPayload())
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrNotRunning, apperrors.Wrap(err).Type)
}

func TestIngestEnqueueFailureMarksSignalFailed(t *testing.T) {
	h := newHarness()
	q := &captureQueue{err: errors.New("queue down")}
	p := NewPipelineService(h.store, instanceStoreFake{h.store}, q)

	_, err := p.Ingest(context.Background(), "inst-1", "webhook", alertPayload())
	require.Error(t, err)

	require.Len(t, h.store.signals, 1)
	for _, sig := range h.store.signals {
		assert.Equal(t, model.SignalFailed, sig.Status)
	}
}
