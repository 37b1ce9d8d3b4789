package service

import (
	"context"
	"encoding/json"

	"github.com/signalgate/signalgate/internal/model"
	"github.com/signalgate/signalgate/internal/normalize"
	"github.com/signalgate/signalgate/internal/pkg/apperrors"
	"github.com/signalgate/signalgate/internal/pkg/logger"
	"github.com/signalgate/signalgate/internal/pkg/metrics"
	"github.com/signalgate/signalgate/internal/queue"
)

const TaskExecuteSignal = "signal.execute"

// PipelineService is the ingress side: it normalizes an inbound alert,
// persists it and hands an execution task to the queue. It never places
// orders itself; acceptance means queued, nothing more.
type PipelineService struct {
	signals   SignalStore
	instances InstanceStore
	q         queue.Queue
}

func NewPipelineService(signals SignalStore, instances InstanceStore, q queue.Queue) *PipelineService {
	return &PipelineService{signals: signals, instances: instances, q: q}
}

// Ingest accepts one webhook payload for the instance. The returned signal
// is in status dispatched when the task made it onto the queue.
func (s *PipelineService) Ingest(ctx context.Context, instanceID, source string, payload map[string]any) (*model.Signal, error) {
	instance, err := s.instances.Get(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if instance == nil {
		return nil, apperrors.NewNotFound("bot instance not found")
	}
	if instance.State != model.InstanceRunning {
		return nil, apperrors.New(apperrors.ErrNotRunning, "bot instance is not running", nil)
	}

	intent := normalize.Normalize(payload)
	if intent.Symbol == "" {
		metrics.SignalsTotal.WithLabelValues(source, "invalid").Inc()
		return nil, apperrors.NewInvalidRequest("payload has no recognizable symbol")
	}
	if intent.Side == "" {
		metrics.SignalsTotal.WithLabelValues(source, "invalid").Inc()
		return nil, apperrors.NewInvalidRequest("payload has no recognizable buy/sell side")
	}

	key := normalize.IdempotencyKey(instanceID, intent)
	sig := &model.Signal{
		BotInstanceID: instanceID,
		Source:        source,
		RawPayload:    normalize.SanitizedJSON(payload),
		ExternalID:    normalize.ExternalID(payload),
		Status:        model.SignalReceived,
	}
	if err := s.signals.Create(ctx, sig); err != nil {
		return nil, err
	}
	metrics.SignalsTotal.WithLabelValues(source, "received").Inc()

	task := ExecutionTask{
		SignalID:       sig.ID,
		BotInstanceID:  instanceID,
		IdempotencyKey: key,
		Intent:         intent,
	}
	payloadBytes, err := json.Marshal(task)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrInternal, "task encode failed", err)
	}
	if err := s.q.Enqueue(ctx, queue.Job{
		ID:      instanceID + ":" + key,
		Name:    TaskExecuteSignal,
		Payload: payloadBytes,
	}); err != nil {
		s.markFailed(ctx, sig.ID)
		return nil, apperrors.New(apperrors.ErrInternal, "signal could not be queued", err)
	}

	if err := s.signals.UpdateStatus(ctx, sig.ID, model.SignalDispatched); err != nil {
		logger.Error("signal status update failed", "signal", sig.ID, "error", err.Error())
	}
	sig.Status = model.SignalDispatched
	return sig, nil
}

func (s *PipelineService) markFailed(ctx context.Context, signalID string) {
	if err := s.signals.UpdateStatus(ctx, signalID, model.SignalFailed); err != nil {
		logger.Error("signal status update failed", "signal", signalID, "error", err.Error())
	}
}
