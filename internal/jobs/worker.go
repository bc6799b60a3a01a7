package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

func (m *Manager) handleAuditTask(ctx context.Context, task *asynq.Task) error {
	var event Event
	if err := json.Unmarshal(task.Payload(), &event); err != nil {
		// 壊れたペイロードは再試行しても回復しない
		return fmt.Errorf("invalid audit payload: %v: %w", err, asynq.SkipRetry)
	}
	if event.Action == "" {
		return fmt.Errorf("missing action in payload: %w", asynq.SkipRetry)
	}

	if err := m.store.Append(ctx, &event); err != nil {
		return err
	}
	m.logger.Info("audit event recorded", "action", event.Action, "subject", event.Subject)
	return nil
}
