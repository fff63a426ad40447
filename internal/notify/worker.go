package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/pharmatech-uz/pharmacy-core/internal/domain"
)

// Worker consumes notification events and delivers them to the external
// notification gateway. Malformed events are dropped; gateway/transport
// failures are returned so the message is redelivered.
type Worker struct {
	gatewayURL string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewWorker(gatewayURL string, client *http.Client, logger *slog.Logger) *Worker {
	return &Worker{
		gatewayURL: gatewayURL,
		httpClient: client,
		logger:     logger,
	}
}

func (w *Worker) Handle(ctx context.Context, payload []byte) error {
	var event domain.NotificationEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		w.logger.Error("dropping malformed notification event", "error", err)
		return nil
	}

	w.logger.Info("delivering notification", "user_id", event.UserID, "type", event.Type, "send_sms", event.SendSMS)

	if err := w.deliver(ctx, event); err != nil {
		w.logger.Error("failed to deliver notification", "error", err, "user_id", event.UserID, "type", event.Type)
		return fmt.Errorf("deliver notification: %w", err)
	}

	return nil
}

func (w *Worker) deliver(ctx context.Context, event domain.NotificationEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.gatewayURL+"/notifications", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("notification gateway returned status %d", resp.StatusCode)
	}

	return nil
}
