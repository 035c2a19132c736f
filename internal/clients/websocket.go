package clients

import (
	"context"
	"fmt"

	"school-ledger/internal/domain"
	ws "school-ledger/internal/transport/websocket"
)

type WebSocketClient struct {
	hub *ws.Hub
}

func NewWebSocketClient(hub *ws.Hub) *WebSocketClient {
	return &WebSocketClient{
		hub: hub,
	}
}

// NotifyPaymentCollected tells every open socket of the tenant that a receipt was issued.
func (c *WebSocketClient) NotifyPaymentCollected(
	ctx context.Context,
	tenantID string,
	studentID string,
	receiptNo string,
	amount domain.Money,
) error {
	if c.hub == nil {
		return nil
	}

	c.hub.Broadcast(tenantID, &ws.Message{
		Type:    "payment_collected",
		Channel: fmt.Sprintf("payments#%s", studentID),
		Data: map[string]any{
			"student_id": studentID,
			"receipt_no": receiptNo,
			"amount":     amount,
		},
	})
	return nil
}

func (c *WebSocketClient) NotifyExportProgress(
	ctx context.Context,
	tenantID string,
	userID int64,
	exportID string,
	progress float64,
	stage string,
) error {
	if c.hub == nil {
		return nil
	}

	data := map[string]any{
		"id":       exportID,
		"progress": progress,
	}
	if stage != "" {
		data["stage"] = stage
	}

	c.hub.Broadcast(tenantID, &ws.Message{
		UserID:  userID,
		Type:    "export_progress",
		Channel: fmt.Sprintf("notify_user_of_progress_export#%d", userID),
		Data:    data,
	})
	return nil
}

func (c *WebSocketClient) NotifyExportComplete(
	ctx context.Context,
	tenantID string,
	userID int64,
	exportID string,
	url string,
	filename string,
) error {
	if c.hub == nil {
		return nil
	}

	c.hub.Broadcast(tenantID, &ws.Message{
		UserID:  userID,
		Type:    "export_complete",
		Channel: fmt.Sprintf("notify_user_when_export_complete#%d", userID),
		Data: map[string]any{
			"id":       exportID,
			"url":      url,
			"filename": filename,
			"user_id":  userID,
		},
	})
	return nil
}

func (c *WebSocketClient) NotifyExportFailed(ctx context.Context, tenantID string, userID int64, exportID string, errMsg string) error {
	if c.hub == nil {
		return nil
	}

	c.hub.Broadcast(tenantID, &ws.Message{
		UserID:  userID,
		Type:    "export_failed",
		Channel: fmt.Sprintf("notify_user_when_export_failed#%d", userID),
		Data: map[string]any{
			"id":      exportID,
			"message": errMsg,
			"user_id": userID,
		},
	})
	return nil
}
