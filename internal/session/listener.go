package session

import (
	"context"
	"log/slog"

	"github.com/ashureev/meetwatch/internal/notify"
	"github.com/ashureev/meetwatch/internal/telegram"
)

// attachListener installs the monitoring callback on an authorized
// connection. Installed exactly once per LiveConnection, at completion of
// the handshake or on resume.
func (m *Manager) attachListener(client telegram.Client, userID int64) {
	client.OnNewMessage(func(ctx context.Context, msg telegram.IncomingMessage) {
		m.handleIncoming(userID, msg)
	})
}

// handleIncoming runs the detector synchronously (it is cheap and pure) and
// pushes persistence and notification to a goroutine so slow downstream work
// never blocks the connection's update delivery. Downstream failures are
// logged, not retried; delivery here is best-effort by contract.
func (m *Manager) handleIncoming(userID int64, msg telegram.IncomingMessage) {
	matched := m.detector.Match(msg.Text)
	if len(matched) == 0 {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), m.downstreamTimeout)
		defer cancel()

		messageID, err := m.repo.SaveDetectedMessage(ctx, userID, msg.ChatID, msg.Text, matched)
		if err != nil {
			slog.Error("failed to save detected message",
				"user_id", userID, "chat_id", msg.ChatID, "error", err)
			return
		}

		m.notifier.MeetingDetected(ctx, notify.MeetingDetection{
			UserID:    userID,
			ChatID:    msg.ChatID,
			MessageID: messageID,
			Text:      msg.Text,
			Keywords:  matched,
		})
		slog.Info("meeting detected",
			"user_id", userID, "chat_id", msg.ChatID, "keywords", matched)
	}()
}
