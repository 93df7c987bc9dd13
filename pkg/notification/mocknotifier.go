package notification

import "sync"

// MockNotifier records every notification instead of delivering it.
type MockNotifier struct {
	mu                sync.Mutex
	SentNotifications []SentNotification
}

type SentNotification struct {
	Type     NoticeType
	Data     NotificationData
	Template NoticeTemplate
}

func (m *MockNotifier) Send(noticeType NoticeType, notification NotificationData, template NoticeTemplate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SentNotifications = append(m.SentNotifications, SentNotification{Type: noticeType, Data: notification, Template: template})
	return nil
}

// Sent returns a copy of the recorded notifications.
func (m *MockNotifier) Sent() []SentNotification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentNotification, len(m.SentNotifications))
	copy(out, m.SentNotifications)
	return out
}
