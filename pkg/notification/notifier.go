package notification

// NoticeType identifies a kind of message, e.g. a password reset link.
type NoticeType string

const (
	PasswordResetNotice   NoticeType = "password_reset"
	PasswordChangedNotice NoticeType = "password_changed"
)

// NotificationSystem is a delivery channel.
type NotificationSystem string

const EmailSystem NotificationSystem = "email"

type NotificationData struct {
	To   string            // Recipient address
	Data map[string]string // Template values
}

// NoticeTemplate holds the templates of one notice. Text and Html are Go
// templates executed against NotificationData.Data.
type NoticeTemplate struct {
	Subject string
	Text    string
	Html    string
}

type Notifier interface {
	Send(noticeType NoticeType, notification NotificationData, template NoticeTemplate) error
}
