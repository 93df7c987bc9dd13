// Package notification delivers account notices such as password reset links
// and password change confirmations.
//
// A NotificationManager maps each NoticeType to a template per delivery
// system and hands rendered notices to the registered Notifier. EmailNotifier
// sends through SMTP with github.com/wneessen/go-mail; MockNotifier records
// notices for tests.
//
//	nm, err := notification.NewNotificationManager(
//	    notification.WithSMTP(notification.SMTPConfig{Host: "localhost", Port: 1025, From: "noreply@example.com"}),
//	    notification.WithDefaultTemplates(),
//	)
//	err = nm.Send(notification.PasswordResetNotice, notification.NotificationData{
//	    To:   "user@example.com",
//	    Data: map[string]string{"ResetLink": link},
//	})
package notification
