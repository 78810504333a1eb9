// internal/notify/notifier.go
// Package notify 定义通知出口
// 通知在状态变更提交后异步派发,失败只记录日志,不影响状态机
package notify

import (
	"fmt"
	"net/smtp"

	"accontrol/internal/logger"
)

// NotificationKind 通知类型
type NotificationKind string

const (
	KindWindowOpenShutoff NotificationKind = "window-open-shutoff"
	KindScheduledShutoff  NotificationKind = "scheduled-shutoff"
	KindTempViolation     NotificationKind = "temperature-violation"
)

// Notifier 通知出口接口
type Notifier interface {
	Send(roomNumber, recipient string, kind NotificationKind) error
}

// LogNotifier 只写日志的通知实现,默认使用
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(roomNumber, recipient string, kind NotificationKind) error {
	logger.Info("notification for room %s (%s): %s", roomNumber, recipient, kind)
	return nil
}

// SMTPConfig 邮件服务器配置
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPNotifier 通过SMTP发送邮件告警
type SMTPNotifier struct {
	config SMTPConfig
}

func NewSMTPNotifier(config SMTPConfig) *SMTPNotifier {
	return &SMTPNotifier{config: config}
}

var notificationBodies = map[NotificationKind]string{
	KindWindowOpenShutoff: "Warning: Window has been opened while AC is running! The AC has been turned off.",
	KindScheduledShutoff:  "Your AC was turned off by the scheduled building-wide shutoff.",
	KindTempViolation:     "The temperature in your room exceeded the allowed range and the AC was turned off.",
}

func (n *SMTPNotifier) Send(roomNumber, recipient string, kind NotificationKind) error {
	if recipient == "" {
		return fmt.Errorf("no recipient configured for room %s", roomNumber)
	}

	subject := fmt.Sprintf("AC Control Alert - Room %s", roomNumber)
	body, ok := notificationBodies[kind]
	if !ok {
		body = string(kind)
	}

	msg := []byte(fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		n.config.From, recipient, subject, body))

	addr := fmt.Sprintf("%s:%d", n.config.Host, n.config.Port)
	auth := smtp.PlainAuth("", n.config.Username, n.config.Password, n.config.Host)
	if err := smtp.SendMail(addr, auth, n.config.From, []string{recipient}, msg); err != nil {
		return fmt.Errorf("failed to send mail to %s: %v", recipient, err)
	}
	return nil
}
