package ui

import (
	"fmt"
	"os/exec"
	"runtime"
)

// NotificationSender delivers one desktop notification.
type NotificationSender interface {
	Send(title, message string) error
}

// execSender shells out to the platform's notification command.
type execSender struct {
	build func(title, message string) *exec.Cmd
}

func (s *execSender) Send(title, message string) error {
	return s.build(title, message).Run()
}

// platformSender returns the sender for the current OS, or nil when the
// platform has no supported notification mechanism.
func platformSender() NotificationSender {
	switch runtime.GOOS {
	case "linux":
		return &execSender{build: func(title, message string) *exec.Cmd {
			return exec.Command("notify-send", title, message)
		}}
	case "darwin":
		return &execSender{build: func(title, message string) *exec.Cmd {
			script := fmt.Sprintf("display notification %q with title %q", message, title)
			return exec.Command("osascript", "-e", script)
		}}
	case "windows":
		return &execSender{build: func(title, message string) *exec.Cmd {
			return exec.Command("powershell", "-NoProfile", "-NonInteractive", "-Command", toastScript(title, message))
		}}
	}
	return nil
}

func toastScript(title, message string) string {
	return fmt.Sprintf(`
		[Windows.UI.Notifications.ToastNotificationManager, Windows.UI.Notifications, ContentType = WindowsRuntime] | Out-Null
		[Windows.Data.Xml.Dom.XmlDocument, Windows.Data.Xml.Dom.XmlDocument, ContentType = WindowsRuntime] | Out-Null
		$payload = @"
<toast><visual><binding template="ToastText02">
	<text id="1">%s</text>
	<text id="2">%s</text>
</binding></visual></toast>
"@
		$document = [Windows.Data.Xml.Dom.XmlDocument]::new()
		$document.LoadXml($payload)
		$notification = [Windows.UI.Notifications.ToastNotification]::new($document)
		[Windows.UI.Notifications.ToastNotificationManager]::CreateToastNotifier("kemonograb").Show($notification)
	`, title, message)
}

// Notifier pairs console status lines with desktop notifications.
// Delivery failures are swallowed; a notification is never worth
// failing a run over.
type Notifier struct {
	sender NotificationSender
}

// NewNotifier creates a Notifier for the current platform.
func NewNotifier() *Notifier {
	return &Notifier{sender: platformSender()}
}

// announce prints an optional console line and forwards the raw text to
// the desktop sender when one exists.
func (n *Notifier) announce(line, title, message string) {
	if line != "" {
		fmt.Printf("\n%s\n", line)
	}
	if n.sender != nil {
		_ = n.sender.Send(title, message)
	}
}

// SendNotification announces a neutral event.
func (n *Notifier) SendNotification(title, message string) {
	var line string
	if !quietMode {
		line = Cyan(title) + ": " + Yellow(message)
	}
	n.announce(line, title, message)
}

// SendError announces a failure. Errors print even in quiet mode.
func (n *Notifier) SendError(title, message string) {
	n.announce(Red(title)+": "+Red(message), title, message)
}

// SendSuccess announces a completed run.
func (n *Notifier) SendSuccess(title, message string) {
	var line string
	if !quietMode {
		line = Green(title) + ": " + Green(message)
	}
	n.announce(line, title, message)
}
