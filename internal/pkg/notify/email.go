package notify

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"gopkg.in/gomail.v2"

	"github.com/PhantomL4rd/mirapuri-stats/internal/config"
)

// EmailNotifier 通过 SMTP 发送发布报告。
type EmailNotifier struct {
	cfg    *config.EmailConfig
	logger *slog.Logger
	send   func(m *gomail.Message) error
}

// NewEmailNotifier 创建一个新的邮件通知器。
func NewEmailNotifier(cfg *config.EmailConfig, logger *slog.Logger) *EmailNotifier {
	n := &EmailNotifier{cfg: cfg, logger: logger}
	n.send = func(m *gomail.Message) error {
		d := gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass)
		return d.DialAndSend(m)
	}
	return n
}

// Configured 是否具备发送邮件所需的最少配置。
func (n *EmailNotifier) Configured() bool {
	return n.cfg != nil && n.cfg.SMTPHost != "" && n.cfg.FromEmail != "" && strings.TrimSpace(n.cfg.NotifyTo) != ""
}

// Send 发送发布报告。配置不完整时跳过。
func (n *EmailNotifier) Send(ctx context.Context, report *Report) error {
	if !n.Configured() {
		n.logger.Warn("email config missing, skip publish report")
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.cfg.FromEmail)
	m.SetHeader("To", n.cfg.NotifyTo)
	m.SetHeader("Subject", Subject(report))
	m.SetBody("text/html", BuildHTMLBody(report))

	if err := n.send(m); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	n.logger.Info("publish report sent", slog.String("to", n.cfg.NotifyTo), slog.String("version", report.Version))
	return nil
}

// Subject 报告邮件标题。
func Subject(r *Report) string {
	switch {
	case r.Err != nil:
		return "[mirapuri-stats] 发布失败"
	case r.DryRun:
		return "[mirapuri-stats] 试运行报告"
	default:
		return fmt.Sprintf("[mirapuri-stats] 发布完成 %s", r.Version)
	}
}

// BuildHTMLBody 生成报告正文。
func BuildHTMLBody(r *Report) string {
	var sb strings.Builder
	sb.WriteString(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8" /></head>
<body style="font-family: Arial, sans-serif; color: #1f2937;">
<div style="max-width: 600px; margin: 24px auto;">
<table style="border-collapse: collapse; width: 100%;">
`)
	row := func(k, v string) {
		fmt.Fprintf(&sb, "<tr><td style=\"padding:4px 8px;color:#6b7280;\">%s</td><td style=\"padding:4px 8px;\">%s</td></tr>\n",
			html.EscapeString(k), html.EscapeString(v))
	}

	status := "OK"
	if r.Err != nil {
		status = "FAILED"
	}
	row("status", status)
	if r.DryRun {
		row("mode", "dry-run")
	}
	row("version", orDash(r.Version))
	row("previous_version", orDash(r.PreviousVersion))
	row("items", fmt.Sprint(r.Items))
	row("usage", fmt.Sprint(r.Usage))
	row("pairs", fmt.Sprint(r.Pairs))
	row("rows_written", fmt.Sprint(r.RowsWritten))
	row("data_from", formatTime(r.DataFrom))
	row("data_to", formatTime(r.DataTo))
	if len(r.RemovedVersions) > 0 {
		row("removed_versions", strings.Join(r.RemovedVersions, ", "))
	}
	if r.RawRowsDeleted > 0 {
		row("raw_rows_deleted", fmt.Sprint(r.RawRowsDeleted))
	}
	row("duration", r.Duration.Round(time.Second).String())
	if r.Err != nil {
		row("error", r.Err.Error())
	}

	sb.WriteString("</table>\n</div>\n</body>\n</html>")
	return sb.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
