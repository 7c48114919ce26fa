// Package mail 按 SMTP 配置把筛选结果以 HTML 表格邮件发出。
// 未配置 SMTP 或结果为空时静默跳过，发信失败不影响筛选产出。
package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"stockChipDip/internal/config"
	"stockChipDip/internal/model"
	"stockChipDip/internal/result"
	"stockChipDip/internal/trace"
)

const (
	smtpTimeout     = 15 * time.Second
	defaultSMTPPort = 587
	reportSubject   = "筹码低吸筛选结果"
)

// SendReport 发送结果邮件。cfg 未配置或 rows 为空直接返回 nil。
func SendReport(ctx context.Context, cfg *config.SMTP, rows []*model.ScreenResult) error {
	if cfg == nil || !cfg.Enabled() {
		return nil
	}
	if len(rows) == 0 {
		return nil
	}
	trace.Log(ctx, "mail: SendReport to=%s count=%d", cfg.To, len(rows))
	body := buildHTMLTable(rows)
	toList := strings.Split(cfg.To, ",")
	for i := range toList {
		toList[i] = strings.TrimSpace(toList[i])
	}
	if err := send(cfg, reportSubject, body, toList); err != nil {
		trace.Log(ctx, "mail: send err=%v", err)
		return err
	}
	trace.Log(ctx, "mail: sent ok")
	return nil
}

func buildHTMLTable(rows []*model.ScreenResult) string {
	var b strings.Builder
	b.WriteString(`<!DOCTYPE html><html><head><meta charset="UTF-8"><title>筛选结果</title></head><body>`)
	b.WriteString(`<h2>筹码低吸筛选结果（按价格位置升序）</h2>`)
	b.WriteString(`<p>现价低于筹码均价、守住支撑线(ma60)、未触及基准线(ma20)。</p>`)
	b.WriteString(`<table border="1" cellspacing="0" cellpadding="8" style="border-collapse: collapse; font-size: 14px;">`)
	b.WriteString(`<thead><tr style="background: #eee;">` +
		`<th>代码</th><th>名称</th><th>现价</th><th>筹码均价</th><th>主力成本</th>` +
		`<th>基准线</th><th>支撑线</th><th>价格位置</th><th>量比</th><th>趋势</th>` +
		`<th>距基准线</th><th>距均价</th></tr></thead><tbody>`)
	for _, r := range result.FormatRows(rows) {
		b.WriteString(fmt.Sprintf(
			"<tr><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td></tr>",
			escapeHTML(r.Code), escapeHTML(r.Name), r.CurrentPrice, r.AvgCost, r.MainForceCost,
			r.BasePrice, r.SupportPrice, r.PricePosition, r.VolumeRatio, r.Trend,
			r.BaseDistance, r.AvgCostDistance))
	}
	b.WriteString("</tbody></table></body></html>")
	return b.String()
}

func escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, `"`, "&quot;")
	return s
}

func send(cfg *config.SMTP, subject, htmlBody string, to []string) error {
	port := cfg.Port
	if port == 0 {
		port = defaultSMTPPort
	}
	addr := net.JoinHostPort(cfg.Server, strconv.Itoa(port))

	var conn net.Conn
	var err error
	if port == 465 {
		conn, err = tls.DialWithDialer(&net.Dialer{Timeout: smtpTimeout}, "tcp", addr, &tls.Config{ServerName: cfg.Server})
	} else {
		conn, err = net.DialTimeout("tcp", addr, smtpTimeout)
	}
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, cfg.Server)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	defer client.Close()

	if port != 465 {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: cfg.Server}); err != nil {
				return fmt.Errorf("starttls: %w", err)
			}
		}
	}

	if cfg.Password != "" {
		auth := smtp.PlainAuth("", cfg.User, cfg.Password, cfg.Server)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(cfg.From); err != nil {
		return fmt.Errorf("smtp mail: %w", err)
	}
	for _, t := range to {
		if t == "" {
			continue
		}
		if err := client.Rcpt(t); err != nil {
			return fmt.Errorf("smtp rcpt %s: %w", t, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	headers := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n",
		cfg.From, strings.Join(to, ","), subject)
	if _, err := w.Write([]byte(headers + htmlBody)); err != nil {
		_ = w.Close()
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close: %w", err)
	}
	return client.Quit()
}

// MustSendReport 发信失败只记日志，不向调用方传播。
func MustSendReport(ctx context.Context, cfg *config.SMTP, rows []*model.ScreenResult) {
	if len(rows) == 0 {
		trace.Log(ctx, "mail: 结果为空，不发邮件")
		return
	}
	if cfg == nil || !cfg.Enabled() {
		trace.Log(ctx, "mail: 未配置 SMTP，跳过")
		return
	}
	if err := SendReport(ctx, cfg, rows); err != nil {
		trace.Log(ctx, "mail: 发送失败 err=%v", err)
		return
	}
	trace.Log(ctx, "mail: 已发送 to=%s count=%d", cfg.To, len(rows))
}
