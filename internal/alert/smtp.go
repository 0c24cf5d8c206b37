// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package alert

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"
)

// SMTPTransport emails alerts as plain UTF-8 MIME text. Port 465 dials with
// implicit TLS; any other port dials in clear and upgrades via STARTTLS when
// UseTLS is set. Auth runs only when both user and password are present.
type SMTPTransport struct {
	Host     string
	Port     int
	User     string
	Password string
	UseTLS   bool
	From     string
	To       string // comma-separated recipient list

	DialTimeout time.Duration
}

// Name implements Transport.
func (*SMTPTransport) Name() string { return "smtp" }

// Send implements Transport. SMTP is a blocking protocol; callers bound it
// with a context deadline.
func (t *SMTPTransport) Send(ctx context.Context, ev Event) error {
	recipients := splitRecipients(t.To)
	if len(recipients) == 0 {
		return fmt.Errorf("smtp transport has no recipients")
	}
	msg := t.message(ev, recipients)

	timeout := t.DialTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if deadline, ok := ctx.Deadline(); ok {
		if until := time.Until(deadline); until < timeout {
			timeout = until
		}
	}

	addr := fmt.Sprintf("%s:%d", t.Host, t.Port)
	tlsConfig := &tls.Config{ServerName: t.Host}

	var client *smtp.Client
	if t.Port == 465 {
		conn, err := tls.DialWithDialer(&net.Dialer{Timeout: timeout}, "tcp", addr, tlsConfig)
		if err != nil {
			return fmt.Errorf("smtp tls dial %s: %w", addr, err)
		}
		client, err = smtp.NewClient(conn, t.Host)
		if err != nil {
			conn.Close()
			return fmt.Errorf("smtp handshake %s: %w", addr, err)
		}
	} else {
		conn, err := (&net.Dialer{Timeout: timeout}).DialContext(ctx, "tcp", addr)
		if err != nil {
			return fmt.Errorf("smtp dial %s: %w", addr, err)
		}
		client, err = smtp.NewClient(conn, t.Host)
		if err != nil {
			conn.Close()
			return fmt.Errorf("smtp handshake %s: %w", addr, err)
		}
		if t.UseTLS {
			if err := client.StartTLS(tlsConfig); err != nil {
				client.Close()
				return fmt.Errorf("smtp starttls %s: %w", addr, err)
			}
		}
	}
	defer client.Quit()

	if t.User != "" && t.Password != "" {
		if err := client.Auth(smtp.PlainAuth("", t.User, t.Password, t.Host)); err != nil {
			return fmt.Errorf("smtp auth as %s: %w", t.User, err)
		}
	}
	if err := client.Mail(t.From); err != nil {
		return fmt.Errorf("smtp mail from %s: %w", t.From, err)
	}
	for _, rcpt := range recipients {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp rcpt %s: %w", rcpt, err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write([]byte(msg)); err != nil {
		w.Close()
		return fmt.Errorf("smtp write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close body: %w", err)
	}
	return nil
}

func (t *SMTPTransport) message(ev Event, recipients []string) string {
	subject := fmt.Sprintf("[AI Defense Alert] Suspicious Activity Detected - %s", ev.Reason)
	body := fmt.Sprintf(`Suspicious activity detected by the defense pipeline:

Reason: %s
Timestamp (UTC): %s
IP Address: %s
User Agent: %s

Full Details:
%v
`, ev.Reason, ev.TimestampUTC, ev.IP, ev.UserAgent, ev.Details)

	var sb strings.Builder
	fmt.Fprintf(&sb, "From: %s\r\n", t.From)
	fmt.Fprintf(&sb, "To: %s\r\n", strings.Join(recipients, ", "))
	fmt.Fprintf(&sb, "Subject: %s\r\n", subject)
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(body)
	return sb.String()
}

func splitRecipients(to string) []string {
	var out []string
	for _, part := range strings.Split(to, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
