// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package mail

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"sync"
	"text/template"

	"github.com/samber/oops"

	"github.com/holomush/authcore/internal/audit"
	"github.com/holomush/authcore/internal/auth"
)

var resetTemplate = template.Must(template.New("reset").Parse(`To: {{.To}}
Subject: Reset your password

Hello {{.Name}},

Someone asked to reset the password for this account. If it was you, open
the link below. It can be used once.

{{.Link}}

If you did not ask for this, you can ignore this message.
`))

// LogMailer renders reset messages to a writer instead of delivering them.
// The log line it emits carries the masked address only.
type LogMailer struct {
	mu      sync.Mutex
	out     io.Writer
	baseURL string
	logger  *slog.Logger
}

// NewLogMailer writes rendered messages to out. Reset links are built as
// baseURL?token=<token>.
func NewLogMailer(out io.Writer, baseURL string, logger *slog.Logger) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMailer{out: out, baseURL: baseURL, logger: logger}
}

// SendPasswordReset implements auth.Mailer.
func (m *LogMailer) SendPasswordReset(ctx context.Context, to, rawToken, displayName string) error {
	link, err := resetLink(m.baseURL, rawToken)
	if err != nil {
		return err
	}
	name := displayName
	if name == "" {
		name = "there"
	}

	m.mu.Lock()
	err = resetTemplate.Execute(m.out, struct{ To, Name, Link string }{to, name, link})
	m.mu.Unlock()
	if err != nil {
		return oops.Code("MAIL_RENDER_FAILED").With("to", audit.MaskEmail(to)).Wrap(err)
	}

	m.logger.InfoContext(ctx, "password reset mail written", "to", audit.MaskEmail(to))
	return nil
}

func resetLink(base, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", oops.Code("MAIL_INVALID_BASE_URL").With("base_url", base).Wrap(err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

var _ auth.Mailer = (*LogMailer)(nil)
