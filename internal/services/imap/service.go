// -----------------------------------------------------------------------
// IMAP Service - polls a mailbox for one-time verification codes sent
// during vendor login flows.
// -----------------------------------------------------------------------

package imap

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	goimap "github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/billfetch/internal/common"
)

// pollInterval is the fixed gap between inbox checks while waiting for a code.
const pollInterval = 10 * time.Second

// Email represents a fetched email message
type Email struct {
	ID      uint32
	From    string
	Subject string
	Body    string
	Date    time.Time
}

// Service reads OTP mails from the configured inbox.
type Service struct {
	config common.ImapConfig
	logger arbor.ILogger
}

// NewService creates a new IMAP service
func NewService(config common.ImapConfig, logger arbor.ILogger) *Service {
	return &Service{
		config: config,
		logger: logger,
	}
}

// IsConfigured reports whether the minimum connection settings are present.
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Username != "" && s.config.Password != ""
}

// WaitForCode polls the inbox until a mail matching the subject filter arrives
// and a verification code can be extracted from it. Mails older than maxAge
// are ignored so a code from a previous login attempt is never reused. The
// overall wait is bounded by the caller's context deadline.
func (s *Service) WaitForCode(ctx context.Context, subjectFilter string, maxAge time.Duration) (string, error) {
	if !s.IsConfigured() {
		return "", fmt.Errorf("IMAP not configured")
	}

	s.logger.Info().
		Str("subject_filter", subjectFilter).
		Msg("Waiting for verification code email")

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		emails, err := s.fetchUnreadEmails(subjectFilter)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Inbox poll failed, will retry")
		}

		for _, email := range emails {
			if maxAge > 0 && time.Since(email.Date) > maxAge {
				s.logger.Debug().
					Int("seq", int(email.ID)).
					Str("date", email.Date.Format(time.RFC3339)).
					Msg("Skipping stale verification email")
				continue
			}

			code := ExtractCode(email.Subject + "\n" + email.Body)
			if code == "" {
				continue
			}

			if err := s.markAsRead(email.ID); err != nil {
				s.logger.Warn().Err(err).Int("seq", int(email.ID)).Msg("Failed to mark verification email as read")
			}

			s.logger.Info().Int("seq", int(email.ID)).Msg("Verification code received")
			return code, nil
		}

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("timed out waiting for verification code: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// connect dials and authenticates a fresh IMAP session with INBOX selected.
func (s *Service) connect() (*client.Client, error) {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	var c *client.Client
	var err error
	if s.config.UseTLS {
		c, err = client.DialTLS(addr, nil)
	} else {
		c, err = client.Dial(addr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to IMAP server: %w", err)
	}

	if err := c.Login(s.config.Username, s.config.Password); err != nil {
		c.Logout()
		return nil, fmt.Errorf("IMAP login failed: %w", err)
	}

	if _, err := c.Select("INBOX", false); err != nil {
		c.Logout()
		return nil, fmt.Errorf("failed to select INBOX: %w", err)
	}

	return c, nil
}

// fetchUnreadEmails fetches unread emails with optional subject filter
func (s *Service) fetchUnreadEmails(subjectFilter string) ([]Email, error) {
	c, err := s.connect()
	if err != nil {
		return nil, err
	}
	defer c.Logout()

	criteria := goimap.NewSearchCriteria()
	criteria.WithoutFlags = []string{goimap.SeenFlag}

	seqNums, err := c.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search for unseen messages: %w", err)
	}

	if len(seqNums) == 0 {
		return nil, nil
	}

	seqSet := new(goimap.SeqSet)
	seqSet.AddNum(seqNums...)

	messages := make(chan *goimap.Message, len(seqNums))
	section := &goimap.BodySectionName{}

	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqSet, []goimap.FetchItem{goimap.FetchEnvelope, goimap.FetchFlags, section.FetchItem()}, messages)
	}()

	var emails []Email
	for msg := range messages {
		if msg == nil || msg.Envelope == nil {
			continue
		}

		subject := msg.Envelope.Subject
		if subjectFilter != "" && !strings.Contains(strings.ToLower(subject), strings.ToLower(subjectFilter)) {
			continue
		}

		body, err := s.parseMessageBody(msg, section)
		if err != nil {
			s.logger.Warn().Err(err).Int("seq", int(msg.SeqNum)).Msg("Failed to parse message body")
			continue
		}

		from := ""
		if len(msg.Envelope.From) > 0 {
			from = msg.Envelope.From[0].Address()
		}

		emails = append(emails, Email{
			ID:      msg.SeqNum,
			From:    from,
			Subject: subject,
			Body:    body,
			Date:    msg.Envelope.Date,
		})
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	return emails, nil
}

// markAsRead marks a message as seen so it is not matched again.
func (s *Service) markAsRead(messageID uint32) error {
	c, err := s.connect()
	if err != nil {
		return err
	}
	defer c.Logout()

	seqSet := new(goimap.SeqSet)
	seqSet.AddNum(messageID)

	item := goimap.FormatFlagsOp(goimap.AddFlags, true)
	flags := []interface{}{goimap.SeenFlag}

	if err := c.Store(seqSet, item, flags, nil); err != nil {
		return fmt.Errorf("failed to mark message as read: %w", err)
	}

	return nil
}

// parseMessageBody extracts the text body from an IMAP message
func (s *Service) parseMessageBody(msg *goimap.Message, section *goimap.BodySectionName) (string, error) {
	r := msg.GetBody(section)
	if r == nil {
		return "", fmt.Errorf("no body section")
	}

	mr, err := mail.CreateReader(r)
	if err != nil {
		return "", fmt.Errorf("failed to create mail reader: %w", err)
	}

	// Prefer the text/plain part; many vendor mails are HTML-only, so fall
	// back to stripping the HTML part down to text.
	var plainBody, htmlBody string
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to read next part: %w", err)
		}

		switch h := p.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			switch {
			case strings.HasPrefix(contentType, "text/plain"):
				b, err := io.ReadAll(p.Body)
				if err != nil {
					return "", fmt.Errorf("failed to read body: %w", err)
				}
				plainBody = string(b)
			case strings.HasPrefix(contentType, "text/html") && htmlBody == "":
				b, err := io.ReadAll(p.Body)
				if err != nil {
					return "", fmt.Errorf("failed to read body: %w", err)
				}
				htmlBody = string(b)
			}
		}
	}

	if plainBody != "" {
		return strings.TrimSpace(plainBody), nil
	}
	if htmlBody != "" {
		text, err := htmlToText(htmlBody)
		if err != nil {
			return "", fmt.Errorf("failed to extract text from HTML body: %w", err)
		}
		return text, nil
	}

	return "", nil
}

// htmlToText strips an HTML mail body down to its visible text.
func htmlToText(body string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return "", err
	}
	doc.Find("script, style").Remove()
	return strings.TrimSpace(doc.Text()), nil
}
