package events

import (
	"context"
	"fmt"
	"net/mail"
	"os"
	"path/filepath"
	"time"
)

// MaildirSource reads inbound messages from the new/ subdirectory of a
// Maildir, the layout most local delivery agents write. Messages are
// parsed in place and never moved; Fetch filters on file modification
// time, so the detector's since cursor does the bookkeeping.
type MaildirSource struct {
	dir string
}

// NewMaildirSource points a source at a Maildir root.
func NewMaildirSource(dir string) *MaildirSource {
	return &MaildirSource{dir: dir}
}

// Fetch parses every message delivered after since. Files that do not
// parse as mail are skipped, not fatal.
func (s *MaildirSource) Fetch(ctx context.Context, since time.Time) ([]InboundMessage, error) {
	dir := filepath.Join(s.dir, "new")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read maildir %s: %w", dir, err)
	}

	var msgs []InboundMessage
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().After(since) {
			continue
		}
		in, err := s.parse(filepath.Join(dir, entry.Name()), info.ModTime())
		if err != nil {
			continue
		}
		msgs = append(msgs, in)
	}
	return msgs, nil
}

func (s *MaildirSource) parse(path string, modTime time.Time) (InboundMessage, error) {
	f, err := os.Open(path)
	if err != nil {
		return InboundMessage{}, err
	}
	defer f.Close()

	m, err := mail.ReadMessage(f)
	if err != nil {
		return InboundMessage{}, err
	}

	from := m.Header.Get("From")
	if addr, err := mail.ParseAddress(from); err == nil {
		from = addr.Address
	}

	received := modTime
	if date, err := m.Header.Date(); err == nil {
		received = date
	}

	return InboundMessage{
		From:       from,
		Subject:    m.Header.Get("Subject"),
		InReplyTo:  m.Header.Get("In-Reply-To"),
		References: m.Header.Get("References"),
		ReceivedAt: received,
	}, nil
}
