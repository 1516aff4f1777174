package mailbox

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"dobkap/internal/core"
)

// DefaultTimeout bounds dialing and every IMAP command.
const DefaultTimeout = 60 * time.Second

// IMAPDialer connects over implicit TLS.
type IMAPDialer struct {
	Timeout   time.Duration
	TLSConfig *tls.Config
}

func NewIMAPDialer(timeout time.Duration) *IMAPDialer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &IMAPDialer{Timeout: timeout}
}

func (d *IMAPDialer) Dial(ctx context.Context, mb core.Mailbox) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	addr := net.JoinHostPort(mb.IMAPHost, strconv.Itoa(mb.IMAPPort))
	cfg := d.TLSConfig
	if cfg == nil {
		cfg = &tls.Config{ServerName: mb.IMAPHost, MinVersion: tls.VersionTLS12}
	}

	c, err := client.DialWithDialerTLS(&net.Dialer{Timeout: d.Timeout}, addr, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", addr, err)
	}
	c.Timeout = d.Timeout
	if err := c.Login(mb.EmailAddress, mb.Password); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("login as %s: %w", mb.EmailAddress, err)
	}
	return &imapSession{c: c}, nil
}

type imapSession struct {
	c *client.Client
}

func (s *imapSession) Select(folder string) (uint32, error) {
	status, err := s.c.Select(folder, true)
	if err != nil {
		return 0, fmt.Errorf("select %s: %w", folder, err)
	}
	return status.UidValidity, nil
}

func (s *imapSession) Search(c Criteria) ([]uint32, error) {
	criteria := imap.NewSearchCriteria()
	if c.From != "" {
		criteria.Header.Add("From", c.From)
	}
	if c.Subject != "" {
		criteria.Header.Add("Subject", c.Subject)
	}
	if c.UseUID {
		criteria.Uid = new(imap.SeqSet)
		// 0 stands for "*"
		criteria.Uid.AddRange(c.AfterUID+1, 0)
	} else {
		criteria.Since = c.Since
	}
	uids, err := s.c.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("uid search: %w", err)
	}
	return uids, nil
}

func (s *imapSession) Fetch(uid uint32) ([]byte, error) {
	seq := new(imap.SeqSet)
	seq.AddNum(uid)
	section := &imap.BodySectionName{Peek: true}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- s.c.UidFetch(seq, []imap.FetchItem{section.FetchItem()}, messages)
	}()

	var body []byte
	var readErr error
	for msg := range messages {
		if msg.Uid != uid || body != nil {
			continue
		}
		lit := msg.GetBody(section)
		if lit == nil {
			continue
		}
		body, readErr = io.ReadAll(lit)
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("uid fetch %d: %w", uid, err)
	}
	if readErr != nil {
		return nil, fmt.Errorf("read message %d: %w", uid, readErr)
	}
	if body == nil {
		return nil, errors.New("server returned no body for message " + strconv.FormatUint(uint64(uid), 10))
	}
	return body, nil
}

func (s *imapSession) Close() error {
	return s.c.Logout()
}
