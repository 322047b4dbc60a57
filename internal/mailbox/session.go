package mailbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

// AuthError indicates the mail server rejected the account credentials.
// It is never retried.
type AuthError struct {
	Account string
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): %s", e.Account, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// Session is an authenticated connection with a mailbox selected.
type Session interface {
	// SearchUnseen returns the UIDs of unread messages from sender.
	SearchUnseen(ctx context.Context, sender string) ([]uint32, error)

	// FetchRaw returns the full RFC 5322 message without setting \Seen.
	FetchRaw(ctx context.Context, uid uint32) ([]byte, error)

	MarkSeen(ctx context.Context, uid uint32) error
	Close() error
}

// Dialer opens a new Session.
type Dialer interface {
	Dial(ctx context.Context) (Session, error)
}

// IMAPDialer connects to an IMAP server with go-imap v2.
type IMAPDialer struct {
	Host     string
	Port     string
	Username string
	Password string
	// TLS selects implicit TLS; otherwise STARTTLS is used.
	TLS    bool
	Folder string
}

// Dial connects, logs in and selects the folder. A rejected login is
// reported as *AuthError.
func (d IMAPDialer) Dial(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	addr := d.Host + ":" + d.Port

	var client *imapclient.Client
	var err error
	if d.TLS {
		client, err = imapclient.DialTLS(addr, nil)
	} else {
		client, err = imapclient.DialStartTLS(addr, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}

	if err := client.Login(d.Username, d.Password).Wait(); err != nil {
		_ = client.Logout().Wait()
		var imapErr *imap.Error
		if errors.As(err, &imapErr) && imapErr.Type == imap.StatusResponseTypeNo {
			return nil, &AuthError{Account: d.Username, Message: imapErr.Text}
		}
		return nil, fmt.Errorf("logging in as %s: %w", d.Username, err)
	}

	folder := d.Folder
	if folder == "" {
		folder = "INBOX"
	}
	if _, err := client.Select(folder, nil).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, fmt.Errorf("selecting %s: %w", folder, err)
	}

	return &imapSession{client: client}, nil
}

type imapSession struct {
	client *imapclient.Client
}

func (s *imapSession) SearchUnseen(_ context.Context, sender string) ([]uint32, error) {
	criteria := &imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
		Header:  []imap.SearchCriteriaHeaderField{{Key: "From", Value: sender}},
	}

	data, err := s.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching unseen from %s: %w", sender, err)
	}

	uids := data.AllUIDs()
	out := make([]uint32, len(uids))
	for i, uid := range uids {
		out[i] = uint32(uid)
	}
	return out, nil
}

func (s *imapSession) FetchRaw(_ context.Context, uid uint32) ([]byte, error) {
	section := &imap.FetchItemBodySection{Peek: true}
	fetchCmd := s.client.Fetch(imap.UIDSetNum(imap.UID(uid)), &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{section},
	})
	defer fetchCmd.Close()

	msg := fetchCmd.Next()
	if msg == nil {
		return nil, fmt.Errorf("message UID %d not found", uid)
	}

	buf, err := msg.Collect()
	if err != nil {
		return nil, fmt.Errorf("collecting message %d: %w", uid, err)
	}

	raw := buf.FindBodySection(section)
	if raw == nil {
		return nil, fmt.Errorf("message %d has no body", uid)
	}

	if err := fetchCmd.Close(); err != nil {
		return nil, fmt.Errorf("fetching message %d: %w", uid, err)
	}
	return raw, nil
}

func (s *imapSession) MarkSeen(_ context.Context, uid uint32) error {
	storeCmd := s.client.Store(imap.UIDSetNum(imap.UID(uid)), &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagSeen},
	}, nil)
	if err := storeCmd.Close(); err != nil {
		return fmt.Errorf("marking %d seen: %w", uid, err)
	}
	return nil
}

func (s *imapSession) Close() error {
	if err := s.client.Logout().Wait(); err != nil {
		_ = s.client.Close()
		return fmt.Errorf("logging out: %w", err)
	}
	return nil
}
