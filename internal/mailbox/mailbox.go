// Package mailbox wraps one IMAP session: connect and select, list unread
// items, fetch their raw bytes without side effects and flag them as read.
package mailbox

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/charset"
)

// ErrAuth is returned by Dial when the server rejects the credentials.
var ErrAuth = errors.New("mailbox authentication failed")

// ErrNotFound is returned by Fetch when the server has no such item.
var ErrNotFound = errors.New("message not found")

// Config holds the connection settings for a Mailbox.
type Config struct {
	// Address is host:port of the IMAP server.
	Address  string
	Username string
	Password string
	// Mailbox is the folder to select, INBOX when empty.
	Mailbox string
	// StartTLS upgrades a plain connection instead of dialing TLS directly.
	StartTLS  bool
	TLSConfig *tls.Config
}

// Mailbox is a logged-in IMAP session with one folder selected. It is not
// safe for concurrent use.
type Mailbox struct {
	client *imapclient.Client
	name   string
	stop   func() bool
}

// Dial connects, logs in and selects the configured folder. Credential
// rejections wrap ErrAuth. Cancelling ctx later closes the connection,
// which unblocks any command in flight.
func Dial(ctx context.Context, cfg Config) (*Mailbox, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}

	opts := &imapclient.Options{
		TLSConfig:   cfg.TLSConfig,
		WordDecoder: &mime.WordDecoder{CharsetReader: charset.Reader},
	}

	var (
		client *imapclient.Client
		err    error
	)
	if cfg.StartTLS {
		client, err = imapclient.DialStartTLS(cfg.Address, opts)
	} else {
		client, err = imapclient.DialTLS(cfg.Address, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to IMAP server %s: %w", cfg.Address, err)
	}

	m := &Mailbox{
		client: client,
		name:   cfg.Mailbox,
		stop:   context.AfterFunc(ctx, func() { _ = client.Close() }),
	}

	if err := client.Login(cfg.Username, cfg.Password).Wait(); err != nil {
		_ = m.Close()
		if isRejection(err) {
			return nil, fmt.Errorf("%w for %s: %v", ErrAuth, cfg.Username, err)
		}
		return nil, fmt.Errorf("failed to log in to IMAP server %s: %w", cfg.Address, err)
	}

	data, err := client.Select(cfg.Mailbox, nil).Wait()
	if err != nil {
		_ = m.Close()
		return nil, fmt.Errorf("failed to select mailbox %s: %w", cfg.Mailbox, err)
	}

	slog.Info("mailbox selected",
		"address", cfg.Address,
		"mailbox", cfg.Mailbox,
		"messages", data.NumMessages,
	)

	return m, nil
}

// isRejection reports whether err is a tagged NO or BAD reply, as opposed to
// a transport failure.
func isRejection(err error) bool {
	var imapErr *imap.Error
	if !errors.As(err, &imapErr) {
		return false
	}
	return imapErr.Type == imap.StatusResponseTypeNo || imapErr.Type == imap.StatusResponseTypeBad
}

// Unread returns the UIDs of every item without the \Seen flag, in server
// order.
func (m *Mailbox) Unread(ctx context.Context) ([]uint32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	criteria := &imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
	}
	data, err := m.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("failed to search %s for unread messages: %w", m.name, err)
	}

	all := data.AllUIDs()
	uids := make([]uint32, 0, len(all))
	for _, uid := range all {
		uids = append(uids, uint32(uid))
	}
	return uids, nil
}

// Fetch returns the full raw message. BODY.PEEK is used so fetching does
// not set \Seen.
func (m *Mailbox) Fetch(ctx context.Context, uid uint32) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	section := &imap.FetchItemBodySection{Peek: true}
	opts := &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{section},
	}

	msgs, err := m.client.Fetch(imap.UIDSetNum(imap.UID(uid)), opts).Collect()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch message %d: %w", uid, err)
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("uid %d: %w", uid, ErrNotFound)
	}

	raw := msgs[0].FindBodySection(section)
	if raw == nil {
		return nil, fmt.Errorf("uid %d: server returned no body: %w", uid, ErrNotFound)
	}
	return raw, nil
}

// MarkRead adds the \Seen flag to the item.
func (m *Mailbox) MarkRead(ctx context.Context, uid uint32) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	store := &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagSeen},
	}
	if err := m.client.Store(imap.UIDSetNum(imap.UID(uid)), store, nil).Close(); err != nil {
		return fmt.Errorf("failed to mark message %d as read: %w", uid, err)
	}
	return nil
}

// Close logs out and closes the connection. A failed logout still closes
// the connection.
func (m *Mailbox) Close() error {
	m.stop()
	logoutErr := m.client.Logout().Wait()
	closeErr := m.client.Close()
	if logoutErr != nil {
		return fmt.Errorf("failed to log out: %w", logoutErr)
	}
	if closeErr != nil && !errors.Is(closeErr, net.ErrClosed) {
		return fmt.Errorf("failed to close connection: %w", closeErr)
	}
	return nil
}
