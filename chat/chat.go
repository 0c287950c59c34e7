package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"
	"golang.org/x/time/rate"
)

// ircClient is the subset of *twitch.Client the session drives.
type ircClient interface {
	OnConnect(func())
	OnPrivateMessage(func(twitch.PrivateMessage))
	OnReconnectMessage(func(twitch.ReconnectMessage))
	Join(channels ...string)
	Connect() error
	Disconnect() error
	// disableRedial makes the client's own reconnect loop fail at dial time,
	// so Connect returns once the current connection ends.
	disableRedial()
}

// twitchClient lets the session, not go-twitch-irc, own every redial.
type twitchClient struct {
	*twitch.Client
}

// disableRedial must run inside a client callback. The library waits for its
// reader goroutine before dialing again, which orders this write before the
// next read of IrcAddress.
func (c *twitchClient) disableRedial() {
	c.IrcAddress = ""
}

// closeWait bounds how long Close waits for a welcomed client to hang up.
const closeWait = 10 * time.Second

// TwitchOptions tune the go-twitch-irc backed session.
type TwitchOptions struct {
	// IRCAddress overrides the chat server (host:port). Empty uses the library default.
	IRCAddress string
	// Plaintext disables TLS.
	Plaintext bool
	// JoinLimiter paces JOIN commands. Twitch allows 20 joins per 10s per login
	// and every anonymous session shares the same justinfan login, so one
	// limiter is shared by all sessions of a factory.
	JoinLimiter *rate.Limiter
}

// DefaultJoinLimiter returns a limiter matching the Twitch anonymous join budget.
func DefaultJoinLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Every(500*time.Millisecond), 20)
}

// NewTwitchSessionFactory returns a SessionFactory producing anonymous
// go-twitch-irc sessions.
func NewTwitchSessionFactory(opts TwitchOptions) SessionFactory {
	if opts.JoinLimiter == nil {
		opts.JoinLimiter = DefaultJoinLimiter()
	}
	return func() Session {
		return newTwitchSession(func() ircClient {
			c := twitch.NewAnonymousClient()
			if opts.IRCAddress != "" {
				c.IrcAddress = opts.IRCAddress
			}
			c.TLS = !opts.Plaintext
			return &twitchClient{Client: c}
		}, opts.JoinLimiter)
	}
}

// TwitchSession adapts the callback-driven go-twitch-irc client to the
// pull-based Session contract. Callbacks hand events over an unbuffered
// channel, so the IRC reader blocks until the watcher pulls.
//
// Each connection is one *twitch.Client that never redials by itself: when its
// connection ends, for any reason, Next reports ErrTransport and the watcher
// decides when Reconnect dials a fresh client.
type TwitchSession struct {
	newClient func() ircClient
	limiter   *rate.Limiter

	mu       sync.Mutex
	conn     *ircConn
	channels []ChannelName
}

type ircConn struct {
	client   ircClient
	items    chan item
	stop     chan struct{}
	done     chan struct{}
	welcomed atomic.Bool
	once     sync.Once
}

type item struct {
	ev  Event
	err error
}

func newTwitchSession(newClient func() ircClient, limiter *rate.Limiter) *TwitchSession {
	return &TwitchSession{newClient: newClient, limiter: limiter}
}

func (c *ircConn) deliver(it item) {
	select {
	case c.items <- it:
	case <-c.stop:
	}
}

func (c *ircConn) stopped() bool {
	select {
	case <-c.stop:
		return true
	default:
		return false
	}
}

// close hangs up and, for a welcomed client, waits until Connect has returned
// so the TCP connection is gone. A client closed before its welcome hangs up
// from its OnConnect callback.
func (c *ircConn) close() {
	c.once.Do(func() {
		close(c.stop)
		if err := c.client.Disconnect(); err != nil && !errors.Is(err, twitch.ErrConnectionIsNotOpen) {
			slog.Debug("twitch chat disconnect", slog.Any("err", err))
		}
		if !c.welcomed.Load() {
			return
		}
		select {
		case <-c.done:
		case <-time.After(closeWait):
			slog.Warn("twitch chat client did not exit after disconnect")
		}
	})
}

// Connect dials the chat server and waits for the welcome.
func (s *TwitchSession) Connect(ctx context.Context) error {
	conn, err := s.dial(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	old := s.conn
	s.conn = conn
	s.mu.Unlock()
	if old != nil {
		old.close()
	}
	return nil
}

func (s *TwitchSession) dial(ctx context.Context) (*ircConn, error) {
	conn := &ircConn{
		client: s.newClient(),
		items:  make(chan item),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	connected := make(chan struct{})
	conn.client.OnConnect(func() {
		if conn.welcomed.Swap(true) {
			return
		}
		conn.client.disableRedial()
		close(connected)
		if conn.stopped() {
			_ = conn.client.Disconnect()
		}
	})
	conn.client.OnPrivateMessage(func(msg twitch.PrivateMessage) {
		if msg.Channel == "" || msg.User.Name == "" {
			conn.deliver(item{err: fmt.Errorf("%w: privmsg without channel or sender: %q", ErrProtocolParse, msg.Raw)})
			return
		}
		conn.deliver(item{ev: Event{Kind: EventChat, Channel: NormalizeChannel(msg.Channel), Sender: msg.User.Name, Text: msg.Message}})
	})
	conn.client.OnReconnectMessage(func(twitch.ReconnectMessage) {
		conn.deliver(item{ev: Event{Kind: EventReconnect}})
	})

	exited := make(chan error, 1)
	go func() {
		exited <- conn.client.Connect()
		close(conn.done)
	}()

	select {
	case <-connected:
	case err := <-exited:
		conn.close()
		return nil, fmt.Errorf("%w: connect: %v", ErrTransport, err)
	case <-ctx.Done():
		conn.close()
		return nil, ctx.Err()
	}

	go func() {
		err := <-exited
		if errors.Is(err, twitch.ErrClientDisconnected) {
			return
		}
		slog.Debug("twitch chat client exited", slog.Any("err", err))
		conn.deliver(item{err: fmt.Errorf("%w: connection lost", ErrTransport)})
	}()
	return conn, nil
}

// Join subscribes to channels, pacing JOINs through the shared limiter.
func (s *TwitchSession) Join(ctx context.Context, channels ...ChannelName) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	if err := s.join(ctx, conn, channels); err != nil {
		return err
	}
	s.mu.Lock()
	s.channels = append(s.channels, channels...)
	s.mu.Unlock()
	return nil
}

func (s *TwitchSession) join(ctx context.Context, conn *ircConn, channels []ChannelName) error {
	for _, ch := range channels {
		if ch == "" {
			return fmt.Errorf("join: empty channel name")
		}
		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("join %s: %w", ch, err)
		}
		conn.client.Join(string(ch))
	}
	return nil
}

// Next blocks for the next event from the current connection.
func (s *TwitchSession) Next(ctx context.Context) (Event, error) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return Event{}, ErrNotConnected
	}
	select {
	case it := <-conn.items:
		return it.ev, it.err
	case <-conn.stop:
		return Event{}, fmt.Errorf("%w: connection closed", ErrTransport)
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

// Reconnect replaces the connection with a fresh one and rejoins the
// previously joined channels.
func (s *TwitchSession) Reconnect(ctx context.Context) error {
	s.mu.Lock()
	old := s.conn
	s.conn = nil
	channels := append([]ChannelName(nil), s.channels...)
	s.mu.Unlock()
	if old != nil {
		old.close()
	}
	conn, err := s.dial(ctx)
	if err != nil {
		return err
	}
	if err := s.join(ctx, conn, channels); err != nil {
		conn.close()
		return err
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	return nil
}

// Close disconnects the session.
func (s *TwitchSession) Close() error {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn != nil {
		conn.close()
	}
	return nil
}
