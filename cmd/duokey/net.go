package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"

	"github.com/spf13/cobra"

	"github.com/TheusHen/duokey/duokey"
	"github.com/TheusHen/duokey/duokey/discovery"
	"github.com/TheusHen/duokey/duokey/exchange"
	"github.com/TheusHen/duokey/duokey/identity"
	"github.com/TheusHen/duokey/duokey/session"
)

// peer builds the configured peer. Its directory is closed together with
// the peer.
func (a *app) peer() (*peerCloser, error) {
	id, err := a.identity()
	if err != nil {
		return nil, err
	}
	dir, err := a.cfg.Directory()
	if err != nil {
		return nil, err
	}
	p := duokey.NewPeer(id, duokey.Options{
		Directory:    dir,
		RequireKnown: a.cfg.Network.RequireKnown,
		Learn:        a.cfg.Network.Learn,
		Transport:    a.cfg.Transport(),
		Logger:       a.log,
	})
	return &peerCloser{Peer: p, dir: dir}, nil
}

type peerCloser struct {
	*duokey.Peer
	dir discovery.Store
}

func (p *peerCloser) Close() error {
	return errors.Join(p.Peer.Close(), p.dir.Close())
}

// lockedWriter serialises the output of concurrent sessions.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) printf(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, format, args...)
}

func newListenCommand(a *app) *cobra.Command {
	var (
		addr     string
		count    int
		channels bool
	)
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Accept sessions and print the messages peers send",
		Long: `listen accepts QUIC sessions for the configured identity. Each envelope is
checked against the sender's announced key and answered with a verdict; with
--exchange the session instead agrees on a key and reads XOR encrypted text.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			p, err := a.peer()
			if err != nil {
				return err
			}
			defer p.Close()
			if addr == "" {
				addr = a.cfg.Network.Listen
			}
			if err := p.Listen(addr); err != nil {
				return err
			}

			out := &lockedWriter{w: cmd.OutOrStdout()}
			out.printf("listening on %s\n", p.ListenAddr())

			return a.serve(ctx, p, count, channels, out)
		},
	}
	cmd.Flags().StringVarP(&addr, "addr", "a", "", "listen address (default from config)")
	cmd.Flags().IntVarP(&count, "count", "n", 0, "stop after this many sessions (0 means never)")
	cmd.Flags().BoolVar(&channels, "exchange", false, "read from a key agreement channel")
	return cmd
}

type acceptor interface {
	Accept(ctx context.Context) (*session.Session, error)
}

// serve accepts up to count sessions (0 means no limit). A rejected
// handshake only drops that connection; any other Accept error ends the
// loop.
func (a *app) serve(ctx context.Context, p acceptor, count int, channels bool, out *lockedWriter) error {
	var wg sync.WaitGroup
	defer wg.Wait()
	for n := 0; count == 0 || n < count; n++ {
		sess, err := p.Accept(ctx)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, duokey.ErrHandshakeFailed):
			a.log.Warnw("accept failed", "err", err)
			continue
		default:
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sess.Close()
			if channels {
				a.serveChannel(ctx, sess, out)
				return
			}
			a.serveEnvelopes(ctx, sess, out)
		}()
	}
	return nil
}

func (a *app) serveEnvelopes(ctx context.Context, sess *session.Session, out *lockedWriter) {
	for {
		res, err := sess.Accept(ctx)
		if err != nil {
			a.log.Debugw("session ended", "remote", sess.RemoteName(), "err", err)
			return
		}
		if pt, ok := res.Plaintext(); ok {
			out.printf("%s: %s: %s\n", sess.RemoteName(), res.Outcome(), pt)
		} else {
			out.printf("%s: %s\n", sess.RemoteName(), res.Outcome())
		}
	}
}

func (a *app) serveChannel(ctx context.Context, sess *session.Session, out *lockedWriter) {
	s, err := exchange.NewSender(exchange.Options{KeyLimit: a.cfg.Exchange.KeyLimit, Logger: a.log})
	if err != nil {
		a.log.Errorw("new sender", "err", err)
		return
	}
	ch, err := sess.AcceptChannel(ctx, s)
	if err != nil {
		a.log.Warnw("key agreement failed", "remote", sess.RemoteName(), "err", err)
		return
	}
	for {
		pt, err := ch.Receive()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				a.log.Warnw("channel read failed", "remote", sess.RemoteName(), "err", err)
			}
			return
		}
		out.printf("%s: %s\n", sess.RemoteName(), pt)
	}
}

func newSendCommand(a *app) *cobra.Command {
	var (
		to       string
		fp       string
		channels bool
	)
	cmd := &cobra.Command{
		Use:   "send TEXT...",
		Short: "Send each TEXT to a listening peer",
		Example: `  duokey -c alice.toml send --to 127.0.0.1:4242 "secret message"
  duokey -c alice.toml send --fingerprint 3f1c... --exchange "hi"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (to == "") == (fp == "") {
				return errors.New("exactly one of --to and --fingerprint is required")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			p, err := a.peer()
			if err != nil {
				return err
			}
			defer p.Close()
			var sess *session.Session
			if fp != "" {
				var want identity.Fingerprint
				if want, err = identity.ParseFingerprintHex(fp); err != nil {
					return err
				}
				sess, err = p.DialFingerprint(ctx, want)
			} else {
				sess, err = p.Dial(ctx, to)
			}
			if err != nil {
				return err
			}
			defer sess.Close()

			out := cmd.OutOrStdout()
			if channels {
				return a.sendChannel(ctx, sess, args, out)
			}
			for _, text := range args {
				res, err := sess.Send(text)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s: %s\n", sess.RemoteName(), res.Outcome())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "peer address")
	cmd.Flags().StringVar(&fp, "fingerprint", "", "fingerprint of a configured peer")
	cmd.Flags().BoolVar(&channels, "exchange", false, "send over a key agreement channel")
	return cmd
}

func (a *app) sendChannel(ctx context.Context, sess *session.Session, texts []string, out io.Writer) error {
	s, err := exchange.NewSender(exchange.Options{KeyLimit: a.cfg.Exchange.KeyLimit, Logger: a.log})
	if err != nil {
		return err
	}
	ch, err := sess.OpenChannel(ctx, s, a.cfg.Group())
	if err != nil {
		return err
	}
	for _, text := range texts {
		ct, err := ch.Send(text)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s: sent %q\n", sess.RemoteName(), ct)
	}
	return ch.Close()
}
