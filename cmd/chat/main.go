package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/Parley/internal/client"
	"github.com/dkeye/Parley/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	cfg, err := config.LoadClient(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	store := client.NewStore()
	printer := newPrinter()
	store.Subscribe(printer.onState)

	sess, err := client.NewSession(cfg, store)
	if err != nil {
		log.Fatal().Err(err).Msg("session")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return sess.Run(gctx)
	})
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case n := <-sess.Notices():
				fmt.Printf("! %s\n", n)
			}
		}
	})
	go readInput(sess, cancel)

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("session ended")
		os.Exit(1)
	}
}

func readInput(sess *client.Session, quit context.CancelFunc) {
	sc := bufio.NewScanner(os.Stdin)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		cmd, rest, _ := strings.Cut(line, " ")
		var err error
		switch cmd {
		case "/quit":
			sess.Close()
			quit()
			return
		case "/leave":
			err = sess.Leave()
		case "/clear":
			err = sess.ClearMessages()
		case "/export":
			err = sess.Store().Export(os.Stdout)
		case "/react":
			id, emoji, _ := strings.Cut(rest, " ")
			err = sess.React(id, emoji)
		case "/image":
			url, caption, _ := strings.Cut(rest, " ")
			_, err = sess.SendImage(url, caption)
		default:
			sess.Typing(line)
			_, err = sess.Send(line)
			sess.Typing("")
		}
		if err != nil {
			fmt.Printf("! %v\n", err)
		}
	}
}

// printer writes messages that were not shown yet.
type printer struct {
	mu     sync.Mutex
	seen   map[string]bool
	status client.Status
	typing string
	closed bool
}

func newPrinter() *printer {
	return &printer{seen: make(map[string]bool)}
}

func (p *printer) onState(s client.State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s.Status != p.status {
		p.status = s.Status
		fmt.Printf("-- %s\n", s.Status)
	}
	for _, m := range s.Messages {
		if p.seen[m.ID] {
			continue
		}
		p.seen[m.ID] = true
		switch {
		case m.ImageURL != "":
			fmt.Printf("[%s] %s sent an image %s\n", m.ID, m.SenderName, m.Content)
		default:
			fmt.Printf("[%s] %s: %s\n", m.ID, m.SenderName, m.Content)
		}
	}
	if typing := strings.Join(s.TypingUsers, ", "); typing != p.typing {
		p.typing = typing
		if typing != "" {
			fmt.Printf("-- %s typing\n", typing)
		}
	}
	if s.RoomClosed && !p.closed {
		p.closed = true
		fmt.Println("-- room closed")
	}
}
