package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Tyrowin/roomrelay/internal/app"
	"github.com/Tyrowin/roomrelay/internal/client"
	"github.com/Tyrowin/roomrelay/internal/room"
)

func main() {
	if err := app.LoadDotEnv(); err != nil {
		log.Fatalf("load .env: %v", err)
	}

	cfg := client.NewConfigFromEnv()
	logger := app.NewLogger(cfg.Env)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	wsURL, err := cfg.WebSocketURL()
	if err != nil {
		log.Fatalf("relay url: %v", err)
	}

	dir := room.NewDirectory()
	svc := client.NewService(cfg.ServerURL, nil)

	session, err := client.Dial(ctx, wsURL, cfg.Origin(), dir, cfg.Username, logger)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer func() { _ = session.Close() }()

	dir.Subscribe(func(r *room.Room) {
		fmt.Printf("* room %s %q\n", r.ID(), r.Name())
		r.Subscribe(func(m room.Message) {
			fmt.Printf("[%s] %s: %s\n", r.ID(), m.Username, m.Text)
		})
	})

	go client.NewReconciler(dir, svc, cfg.Interval(), logger).Run(ctx)
	go func() {
		if err := session.Listen(ctx); err != nil && ctx.Err() == nil {
			logger.Error("push.closed", "err", err)
		}
		cancel()
	}()

	fmt.Printf("connected as %s. commands: /rooms, /join <id>, /create <name>\n", session.Username())
	runPrompt(ctx, os.Stdin, svc, dir, session)
}

func runPrompt(ctx context.Context, in *os.File, svc *client.Service, dir *room.Directory, session *client.Session) {
	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	current := ""
	for {
		var line string
		select {
		case <-ctx.Done():
			return
		case l, ok := <-lines:
			if !ok {
				return
			}
			line = strings.TrimSpace(l)
		}

		switch {
		case line == "/rooms":
			for _, r := range dir.Rooms() {
				fmt.Printf("  %s %q (%d messages)\n", r.ID(), r.Name(), r.Len())
			}
		case strings.HasPrefix(line, "/join "):
			id := strings.TrimSpace(strings.TrimPrefix(line, "/join "))
			if _, ok := dir.Get(id); !ok {
				fmt.Printf("room %s does not exist\n", id)
				continue
			}
			current = id
			fmt.Printf("now in %s\n", id)
		case strings.HasPrefix(line, "/create "):
			name := strings.TrimSpace(strings.TrimPrefix(line, "/create "))
			if name == "" {
				fmt.Println("room title empty")
				continue
			}
			r, err := svc.AddRoom(ctx, dir, name, "")
			if err != nil {
				fmt.Printf("create failed: %v\n", err)
				continue
			}
			current = r.ID()
		case current == "":
			fmt.Println("join a room first")
		default:
			if err := session.Post(current, line); err != nil {
				fmt.Printf("send failed: %v\n", err)
			}
		}
	}
}
