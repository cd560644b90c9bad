// Package main - peerwatch, консольный клиент присутствия SkillSwap.
//
// Подключается к хабу как обычный пользователь, печатает каждый снапшот
// "кто онлайн" и уведомления о появившихся пирах. Удобен для отладки хаба
// и как живой пример использования пакета client.
//
// Использование:
//
//	peerwatch -url ws://localhost:8080/ws -id u-42 -name "Aida"
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/skillswap-hub/skillswap-presence-hub/internal/application/command"
	"github.com/skillswap-hub/skillswap-presence-hub/internal/client"
	"github.com/skillswap-hub/skillswap-presence-hub/internal/domain/notification"
	"github.com/skillswap-hub/skillswap-presence-hub/internal/domain/presence"
	"github.com/skillswap-hub/skillswap-presence-hub/internal/domain/shared"
	"github.com/skillswap-hub/skillswap-presence-hub/internal/infrastructure/messaging"
	"github.com/skillswap-hub/skillswap-presence-hub/pkg/logger"
)

func main() {
	var (
		url      = flag.String("url", "ws://localhost:8080/ws", "WebSocket endpoint хаба")
		id       = flag.String("id", "", "идентификатор пользователя (обязателен)")
		name     = flag.String("name", "", "отображаемое имя")
		avatar   = flag.String("avatar", "", "URL аватара")
		logLevel = flag.String("log", "warn", "уровень логирования: debug, info, warn, error")
	)
	flag.Parse()

	if *id == "" {
		fmt.Fprintln(os.Stderr, "peerwatch: -id is required")
		flag.Usage()
		os.Exit(2)
	}

	if err := run(*url, presence.Identity{ID: *id, Name: *name, Avatar: *avatar}, *logLevel); err != nil {
		fmt.Fprintf(os.Stderr, "peerwatch: %v\n", err)
		os.Exit(1)
	}
}

func run(url string, self presence.Identity, logLevel string) error {
	log := logger.New(logger.Options{
		Level:     logger.ParseLevel(logLevel),
		AddCaller: false,
	})
	slogLog := log.Slog()

	// Лента уведомлений живёт в памяти процесса: peerwatch показывает её
	// содержимое и умирает вместе с ним.
	store := notification.NewStore()
	push := command.NewPushNotificationHandler(store, nil, nil, slogLog)

	// Синхронная шина: печать снапшота происходит прямо из горутины
	// читателя, порядок совпадает с порядком кадров.
	bus := messaging.NewInMemoryEventBus(messaging.InMemoryEventBusConfig{AsyncMode: false})
	defer bus.Close()

	if err := bus.Subscribe(shared.EventPresenceSnapshot, func(e shared.Event) error {
		se, ok := e.(presence.SnapshotEvent)
		if !ok {
			return nil
		}
		printSnapshot(se.Users)
		return nil
	}); err != nil {
		return err
	}

	if err := bus.Subscribe(shared.EventNotificationCreated, func(e shared.Event) error {
		payload := e.Payload()
		if title, ok := payload["title"].(string); ok {
			fmt.Printf("  🔔 %s\n", title)
		}
		return nil
	}); err != nil {
		return err
	}

	c, err := client.New(client.Config{
		URL:      url,
		Self:     self,
		Notifier: &client.CommandNotifier{Handler: push},
		Bus:      bus,
		Logger:   slogLog,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fmt.Printf("connecting to %s as %s...\n", url, self.ID)
	if err := c.Dial(ctx); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("\nclosing...")
	if err := c.Close(); err != nil {
		return err
	}
	push.Wait()

	unread := store.UnreadCount(notification.OwnerID(self.ID))
	fmt.Printf("session over: %d unread notification(s)\n", unread)
	return nil
}

// printSnapshot печатает снапшот одной строкой: имена по алфавиту.
func printSnapshot(users []presence.Identity) {
	if len(users) == 0 {
		fmt.Println("online: (nobody)")
		return
	}

	names := make([]string, 0, len(users))
	for _, u := range users {
		if u.Name != "" {
			names = append(names, u.Name)
		} else {
			names = append(names, u.ID)
		}
	}
	sort.Strings(names)

	fmt.Printf("online (%d): %s\n", len(names), strings.Join(names, ", "))
}
