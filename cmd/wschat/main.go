package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/duochat-server/internal/proto"
)

// wireFrame is proto.Outbound with the payload kept raw for decoding by event.
type wireFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

func main() {
	if err := run(); err != nil {
		log.Printf("wschat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	user := flag.String("user", "cli-user", "user id to announce")
	to := flag.String("to", "", "recipient user id")
	token := flag.String("token", "", "JWT from /api/login, if the server requires one")
	flag.Parse()

	if *to == "" {
		return errors.New("-to is required")
	}

	target := *addr
	if *token != "" {
		u, err := url.Parse(target)
		if err != nil {
			return fmt.Errorf("parse addr: %w", err)
		}
		q := u.Query()
		q.Set("token", *token)
		u.RawQuery = q.Encode()
		target = u.String()
	}

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	if err := send(ctx, conn, proto.EventAddUser, *user); err != nil {
		return fmt.Errorf("add user: %w", err)
	}

	fmt.Printf("Connected to %s as %s, chatting with %s\n", *addr, *user, *to)
	fmt.Println("Type messages and press Enter to send. Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	writeLoop(ctx, conn, *to)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

func send(ctx context.Context, conn *websocket.Conn, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event, err)
	}
	return wsjson.Write(ctx, conn, proto.Inbound{Event: event, Data: payload})
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var frame wireFrame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			// Treat expected shutdowns quietly.
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			log.Printf("read error: %v", err)
			return
		}

		switch frame.Event {
		case proto.EventGetUsers:
			var users []proto.OnlineUser
			if err := json.Unmarshal(frame.Data, &users); err != nil {
				log.Printf("unmarshal getUsers: %v", err)
				continue
			}
			ids := make([]string, 0, len(users))
			for _, u := range users {
				ids = append(ids, u.UserID)
			}
			fmt.Printf("* online: %s\n", strings.Join(ids, ", "))
		case proto.EventReceiveMessage:
			var msg proto.ReceiveMessageData
			if err := json.Unmarshal(frame.Data, &msg); err != nil {
				log.Printf("unmarshal receiveMessage: %v", err)
				continue
			}
			fmt.Printf("%s: %s\n", msg.SenderID, msg.Message)
		case proto.EventError:
			if frame.Error != nil {
				fmt.Printf("! %s: %s\n", frame.Error.Code, frame.Error.Msg)
			}
		default:
			fmt.Printf("event=%s data=%s\n", frame.Event, frame.Data)
		}
	}
}

func writeLoop(ctx context.Context, conn *websocket.Conn, to string) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}

			if err := send(ctx, conn, proto.EventSendMessage, proto.SendMessageData{ReceiverID: to, Message: text}); err != nil {
				log.Printf("send error: %v", err)
				return
			}
		}
	}
}
