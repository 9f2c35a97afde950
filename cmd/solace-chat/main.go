// ABOUTME: Terminal chat client for solace-gateway over WebSocket.
// ABOUTME: Creates or opens a conversation, reads lines from stdin and prints replies as they stream.

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/2389/solace-gateway/internal/protocol"
)

// getToken returns the bearer token from SOLACE_TOKEN or ~/.config/solace/token.
func getToken() string {
	if token := os.Getenv("SOLACE_TOKEN"); token != "" {
		return token
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	data, err := os.ReadFile(filepath.Join(configDir, "solace", "token"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// wsURL builds the WebSocket URL for path with the token as a query parameter.
func wsURL(server, path, token string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("parsing server URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported server scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	u.RawQuery = url.Values{"token": {token}}.Encode()
	return u.String(), nil
}

func main() {
	var server, chat string

	cmd := &cobra.Command{
		Use:           "solace-chat",
		Short:         "Chat with solace-gateway from the terminal",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			token := getToken()
			if token == "" {
				return errors.New("no token: set SOLACE_TOKEN or save one with `solace-gateway token > ~/.config/solace/token`")
			}
			return run(cmd.Context(), server, chat, token, os.Stdin, os.Stdout)
		},
	}
	cmd.Flags().StringVar(&server, "server", "ws://localhost:8000", "gateway base URL")
	cmd.Flags().StringVar(&chat, "chat", "", "conversation id to open (default: create a new one)")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, server, chat, token string, in io.Reader, out io.Writer) error {
	p := newPrinter(out)

	if chat == "" {
		created, err := createChat(ctx, server, token)
		if err != nil {
			return err
		}
		p.print(created)
		chat = fmt.Sprint(created.ChatID)
	}

	target, err := wsURL(server, "/ws/"+chat, token)
	if err != nil {
		return err
	}
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("connecting: %w", err)
	}
	defer ws.Close()

	done := make(chan struct{})
	defer close(done)

	events := make(chan serverEvent)
	readErr := make(chan error, 1)
	go func() {
		defer close(events)
		for {
			var ev serverEvent
			if err := ws.ReadJSON(&ev); err != nil {
				readErr <- err
				return
			}
			select {
			case events <- ev:
			case <-done:
				return
			}
		}
	}()

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	fmt.Fprintln(out, "Type a message and press Enter. /quit to leave.")

	for {
		select {
		case <-ctx.Done():
			return hangUp(ws)

		case ev, ok := <-events:
			if !ok {
				return describeClose(<-readErr, out)
			}
			p.print(ev)

		case line, ok := <-lines:
			if !ok {
				return hangUp(ws)
			}
			line = strings.TrimSpace(line)
			switch line {
			case "":
				continue
			case "/quit", "/exit", "/q":
				return hangUp(ws)
			}
			msg := protocol.Inbound{BaseMessage: protocol.BaseMessage{Type: protocol.TypeUserMessage}, Message: line}
			if err := ws.WriteJSON(msg); err != nil {
				return fmt.Errorf("sending message: %w", err)
			}
		}
	}
}

// createChat runs the create-new handshake and returns its chat_created event.
func createChat(ctx context.Context, server, token string) (serverEvent, error) {
	target, err := wsURL(server, "/ws/new", token)
	if err != nil {
		return serverEvent{}, err
	}
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return serverEvent{}, fmt.Errorf("connecting: %w", err)
	}
	defer ws.Close()

	var ev serverEvent
	if err := ws.ReadJSON(&ev); err != nil {
		return serverEvent{}, describeClose(err, io.Discard)
	}
	if ev.Type != protocol.TypeChatCreated {
		return serverEvent{}, fmt.Errorf("unexpected %q while creating a chat", ev.Type)
	}
	return ev, nil
}

// hangUp sends a normal close frame.
func hangUp(ws *websocket.Conn) error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return nil
}

// describeClose turns a server close into a user-facing result.
func describeClose(err error, out io.Writer) error {
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) {
		return fmt.Errorf("connection lost: %w", err)
	}
	switch closeErr.Code {
	case websocket.CloseNormalClosure:
		fmt.Fprintln(out, color.HiBlackString("[closed]"))
		return nil
	case protocol.CloseAuthFailed:
		return errors.New("authentication failed: get a fresh token with `solace-gateway token`")
	default:
		return fmt.Errorf("server closed the connection: %d %s", closeErr.Code, closeErr.Text)
	}
}

// serverEvent is the union of every outbound message the gateway sends.
type serverEvent struct {
	Type           string `json:"type"`
	Message        string `json:"message"`
	PartialMessage string `json:"partial_message"`
	IsComplete     bool   `json:"is_complete"`
	Code           string `json:"code"`
	ChatID         int64  `json:"chat_id"`
	ChatName       string `json:"chat_name"`
}
