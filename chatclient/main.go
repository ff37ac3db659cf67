// Command chatclient joins a room from the terminal: pushed messages are
// printed as they arrive and every stdin line is posted to the room.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"html"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/LEONFROMWORK/chat/client"
	"github.com/LEONFROMWORK/chat/config"
	"github.com/LEONFROMWORK/chat/logger"
	"github.com/LEONFROMWORK/chat/protocol"
)

func main() {
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "dev"
	}
	cfg, err := config.Load(env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	serverURL := flag.String("url", cfg.Client.URL, "chat server websocket URL")
	token := flag.String("token", "", "JWT for servers with auth enabled")
	room := flag.String("room", "general", "room to join")
	user := flag.String("user", "", "user id when auth is disabled")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := "warn"
	if *verbose {
		level = "debug"
	}
	log := logger.Init(level)

	userID, err := resolveUser(*token, *user)
	if err != nil {
		fmt.Fprintf(os.Stderr, "chatclient: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg.Client, *serverURL, *token, *room, userID, log); err != nil {
		fmt.Fprintf(os.Stderr, "chatclient: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.ClientConfig, serverURL, token, room, user string, log *slog.Logger) error {
	api := client.NewAPIClient(apiBaseURL(serverURL), token, user)
	view := newTerminalView(os.Stdout)

	c, err := client.New(client.Options{
		UserID: user,
		Dialer: &client.WebSocketDialer{URL: serverURL, Token: token, User: user},
		View:   view,
		Config: cfg,
		Logger: log,
		OnStatus: func(s client.Status, rtt time.Duration) {
			view.status(s, rtt)
		},
	})
	if err != nil {
		return err
	}
	defer c.Close()

	// Show recent history and make sure its pushes are not shown again.
	history, err := api.History(ctx, room)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	for _, msg := range history {
		view.line(msg.SenderID, msg.Content)
		c.Seed(msg.ID)
	}

	if err := c.Connect(ctx); err != nil {
		return err
	}
	if err := c.Subscribe(room); err != nil {
		return err
	}

	lines := make(chan string)
	go readLines(os.Stdin, lines)

	for {
		select {
		case <-ctx.Done():
			return nil
		case text, ok := <-lines:
			if !ok {
				return nil
			}
			switch strings.TrimSpace(text) {
			case "":
				continue
			case "/check":
				if err := c.CheckLiveness(); err != nil {
					view.notice("liveness check: %v", err)
				}
				continue
			}
			msg, err := api.Post(ctx, room, text)
			if err != nil {
				view.notice("post failed: %v", err)
				continue
			}
			// The author's copy comes from the post response, not the push.
			view.line(msg.SenderID, msg.Content)
		}
	}
}

// resolveUser picks the id the server will know us by, so that our own
// messages can be recognised when they are pushed back. The token is not
// verified here; the server does that.
func resolveUser(token, user string) (string, error) {
	if token == "" {
		if user == "" {
			user = "guest-" + uuid.NewString()[:8]
		}
		return user, nil
	}
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("token has no subject")
	}
	return claims.Subject, nil
}

func readLines(r io.Reader, out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		out <- scanner.Text()
	}
}

// apiBaseURL derives the HTTP base from the websocket URL:
// ws://host:8080/ws becomes http://host:8080.
func apiBaseURL(wsURL string) string {
	base := strings.TrimSuffix(strings.TrimSuffix(wsURL, "/"), "/ws")
	switch {
	case strings.HasPrefix(base, "wss://"):
		return "https://" + strings.TrimPrefix(base, "wss://")
	case strings.HasPrefix(base, "ws://"):
		return "http://" + strings.TrimPrefix(base, "ws://")
	}
	return base
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

type terminalView struct {
	mu     sync.Mutex
	out    io.Writer
	sender *color.Color
	dim    *color.Color
	alert  *color.Color
}

func newTerminalView(out io.Writer) *terminalView {
	return &terminalView{
		out:    out,
		sender: color.New(color.FgCyan, color.Bold),
		dim:    color.New(color.FgHiBlack),
		alert:  color.New(color.FgRed),
	}
}

// plainText extracts the message text from rendered markup.
func plainText(content string) string {
	var parts []string
	for _, p := range strings.Split(tagPattern.ReplaceAllString(content, "\n"), "\n") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, html.UnescapeString(p))
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1]
}

func (v *terminalView) line(sender, content string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	fmt.Fprintf(v.out, "%s %s\n", v.sender.Sprintf("%s:", sender), plainText(content))
}

func (v *terminalView) notice(format string, args ...any) {
	v.mu.Lock()
	defer v.mu.Unlock()
	fmt.Fprintln(v.out, v.dim.Sprintf("* "+format, args...))
}

func (v *terminalView) status(s client.Status, rtt time.Duration) {
	if s == client.StatusDisconnected {
		v.mu.Lock()
		fmt.Fprintln(v.out, v.alert.Sprint("* disconnected"))
		v.mu.Unlock()
		return
	}
	if rtt > 0 {
		v.notice("%s (latency %s)", s, rtt.Round(time.Millisecond))
		return
	}
	v.notice("%s", s)
}

func (v *terminalView) Render(p protocol.Payload) { v.line(p.SenderID, p.Content) }

func (v *terminalView) Welcome(p protocol.Payload) {
	v.notice("joined %s as %s", p.RoomID, p.UserID)
}

func (v *terminalView) Error(p protocol.Payload) {
	v.mu.Lock()
	defer v.mu.Unlock()
	fmt.Fprintln(v.out, v.alert.Sprintf("* %s: %s", p.Code, p.Error))
}
