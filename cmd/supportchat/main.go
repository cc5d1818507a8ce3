// ABOUTME: Interactive terminal client for the support chat realtime SDK.
// ABOUTME: Wires config, auth, REST, and the push channel into a readline loop.

package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"

	"github.com/gamevault/supportchat/internal/api"
	"github.com/gamevault/supportchat/internal/auth"
	"github.com/gamevault/supportchat/internal/config"
	"github.com/gamevault/supportchat/internal/conversation"
	"github.com/gamevault/supportchat/internal/hub"
	"github.com/gamevault/supportchat/internal/inbox"
	"github.com/gamevault/supportchat/internal/presence"
)

// Version is set by goreleaser at build time.
var version = "dev"

// getConfigPath returns the path to the client config file.
// Priority: SUPPORTCHAT_CONFIG env var > XDG_CONFIG_HOME/supportchat/config.yaml > ~/.config/supportchat/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("SUPPORTCHAT_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "supportchat", "config.yaml")
}

func main() {
	configPath := flag.String("config", "", "Path to config file (default: ~/.config/supportchat/config.yaml)")
	server := flag.String("server", "", "REST API base URL (overrides config)")
	hubURL := flag.String("hub", "", "Push channel URL (overrides config)")
	admin := flag.Bool("admin", false, "Use the admin inbox instead of the personal conversation list")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("supportchat %s\n", version)
		return
	}

	cfg, err := loadConfig(*configPath, *server, *hubURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, *admin, logger); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\nGoodbye!")
}

// loadConfig reads the config file when one exists and applies flag
// overrides. With no file and both URLs given on the command line, the file
// is optional.
func loadConfig(path, server, hubURL string) (*config.Config, error) {
	explicit := path != ""
	if path == "" {
		path = getConfigPath()
	}

	var cfg *config.Config
	if _, err := os.Stat(path); err == nil || explicit {
		cfg, err = config.Load(path)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = &config.Config{}
		cfg.Realtime.PollInterval = config.DefaultPollInterval
		cfg.Realtime.TypingExpiry = config.DefaultTypingExpiry
		cfg.Realtime.ReconnectWindow = config.DefaultReconnectWindow
		cfg.Realtime.ReconnectMaxDelay = config.DefaultReconnectMaxDelay
	}

	if server != "" {
		cfg.Server.APIBaseURL = server
	}
	if hubURL != "" {
		cfg.Server.HubURL = hubURL
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// app holds the wired SDK components behind the interactive loop.
type app struct {
	session *conversation.Session
	list    *inbox.Synchronizer
	relay   *presence.Relay
	conn    *hub.Conn
	admin   bool

	adminColor *color.Color
	userColor  *color.Color
	dimColor   *color.Color

	// render state: how much of the session the terminal has seen
	mu        sync.Mutex
	printed   int
	wasTyping bool
	wasSeen   bool
	draft     bool
}

func run(ctx context.Context, cfg *config.Config, admin bool, logger *slog.Logger) error {
	creds := auth.NewCredentialStore(cfg.Auth.TokenPath, logger)

	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	cyan.Printf("supportchat %s\n", version)
	if creds.Token() != "" {
		gray.Printf("Auth: token configured (%s)\n", auth.EnvToken)
	} else {
		gray.Printf("Auth: none (set %s or the token file; realtime stays offline)\n", auth.EnvToken)
	}
	gray.Println("Type a message and press Enter. /help for commands. Ctrl+C to quit.")
	fmt.Println()

	client := api.NewClient(cfg.Server.APIBaseURL, creds, logger)
	conn := hub.NewConn(cfg.Server.HubURL, creds, hub.NewWebsocketDialer(logger), hub.Options{
		ReconnectWindow:   cfg.Realtime.ReconnectWindow,
		ReconnectMaxDelay: cfg.Realtime.ReconnectMaxDelay,
	}, logger)
	defer conn.Close()

	a := &app{
		conn:       conn,
		admin:      admin,
		adminColor: color.New(color.FgCyan),
		userColor:  color.New(color.FgGreen),
		dimColor:   color.New(color.FgHiBlack),
	}
	a.session = conversation.NewSession(client, conn, conversation.Options{
		PollInterval: cfg.Realtime.PollInterval,
		TypingExpiry: cfg.Realtime.TypingExpiry,
	}, a.renderSession, logger)
	defer a.session.Deactivate(context.WithoutCancel(ctx))

	mode := inbox.ModeUser
	if admin {
		mode = inbox.ModeAdmin
	}
	a.list = inbox.NewSynchronizer(client, conn, mode, nil, nil, logger)
	a.relay = presence.NewRelay(conn, logger)

	if err := conn.Connect(ctx); err != nil {
		logger.Warn("push channel unavailable, running poll-only", "error", err)
	}
	go a.list.Run(ctx)
	go a.relay.Run(ctx)

	if err := a.list.Refresh(ctx); err != nil {
		logger.Warn("initial conversation list fetch failed", "error", err)
	}

	// A user with no conversation yet goes straight into a draft: the first
	// message creates the thread.
	if !admin && a.list.Len() == 0 {
		a.session.ActivateDraft(ctx)
		a.setDraft(true)
		a.dimColor.Println("No open conversation. Your first message starts one.")
	}

	return a.loop(ctx)
}

func (a *app) loop(ctx context.Context) error {
	scanner := bufio.NewScanner(os.Stdin)

	for {
		if id := a.session.ConversationID(); id != 0 {
			fmt.Printf("[#%d]> ", id)
		} else {
			fmt.Print("> ")
		}

		inputCh := make(chan string, 1)
		errCh := make(chan error, 1)

		go func() {
			if scanner.Scan() {
				inputCh <- scanner.Text()
			} else {
				if err := scanner.Err(); err != nil {
					errCh <- err
				} else {
					errCh <- io.EOF
				}
			}
		}()

		var input string
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		case input = <-inputCh:
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if input == "/quit" || input == "/exit" || input == "/q" {
			return nil
		}

		if strings.HasPrefix(input, "/") {
			a.command(ctx, input)
			fmt.Println()
			continue
		}

		a.send(ctx, input)
	}
}

func (a *app) command(ctx context.Context, input string) {
	cmd, args, _ := strings.Cut(input, " ")
	args = strings.TrimSpace(args)

	switch cmd {
	case "/list":
		a.printList()

	case "/filter":
		a.list.SetFilter(args)
		a.printList()

	case "/open":
		id, err := strconv.ParseInt(args, 10, 64)
		if err != nil || id <= 0 {
			fmt.Println("Usage: /open <conversation-id>")
			return
		}
		a.open(ctx, id)

	case "/new":
		a.list.SetActive(0)
		a.resetRender()
		a.session.ActivateDraft(ctx)
		a.setDraft(true)
		fmt.Println("New conversation: the first message you send creates it.")

	case "/close":
		if !a.admin {
			fmt.Println("Only admins can close conversations.")
			return
		}
		if err := a.session.Close(ctx); err != nil {
			fmt.Printf("[error] %v\n", err)
			return
		}
		fmt.Println("Conversation closed.")

	case "/online":
		users := a.relay.Online().Snapshot()
		if len(users) == 0 {
			fmt.Println("Nobody online (or presence not yet received).")
			return
		}
		fmt.Printf("Online: %s\n", strings.Join(users, ", "))

	case "/status":
		fmt.Printf("Connection: %s\n", a.conn.State())
		if id := a.session.ConversationID(); id != 0 {
			fmt.Printf("Conversation #%d: %s (%s)\n", id, a.session.Subject(), a.session.Status())
		}

	case "/help":
		printHelp(a.admin)

	default:
		fmt.Printf("Unknown command %s. /help for commands.\n", cmd)
	}
}

func printHelp(admin bool) {
	fmt.Println("Commands:")
	fmt.Println("  /list            Show the conversation list")
	fmt.Println("  /filter <text>   Filter the list (empty to clear)")
	fmt.Println("  /open <id>       Open a conversation")
	fmt.Println("  /new             Start a draft conversation")
	if admin {
		fmt.Println("  /close           Close the open conversation")
	}
	fmt.Println("  /online          Show online users")
	fmt.Println("  /status          Show connection and conversation state")
	fmt.Println("  /quit            Exit")
}

func (a *app) printList() {
	entries := a.list.Entries()
	if len(entries) == 0 {
		fmt.Println("No conversations.")
		return
	}
	for _, e := range entries {
		badge := ""
		if e.UnreadCount > 0 {
			badge = a.userColor.Sprintf(" (%d unread)", e.UnreadCount)
		}
		who := ""
		if e.User != nil {
			who = " from " + e.User.Username
		}
		status := ""
		if e.Status == api.StatusClosed {
			status = a.dimColor.Sprint(" [closed]")
		}
		fmt.Printf("  #%d %s%s%s%s\n", e.ID, e.Subject, who, status, badge)
		if e.LastMessage != "" {
			a.dimColor.Printf("      %s\n", truncate(e.LastMessage, 70))
		}
	}
}

func (a *app) open(ctx context.Context, id int64) {
	a.resetRender()
	a.setDraft(false)
	if err := a.session.Activate(ctx, id); err != nil {
		fmt.Printf("[error] %v\n", err)
		return
	}
	a.list.Open(id)

	fmt.Printf("Opened #%d: %s (%s)\n", id, a.session.Subject(), a.session.Status())
}

func (a *app) send(ctx context.Context, text string) {
	if a.session.ConversationID() == 0 && !a.isDraft() {
		fmt.Println("No conversation open. /open <id> or /new first.")
		return
	}
	a.session.NotifyTyping(ctx)
	if err := a.session.Send(ctx, text); err != nil {
		// The typed text stays on screen; the user can retry it
		fmt.Printf("[error] send failed: %v\n", err)
	}
}

func (a *app) setDraft(v bool) {
	a.mu.Lock()
	a.draft = v
	a.mu.Unlock()
}

func (a *app) isDraft() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.draft
}

func (a *app) resetRender() {
	a.mu.Lock()
	a.printed = 0
	a.wasTyping = false
	a.wasSeen = false
	a.mu.Unlock()
}

// renderSession prints whatever changed in the active session since the last
// render: new messages, typing transitions, and the seen indicator. Runs on
// session goroutines, so everything is printed atomically per call.
func (a *app) renderSession() {
	msgs := a.session.Messages()
	typing := a.session.TypingActive()
	seen := a.session.RemoteSeen()

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.printed > len(msgs) {
		// The poller replaced the thread with a shorter authoritative view
		a.printed = len(msgs)
	}
	for _, m := range msgs[a.printed:] {
		c := a.userColor
		label := m.SenderUsername
		if m.FromAdmin() {
			c = a.adminColor
			if label == "" {
				label = "support"
			}
		}
		fmt.Printf("\n%s %s", c.Sprintf("<%s>", label), m.Body)
	}
	a.printed = len(msgs)

	if typing != a.wasTyping {
		a.wasTyping = typing
		if typing {
			fmt.Printf("\n%s", a.dimColor.Sprint("[typing...]"))
		}
	}
	if seen && !a.wasSeen {
		a.wasSeen = seen
		fmt.Printf("\n%s", a.dimColor.Sprint("[seen]"))
	}
	if !seen {
		a.wasSeen = false
	}
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
