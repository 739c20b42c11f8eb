// Drawsync: CLI entry point.
//
// This tool joins a collaborative drawing session over WebSocket (or a
// WebRTC DataChannel) and exposes the board as a line-oriented REPL. Edits
// made while disconnected are queued and replayed on reconnect.
//
// Settings come from an optional YAML file (-config) and CLI flags
// (-url, -transport, -draft, -name, -metrics, -debug). When no server URL
// is given the user is prompted for one.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/pterm/pterm"

	"github.com/1ureka/drawsync/internal/app"
	"github.com/1ureka/drawsync/internal/config"
	"github.com/1ureka/drawsync/internal/metrics"
	"github.com/1ureka/drawsync/internal/protocol"
	"github.com/1ureka/drawsync/internal/util"
)

var version = "dev"

func main() {
	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// CLI flags.
	configPath := flag.String("config", "", "Path to a YAML config file")
	serverURL := flag.String("url", "", "Drawing server WebSocket URL (or signaling URL with -transport peer)")
	transportKind := flag.String("transport", "", "Transport: websocket or peer")
	draftID := flag.String("draft", "", "Draft id to join (a new one is generated when empty)")
	draftName := flag.String("name", "", "Draft display name")
	metricsAddr := flag.String("metrics", "", "Serve Prometheus metrics on this address, e.g. 127.0.0.1:9090")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			util.LogError("%v", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	// Flags win over the file.
	if *serverURL != "" {
		cfg.ServerURL = *serverURL
	}
	if *transportKind != "" {
		cfg.Transport = config.TransportKind(*transportKind)
	}
	if *draftID != "" {
		cfg.DraftID = *draftID
	}
	if *draftName != "" {
		cfg.DraftName = *draftName
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	if *debugMode {
		cfg.Debug = true
	}

	if cfg.Debug {
		util.EnableDebug()
	}

	pterm.Info.Println(fmt.Sprintf("Drawsync — v%s", version))
	pterm.Println()

	if cfg.ServerURL == "" {
		cfg.ServerURL = askURL()
	} else {
		wsURL, err := normalizeWSURL(cfg.ServerURL)
		if err != nil {
			util.LogError("%v", err)
			os.Exit(1)
		}
		cfg.ServerURL = wsURL
	}
	if cfg.DraftID == "" {
		cfg.DraftID = protocol.NewDraftID()
	}

	if err := cfg.Validate(); err != nil {
		util.LogError("invalid configuration:\n%v", err)
		os.Exit(1)
	}

	if err := run(ctx, cfg); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
	util.LogInfo("successfully closed drawing session")
}

// ---------------------------------------------------------------------------
// Run
// ---------------------------------------------------------------------------

func run(ctx context.Context, cfg config.Config) error {
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		if err := metrics.Register(reg); err != nil {
			return err
		}
		if _, err := metrics.Serve(ctx, cfg.MetricsAddr, reg); err != nil {
			return err
		}
	}
	util.StartStatsReporter(ctx)

	dialer, err := app.NewDialer(cfg)
	if err != nil {
		return err
	}
	client := app.NewClient(ctx, cfg, dialer)
	defer client.Close()

	session, err := client.Open(protocol.Identity{DraftID: cfg.DraftID, DraftName: cfg.DraftName})
	if err != nil {
		return err
	}
	util.LogInfo("joining draft %s via %s (%s)", session.ID(), cfg.ServerURL, cfg.Transport)
	pterm.Println("Type help for commands.")

	repl(ctx, session)
	return nil
}

// repl reads commands from stdin until quit, EOF or ctx ends.
func repl(ctx context.Context, session *app.Session) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
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
			if !execute(session, line) {
				return
			}
		}
	}
}

// execute runs one REPL line. It returns false on quit.
func execute(session *app.Session, line string) bool {
	cmd, err := app.ParseCommand(line)
	if err != nil {
		util.LogWarning("%v", err)
		return true
	}

	switch cmd.Verb {
	case app.VerbNone:
	case app.VerbQuit:
		return false
	case app.VerbHelp:
		pterm.Println(app.Usage)
	case app.VerbList:
		printBoard(session.Board())
	case app.VerbStatus:
		printStatus(session.Status())
	default:
		if err := session.Apply(cmd); err != nil {
			if errors.Is(err, app.ErrUnknownShape) {
				util.LogWarning("%v (see list)", err)
			} else {
				util.LogWarning("%v", err)
			}
		}
	}
	return true
}

// ---------------------------------------------------------------------------
// Output
// ---------------------------------------------------------------------------

func printBoard(b *app.Board) {
	shapes := b.Shapes()
	if len(shapes) == 0 {
		pterm.Println("board is empty")
		return
	}

	data := pterm.TableData{{"ID", "Kind", "Final", "Shape"}}
	for _, s := range shapes {
		final := ""
		if b.Finalized(s.ShapeID()) {
			final = "✓"
		}
		data = append(data, []string{protocol.FormatID(s.ShapeID()), string(s.Kind()), final, fmt.Sprintf("%+v", s)})
	}
	pterm.DefaultTable.WithHasHeader().WithData(data).Render()

	off := b.Offset()
	pterm.Printfln("offset: (%g, %g)", off.X, off.Y)
}

func printStatus(st app.Status) {
	data := pterm.TableData{
		{"Draft", st.Identity.DraftID},
		{"Name", st.Identity.DraftName},
		{"State", st.State.String()},
		{"Healthy", fmt.Sprint(st.Healthy)},
		{"Heartbeat", fmt.Sprint(st.Heartbeat)},
		{"Queued", fmt.Sprint(st.Pending)},
		{"Retrying", fmt.Sprintf("%v (attempt %d)", st.Retrying, st.Attempts)},
		{"Handshakes", fmt.Sprint(st.Handshakes)},
		{"Shapes", fmt.Sprint(st.Shapes)},
	}
	pterm.DefaultTable.WithData(data).Render()
}

// ---------------------------------------------------------------------------
// Helper Functions
// ---------------------------------------------------------------------------

// normalizeWSURL validates a WebSocket URL. A bare host gets wss:// and a
// missing path becomes /ws.
func normalizeWSURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "wss://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid WebSocket URL: %s", raw)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid WebSocket URL scheme: %s", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}
	return u.String(), nil
}

// askURL prompts the user for a valid WebSocket URL until one is entered.
func askURL() string {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText("Drawing server URL (e.g. wss://draw.example.com/ws)").
			Show()

		wsURL, err := normalizeWSURL(raw)
		if err == nil {
			pterm.Println()
			return wsURL
		}

		pterm.Println()
		util.LogWarning("invalid input: please enter a valid host or URL")
	}
}
