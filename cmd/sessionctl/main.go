package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"

	"github.com/redis/go-redis/v9"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/authority"
	"github.com/MrEthical07/goSession/gateway"
	"github.com/MrEthical07/goSession/guard"
	"github.com/MrEthical07/goSession/metrics/export/prometheus"
	"github.com/MrEthical07/goSession/session"
)

const usage = `usage: sessionctl [flags] <command> [args]

commands:
  status                 print the recovered session and the guard decision
  login -token T -user U -role R
                         store a session obtained from the sign-in flow
  logout                 end the session locally and notify the authority
  refresh                pull the latest profile from the authority
  request <endpoint>     send an authorized GET through the gateway
  metrics                print counters in Prometheus text format
`

func main() {
	var (
		configPath = flag.String("config", "", "path to a TOML config file (defaults apply when empty)")
		apiURL     = flag.String("api", "", "base URL for gateway requests (defaults to the authority URL)")
	)
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, *configPath, *apiURL, flag.Args(), os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "sessionctl: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath, apiURL string, args []string, out io.Writer) error {
	cfg := goSession.DefaultConfig()
	if configPath != "" {
		loaded, err := goSession.LoadConfig(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	logger := goSession.NewLogger(os.Stderr, cfg.Log)

	kv, err := openKV(cfg.Store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	client, err := authority.New(cfg.Authority)
	if err != nil {
		_ = kv.Close()
		return err
	}

	m, err := goSession.New().
		WithConfig(cfg).
		WithKV(kv).
		WithAuthority(client).
		WithAuditSink(goSession.NewSlogSink(logger)).
		WithLogger(logger).
		Build()
	if err != nil {
		_ = kv.Close()
		return err
	}
	defer m.Close()

	if err := m.RecoverSession(ctx); err != nil {
		logger.Warn("session recovery failed", "error", err)
	}

	switch args[0] {
	case "status":
		return status(m, cfg, out)
	case "login":
		return login(ctx, m, client, args[1:], out)
	case "logout":
		if err := m.Logout(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "signed out")
		return nil
	case "refresh":
		if err := m.Refresh(ctx); err != nil {
			return err
		}
		return status(m, cfg, out)
	case "request":
		if len(args) < 2 {
			return errors.New("request: endpoint required")
		}
		base := apiURL
		if base == "" {
			base = cfg.Authority.BaseURL
		}
		return request(ctx, m, base, cfg, logger, args[1], out)
	case "metrics":
		_, err := io.WriteString(out, prometheus.NewPrometheusExporter(m).Render())
		return err
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func openKV(cfg goSession.StoreConfig) (session.KV, error) {
	switch strings.ToLower(cfg.Backend) {
	case goSession.StoreBackendSQLite:
		return session.OpenSQLiteKV(cfg.Path)
	case goSession.StoreBackendRedis:
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{cfg.RedisAddr},
			DB:    cfg.RedisDB,
		})
		return session.NewRedisKV(client), nil
	case goSession.StoreBackendMemory:
		return session.NewMemoryKV(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

func status(m *goSession.Manager, cfg goSession.Config, out io.Writer) error {
	st := m.State()
	d := guard.Guard{Routes: guard.RoutesFromConfig(cfg.Guard)}.Evaluate(st)

	view := struct {
		Authenticated bool             `json:"authenticated"`
		Guard         string           `json:"guard"`
		Redirect      string           `json:"redirect,omitempty"`
		Landing       string           `json:"landing,omitempty"`
		Session       *session.Session `json:"session,omitempty"`
	}{
		Authenticated: st.Authenticated(),
		Guard:         d.Status.String(),
		Redirect:      d.Redirect,
		Session:       st.Session,
	}
	if st.Session != nil {
		view.Landing = guard.RoutesFromConfig(cfg.Guard).LandingFor(st.Session.Role)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(view)
}

func login(ctx context.Context, m *goSession.Manager, client *authority.Client, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	token := fs.String("token", "", "bearer credential issued by the sign-in flow")
	user := fs.String("user", "", "user id")
	role := fs.String("role", string(session.RoleParent), "parent or staff")
	if err := fs.Parse(args); err != nil {
		return err
	}

	r, err := session.ParseRole(*role)
	if err != nil {
		return err
	}
	if err := client.VerifyToken(ctx, *token); err != nil {
		return fmt.Errorf("verify token: %w", err)
	}

	s := session.Session{UserID: *user, Role: r}
	if patch, err := client.FetchProfile(ctx, *token); err == nil {
		if next, err := patch.Apply(&s); err == nil {
			s = *next
		}
	}
	if err := m.Login(ctx, s, *token); err != nil {
		return err
	}
	fmt.Fprintf(out, "signed in as %s (%s)\n", s.UserID, s.Role)
	return nil
}

func request(ctx context.Context, m *goSession.Manager, base string, cfg goSession.Config, logger *slog.Logger, endpoint string, out io.Writer) error {
	gw, err := gateway.New(base, m,
		gateway.WithTimeout(cfg.Authority.Timeout),
		gateway.WithMetrics(m.Metrics()),
		gateway.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	resp, err := gw.Request(ctx, endpoint, gateway.Options{Method: http.MethodGet})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "HTTP %d\n", resp.StatusCode)
	_, err = out.Write(resp.Body)
	return err
}
