package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/term"

	"github.com/dmitrijs2005/vehiclecheck/internal/client/client"
	"github.com/dmitrijs2005/vehiclecheck/internal/client/config"
	"github.com/dmitrijs2005/vehiclecheck/internal/client/livesync"
	"github.com/dmitrijs2005/vehiclecheck/internal/client/services"
	"github.com/dmitrijs2005/vehiclecheck/internal/client/session"
	"github.com/dmitrijs2005/vehiclecheck/internal/docstore"
	"github.com/dmitrijs2005/vehiclecheck/internal/docstore/memory"
	"github.com/dmitrijs2005/vehiclecheck/internal/identity"
	"github.com/dmitrijs2005/vehiclecheck/internal/logging"
	"github.com/dmitrijs2005/vehiclecheck/internal/notify"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"

	// ModeLocal runs against in-process stand-ins; nothing leaves the machine.
	ModeLocal Mode = "local"
)

// Pinger probes the backend.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the client screens run on. NewApp builds them
// from the configuration; tests pass their own.
type Deps struct {
	Provider identity.Provider
	Store    docstore.Store
	Uploader services.Uploader
	Creds    *session.CredentialStore
	// Pinger is nil when there is no server to probe.
	Pinger   Pinger
	Registry *prometheus.Registry
	// Close releases whatever NewApp opened. May be nil.
	Close func() error
}

type App struct {
	config   *config.Config
	log      logging.Logger
	out      io.Writer
	reader   *bufio.Reader
	secretFn func(prompt string) (string, error)

	provider    identity.Provider
	pinger      Pinger
	registry    *prometheus.Registry
	closeFn     func() error
	auth        services.AuthService
	inspections services.InspectionService
	accounts    services.AccountService
	profile     services.ProfileService

	pipeline *livesync.Pipeline
	views    *viewBox
	nav      *navigator

	// ctx is the context Run was started with; screen subscriptions live in it.
	ctx context.Context

	modeMu sync.Mutex
	Mode   Mode
}

// NewApp opens the local database and connects to the backend named in c,
// or to in-process stand-ins when c.Offline is set.
func NewApp(ctx context.Context, c *config.Config, l logging.Logger) (*App, error) {
	db, err := client.InitDatabase(ctx, c.DatabasePath)
	if err != nil {
		l.Error(ctx, "error initializing database", "error", err)
		return nil, err
	}
	repos := client.NewRepositories(db)

	deps := Deps{
		Creds:    session.NewCredentialStore(repos.Metadata, l),
		Registry: prometheus.NewRegistry(),
	}

	if c.Offline {
		store := memory.New(memory.WithLogger(l))
		deps.Provider = identity.NewMemory()
		deps.Store = store
		deps.Uploader = localUploader{}
		deps.Close = func() error {
			store.Close()
			return db.Close()
		}
	} else {
		apiClient, err := client.NewGRPCClient(c.ServerEndpointAddr, l)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		deps.Provider = apiClient
		deps.Store = apiClient
		deps.Uploader = apiClient
		deps.Pinger = apiClient
		deps.Close = func() error {
			_ = apiClient.Close()
			return db.Close()
		}
	}

	a := New(c, deps, os.Stdin, os.Stdout, l)
	if term.IsTerminal(int(os.Stdin.Fd())) {
		a.secretFn = func(prompt string) (string, error) { return GetPassword(a.out, prompt) }
	}
	return a, nil
}

// New assembles the client on deps, reading commands from in and writing
// screens to out. Secrets are read as plain lines from in.
func New(c *config.Config, deps Deps, in io.Reader, out io.Writer, l logging.Logger) *App {
	if l == nil {
		l = logging.Nop{}
	}
	if deps.Registry == nil {
		deps.Registry = prometheus.NewRegistry()
	}

	n := notify.Multi{notify.NewWriterNotifier(out), notify.NewLogNotifier(l)}
	metrics := livesync.NewMetrics(deps.Registry)

	a := &App{
		config:      c,
		log:         l.With("module", "cli"),
		out:         out,
		reader:      bufio.NewReader(in),
		provider:    deps.Provider,
		pinger:      deps.Pinger,
		registry:    deps.Registry,
		closeFn:     deps.Close,
		auth:        services.NewAuthService(deps.Provider, deps.Store, deps.Creds, n, l),
		inspections: services.NewInspectionService(deps.Provider, deps.Store, n, l),
		accounts:    services.NewAccountService(deps.Provider, deps.Store, deps.Creds, n, l),
		profile:     services.NewProfileService(deps.Provider, deps.Store, deps.Uploader, n, l),
		views:       newViewBox(),
		ctx:         context.Background(),
		Mode:        ModeLocal,
	}
	if deps.Pinger != nil {
		a.Mode = ModeOnline
	}
	a.secretFn = func(prompt string) (string, error) { return GetSimpleText(a.reader, prompt, a.out) }

	a.pipeline = livesync.NewPipeline(
		livesync.NewSessionWatcher(deps.Provider, l),
		livesync.NewUserRecordSync(deps.Store, deps.Creds, l, metrics),
		livesync.NewInspectionRecordSync(deps.Store, l, metrics, livesync.WithRetentionMonths(c.RetentionMonths)),
		a.views.set,
		l,
	)
	a.nav = newNavigator(a.subscriptionFor, l)
	return a
}

func (a *App) setMode(mode Mode) {
	a.modeMu.Lock()
	defer a.modeMu.Unlock()
	if a.Mode != mode {
		a.Mode = mode
		a.log.Info(context.Background(), "switched mode", "mode", string(mode))
	}
}

func (a *App) mode() Mode {
	a.modeMu.Lock()
	defer a.modeMu.Unlock()
	return a.Mode
}

// Run resumes the stored session, then serves the REPL until the user exits.
func (a *App) Run(ctx context.Context) {
	a.ctx = ctx
	defer a.shutdown()

	fmt.Fprintln(a.out, "Welcome to vehiclecheck (type 'help' for commands)")

	if id, _ := a.auth.Resume(ctx); id != nil {
		_ = a.Home(ctx)
	} else {
		_ = a.Onboarding(ctx)
	}

	if a.pinger != nil {
		go a.StartOnlineStatusWatcher(ctx, a.config.OnlineCheckInterval)
	}

	runREPL(ctx, a, a.getStatus, a.reader)
}

func (a *App) shutdown() {
	a.nav.unmountAll()
	a.pipeline.Stop()
	if a.closeFn != nil {
		if err := a.closeFn(); err != nil {
			a.log.Warn(context.Background(), "close failed", "error", err)
		}
	}
}

func (a *App) isLoggedIn() bool {
	return a.provider.Current() != nil
}

func (a *App) getStatus() string {
	s := ""
	if id := a.provider.Current(); id != nil {
		s = id.Email + " "
	}
	s += string(a.mode())
	if screen := a.nav.current(); screen != "" {
		s += " " + string(screen)
	}
	return fmt.Sprintf("(%s)", s)
}

// StartOnlineStatusWatcher pings the backend every interval and flips the
// mode shown in the prompt. It blocks until ctx is done.
func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := a.pinger.Ping(pctx)
			cancel()

			if err != nil {
				a.setMode(ModeOffline)
			} else {
				a.setMode(ModeOnline)
			}

		case <-ctx.Done():
			return
		}
	}
}

// localUploader keeps picked images on the device in offline mode.
type localUploader struct{}

func (localUploader) Upload(_ context.Context, name string, _ []byte) (string, error) {
	return "local://" + name, nil
}
