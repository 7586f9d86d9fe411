package cli

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/roach88/yatra/internal/checkpoint"
	"github.com/roach88/yatra/internal/config"
	"github.com/roach88/yatra/internal/derive"
	"github.com/roach88/yatra/internal/ingest"
	"github.com/roach88/yatra/internal/remote"
	"github.com/roach88/yatra/internal/store"
	"github.com/roach88/yatra/internal/syncer"
)

// drainTimeout bounds how long a one-shot command waits for background
// pushes before exiting. Undelivered scans stay queued.
const drainTimeout = 5 * time.Second

// app is the wired device: store, optional remote, sync engine and ingester.
type app struct {
	cfg      config.Config
	store    *store.Store
	remote   remote.Adapter
	engine   *syncer.Engine
	ingester *ingest.Ingester
	deviceID string
}

// openApp loads config, opens the store and wires the components. engine is
// nil when no remote is configured.
func openApp(ctx context.Context, opts *RootOptions) (*app, error) {
	cfg, err := opts.loadConfig()
	if err != nil {
		return nil, err
	}

	slog.Debug("opening database", "path", cfg.Database)
	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	a := &app{cfg: cfg, store: st}
	if err := a.init(ctx, opts); err != nil {
		st.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) init(ctx context.Context, opts *RootOptions) error {
	if v := a.cfg.Device.VolunteerID; v != "" {
		if err := a.store.SetVolunteerID(ctx, v); err != nil {
			return WrapExitError(ExitCommandError, "failed to record volunteer", err)
		}
	}
	deviceID, err := a.store.DeviceID(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read device id", err)
	}
	a.deviceID = deviceID

	a.remote = opts.Remote
	if a.remote == nil && a.cfg.Remote.URL != "" {
		clientOpts := []remote.ClientOption{remote.WithTimeout(a.cfg.Remote.Timeout.Std())}
		if s := a.cfg.Remote.TokenSecret; s != "" {
			clientOpts = append(clientOpts, remote.WithDeviceToken([]byte(s), deviceID))
		}
		a.remote = remote.NewClient(a.cfg.Remote.URL, clientOpts...)
	}

	ingestOpts := []ingest.Option{
		ingest.WithDuplicateWindow(a.cfg.Ingest.DuplicateWindow.Std()),
		ingest.WithDeriveOptions(a.deriveOptions()),
	}
	if a.remote != nil {
		sc := a.cfg.Sync
		a.engine = syncer.New(a.store, a.remote,
			syncer.WithNow(opts.now),
			syncer.WithIntervals(sc.IntervalOnline.Std(), sc.IntervalOffline.Std()),
			syncer.WithBackoff(syncer.Backoff{
				Base:   sc.BackoffBase.Std(),
				Cap:    sc.BackoffCap.Std(),
				Jitter: syncer.DefaultJitter,
			}),
			syncer.WithMaxAttempts(sc.MaxAttempts),
		)
		ingestOpts = append(ingestOpts, ingest.WithPusher(a.engine))
	}
	a.ingester = ingest.New(a.store, ingestOpts...)
	return nil
}

func (a *app) deriveOptions() derive.Options {
	return derive.Options{SafetyThreshold: a.cfg.Derive.SafetyThreshold.Std()}
}

// errNoRemote is returned by commands that need a remote store when
// remote.url is unset.
var errNoRemote = errors.New("no remote configured: set remote.url in the config file")

// requireEngine fails commands that need a remote store.
func (a *app) requireEngine(f *OutputFormatter) error {
	if a.engine == nil {
		return fail(f, ExitCommandError, "sync unavailable", errNoRemote)
	}
	return nil
}

// selectedCheckpoint returns flagValue when set, else the device default.
func (a *app) selectedCheckpoint(ctx context.Context, flagValue int) (checkpoint.ID, error) {
	if flagValue != 0 {
		id := checkpoint.ID(flagValue)
		if !checkpoint.Valid(id) {
			return 0, WrapExitError(ExitCommandError, "invalid checkpoint", ingest.ErrUnknownCheckpoint)
		}
		return id, nil
	}
	id, err := a.store.SelectedCheckpoint(ctx)
	if err != nil {
		return 0, WrapExitError(ExitFailure, "failed to read selected checkpoint", err)
	}
	return id, nil
}

// Close waits briefly for background pushes, stops the engine and closes
// the store.
func (a *app) Close() error {
	var errs []error
	if a.engine != nil {
		ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		if err := a.engine.Drain(ctx); err != nil {
			slog.Warn("background pushes still running at exit; scans stay queued", "error", err)
		}
		cancel()
		errs = append(errs, a.engine.Close())
	}
	if err := a.store.Close(); err != nil {
		slog.Error("error closing database", "error", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// withApp opens the app for one command, reports open failures through f
// and closes the app when fn returns.
func withApp(ctx context.Context, opts *RootOptions, f *OutputFormatter, fn func(a *app) error) (err error) {
	a, err := openApp(ctx, opts)
	if err != nil {
		_ = f.Error(errorCode(err), "failed to start", err.Error())
		return err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil && err == nil {
			err = WrapExitError(ExitFailure, "failed to close", closeErr)
		}
	}()
	return fn(a)
}

// errorCode maps domain errors to envelope codes.
func errorCode(err error) string {
	var cerr *config.Error
	switch {
	case errors.Is(err, errNoRemote):
		return ErrCodeNoRemote
	case errors.As(err, &cerr):
		return ErrCodeConfig
	case errors.Is(err, ingest.ErrParticipantNotFound):
		return ErrCodeParticipantNotFound
	case errors.Is(err, ingest.ErrUnknownCheckpoint):
		return ErrCodeUnknownCheckpoint
	case ingest.IsLocalPersistence(err):
		return ErrCodeStore
	case remote.IsUnavailable(err), remote.IsRejected(err), syncer.IsPartialSync(err):
		return ErrCodeRemote
	}
	return ErrCodeGeneric
}

// fail reports err through the formatter and returns it as an ExitError.
func fail(f *OutputFormatter, code int, message string, err error) error {
	_ = f.Error(errorCode(err), message, errString(err))
	return WrapExitError(code, message, err)
}

func errString(err error) any {
	if err == nil {
		return nil
	}
	return err.Error()
}
