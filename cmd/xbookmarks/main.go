package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"xbookmarks/pkg/auth"
	"xbookmarks/pkg/config"
	"xbookmarks/pkg/events"
	"xbookmarks/pkg/logger"
	"xbookmarks/pkg/session"
	"xbookmarks/pkg/store"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	driverName = flag.String("driver", "", "Browser driver to attach")
	database   = flag.String("database", "", "Path to the bookmark database")
	inMemory   = flag.Bool("in-memory", false, "Keep the bookmark database in memory")
	logLevel   = flag.String("log-level", "", "Log level (debug, info, warn, error)")
)

func main() {
	flag.Parse()

	flags := make(map[string]interface{})
	if *driverName != "" {
		flags["driver"] = *driverName
	}
	if *database != "" {
		flags["database"] = *database
	}
	if *inMemory {
		flags["in-memory"] = true
	}
	if *logLevel != "" {
		flags["log-level"] = *logLevel
	}

	cfg, err := config.Load(*configFile, flags)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load configuration:", err)
		os.Exit(1)
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize logging:", err)
		os.Exit(1)
	}
	log := logger.GetLogger()
	log.WithField("driver", cfg.Browser.Driver).Info("xbookmarks starting")

	st := store.New(storagePath(cfg))
	ctx := context.Background()
	if err := st.Initialize(ctx); err != nil {
		log.WithError(err).Error("Bookmark store could not be opened")
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer st.Close()

	emitter := events.NewEmitter()
	emitter.Subscribe(printSignal)

	registry := session.NewRegistry()
	registerDrivers(registry)

	machine := session.NewMachine(&cfg.Browser, registry, emitter, log)
	defer machine.TearDown(ctx)

	credentials, err := auth.NewManager()
	if err != nil {
		log.WithError(err).Warn("Credential storage unavailable; passwords will be prompted")
	}

	app := &app{
		cfg:         cfg,
		log:         log,
		store:       st,
		machine:     machine,
		credentials: credentials,
	}
	app.run(ctx)
}

func storagePath(cfg *config.Config) string {
	if cfg.Storage.InMemory {
		return store.InMemoryPath
	}
	return cfg.Storage.DatabasePath
}

func printSignal(s events.Signal) {
	switch s.Kind {
	case events.KindSuccess:
		fmt.Println("ok")
	case events.KindActionRequired:
		fmt.Println("action required:", s.Message)
	case events.KindUserError:
		fmt.Println("error:", s.Message)
	case events.KindInternalError:
		fmt.Println("internal error:", s.Message)
	}
}

type app struct {
	cfg         *config.Config
	log         logger.Logger
	store       *store.Store
	machine     *session.Machine
	credentials *auth.Manager
}

func (a *app) run(ctx context.Context) {
	fmt.Println("xbookmarks interactive session; type 'help' for commands")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		command, args := fields[0], fields[1:]

		switch command {
		case "help":
			printHelp()
		case "attach":
			a.attach(ctx, args)
		case "login":
			a.logIn(ctx, args)
		case "code":
			a.enterCode(ctx, args, a.machine.EnterConfirmationCode)
		case "2fa":
			a.enterCode(ctx, args, a.machine.EnterTwoFactorCode)
		case "fetch":
			a.fetch(ctx)
		case "cursor":
			a.showCursor(ctx)
		case "status":
			fmt.Println("session state:", a.machine.State())
		case "logout":
			a.logOut(ctx)
		case "end":
			if err := a.machine.TearDown(ctx); err != nil {
				a.log.WithError(err).Warn("Session teardown reported an error")
			}
		case "quit", "exit":
			return
		default:
			fmt.Printf("unknown command %q; type 'help' for commands\n", command)
		}
	}
}

func printHelp() {
	fmt.Print(`commands:
  attach [driver]   attach a browser session (defaults to the configured driver)
  login [username]  log in; stored credentials are used when available
  code <code>       submit a confirmation code
  2fa <code>        submit a two-factor authentication code
  fetch             capture the bookmark timeline and persist it
  cursor            show the persisted pagination cursor
  status            show the session state
  logout            log out of the upstream account
  end               log out and release the browser session
  quit              exit
`)
}

func (a *app) attach(ctx context.Context, args []string) {
	name := a.cfg.Browser.Driver
	if len(args) > 0 {
		name = args[0]
	}
	if err := a.machine.AttachSession(ctx, name); err != nil {
		a.log.WithError(err).Debug("Attach failed")
	}
}

func (a *app) logIn(ctx context.Context, args []string) {
	account, err := a.lookupAccount(args)
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	creds := session.Credentials{Username: account.Username, Password: account.Password}
	if err := a.machine.LogIn(ctx, creds); err != nil {
		a.log.WithError(err).Debug("Login failed")
	}
}

// lookupAccount resolves credentials for the login command: stored
// credentials first, an interactive password prompt otherwise.
func (a *app) lookupAccount(args []string) (*auth.Account, error) {
	if a.credentials != nil {
		if len(args) > 0 {
			if account, err := a.credentials.Retrieve(args[0]); err == nil {
				return account, nil
			}
		} else if account, err := a.credentials.RetrieveDefault(); err == nil {
			return account, nil
		}
	}

	username := ""
	if len(args) > 0 {
		username = args[0]
	} else {
		fmt.Print("username: ")
		if _, err := fmt.Scanln(&username); err != nil {
			return nil, fmt.Errorf("read username: %w", err)
		}
	}

	fmt.Print("password: ")
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return nil, fmt.Errorf("read password: %w", err)
	}

	account := &auth.Account{Username: username, Password: string(password)}
	if a.credentials != nil {
		if err := a.credentials.Store(account); err != nil {
			a.log.WithError(err).Warn("Credentials could not be saved for next time")
		}
	}
	return account, nil
}

func (a *app) enterCode(ctx context.Context, args []string, submit func(context.Context, string) error) {
	if len(args) != 1 {
		fmt.Println("usage: code <code>")
		return
	}
	if err := submit(ctx, args[0]); err != nil {
		a.log.WithError(err).Debug("Code submission failed")
	}
}

// fetch captures one bookmark timeline exchange and persists the
// extracted records and cursor pair.
func (a *app) fetch(ctx context.Context) {
	if err := a.machine.StartFetchingBookmarks(ctx); err != nil {
		a.log.WithError(err).Debug("Bookmark capture failed")
		return
	}

	requester := a.machine.Requester()
	if err := a.store.InsertRecords(ctx, requester.Tweets(), requester.Authors()); err != nil {
		a.log.WithError(err).Error("Bookmarks could not be persisted")
		fmt.Println("error:", userMessage(err))
		return
	}
	if err := a.store.PersistCursorState(ctx, requester.Cursor()); err != nil {
		a.log.WithError(err).Error("Cursor could not be persisted")
		fmt.Println("error:", userMessage(err))
		return
	}

	total, err := a.store.CountTweets(ctx)
	if err != nil {
		a.log.WithError(err).Warn("Stored bookmark count unavailable")
		fmt.Printf("saved %d bookmarks\n", len(requester.Tweets()))
		return
	}
	fmt.Printf("saved %d bookmarks (%d total)\n", len(requester.Tweets()), total)
}

func (a *app) showCursor(ctx context.Context) {
	cursor, err := a.store.GetCursorState(ctx)
	if err != nil {
		fmt.Println("error:", userMessage(err))
		return
	}
	if cursor == nil {
		fmt.Println("no cursor persisted yet")
		return
	}
	fmt.Printf("top:    %s\nbottom: %s\n", cursor.Top, cursor.Bottom)
}

func (a *app) logOut(ctx context.Context) {
	err := a.machine.LogOut(ctx, true)
	if errors.Is(err, session.ErrLogoutIncomplete) {
		fmt.Println("warning: the account may still be logged in")
		return
	}
	if err != nil {
		a.log.WithError(err).Debug("Logout failed")
	}
}

func userMessage(err error) string {
	type userFacing interface {
		UserMessage() string
	}
	var uf userFacing
	if errors.As(err, &uf) {
		return uf.UserMessage()
	}
	return err.Error()
}
