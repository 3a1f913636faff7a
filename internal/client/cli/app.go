package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/chatkeeper/internal/client/codec"
	"github.com/dmitrijs2005/chatkeeper/internal/client/config"
	"github.com/dmitrijs2005/chatkeeper/internal/client/drafts"
	"github.com/dmitrijs2005/chatkeeper/internal/client/keys"
	"github.com/dmitrijs2005/chatkeeper/internal/client/offline"
	"github.com/dmitrijs2005/chatkeeper/internal/client/session"
	"github.com/dmitrijs2005/chatkeeper/internal/client/store"
	"github.com/dmitrijs2005/chatkeeper/internal/logging"
)

type App struct {
	config   *config.Config
	store    *store.Store
	session  *session.Session
	drafts   *drafts.Service
	queue    *offline.Queue
	log      logging.Logger
	userName string
	reader   *bufio.Reader
	out      io.Writer
}

// NewApp opens the local store and wires every service on top of it.
func NewApp(ctx context.Context, c *config.Config, log logging.Logger) (*App, error) {
	cdc := codec.New(keys.NewManager(), log)

	st, err := store.Open(ctx, c.DatabasePath, cdc, log)
	if err != nil {
		return nil, fmt.Errorf("error initializing database: %w", err)
	}

	return &App{
		config:  c,
		store:   st,
		session: session.New(st, c.KDF.Params(), log),
		drafts:  drafts.NewService(st, log),
		queue:   offline.NewQueue(st.Repositories().Changes, cdc, log),
		log:     log,
		reader:  bufio.NewReader(os.Stdin),
		out:     os.Stdout,
	}, nil
}

// Run blocks in the REPL until the user exits or input ends, then locks the
// session and closes the store.
func (a *App) Run(ctx context.Context) {
	defer a.Close(ctx)

	fmt.Fprintln(a.out, "Welcome to chatkeeper (type 'help' for commands)")
	if ok, err := a.session.IsRegistered(ctx); err == nil && !ok {
		fmt.Fprintln(a.out, "No local account yet, use 'register' to create one.")
	}
	runREPL(ctx, a, a.getStatus, a.reader)
}

func (a *App) Close(ctx context.Context) {
	a.session.Lock(ctx)
	if err := a.store.Close(); err != nil {
		a.log.Error(ctx, "failed to close store", "err", err)
	}
}

func (a *App) isUnlocked() bool {
	return a.session.IsUnlocked()
}

func (a *App) getStatus() string {
	switch {
	case a.isUnlocked() && a.userName != "":
		return "(" + a.userName + ")"
	case a.isUnlocked():
		return "(unlocked)"
	default:
		return "(locked)"
	}
}
