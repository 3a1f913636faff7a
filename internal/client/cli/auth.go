package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/chatkeeper/internal/common"
)

// getSimpleText and getPassword are indirections swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

func (a *App) readCredentials() (string, []byte, error) {
	userName, err := getSimpleText(a.reader, "Enter user name", a.out)
	if err != nil {
		return "", nil, err
	}
	password, err := getPassword(a.out)
	if err != nil {
		return "", nil, err
	}
	return userName, password, nil
}

// Register creates the local account and leaves the session unlocked.
func (a *App) Register(ctx context.Context) error {
	userName, password, err := a.readCredentials()
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	if err := a.session.Register(ctx, userName, password); err != nil {
		return err
	}
	a.userName = userName
	fmt.Fprintln(a.out, "Account created.")
	return nil
}

// Unlock derives the master key from the password and unlocks the store.
func (a *App) Unlock(ctx context.Context) error {
	userName, password, err := a.readCredentials()
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	err = a.session.Unlock(ctx, userName, password)
	switch {
	case errors.Is(err, common.ErrLocalDataNotAvailable):
		return fmt.Errorf("no local account, register first: %w", err)
	case err != nil:
		return err
	}
	a.userName = userName
	fmt.Fprintln(a.out, "Unlocked.")
	return nil
}

func (a *App) Lock(ctx context.Context) error {
	a.session.Lock(ctx)
	a.userName = ""
	fmt.Fprintln(a.out, "Locked.")
	return nil
}

// Logout wipes every local chat, the offline queue and the credentials.
func (a *App) Logout(ctx context.Context) error {
	answer, err := getSimpleText(a.reader, "This deletes all local data. Type 'yes' to continue", a.out)
	if err != nil {
		return err
	}
	if answer != "yes" {
		fmt.Fprintln(a.out, "Cancelled.")
		return nil
	}
	if err := a.session.Logout(ctx); err != nil {
		return err
	}
	a.userName = ""
	fmt.Fprintln(a.out, "Logged out, local data removed.")
	return nil
}
