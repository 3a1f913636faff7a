// Package cli provides the interactive chatkeeper command-line client.
//
// It wires configuration, the encrypted local store, the draft service and
// the offline queue into a REPL. Typical flow: register or unlock, create a
// chat from a draft, edit its title and draft, send messages, inspect the
// offline queue, lock or log out.
//
// The REPL is started with App.Run, which blocks until the user exits.
package cli
