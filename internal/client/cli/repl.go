package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// printlnFn is a test seam for user-facing output.
var printlnFn = fmt.Println

// execIface is the command surface the REPL dispatches to. App implements
// it; tests use a stub.
type execIface interface {
	isUnlocked() bool
	Register(ctx context.Context) error
	Unlock(ctx context.Context) error
	Lock(ctx context.Context) error
	NewChat(ctx context.Context) error
	List(ctx context.Context) error
	Show(ctx context.Context, chatID string) error
	Title(ctx context.Context, chatID string) error
	Draft(ctx context.Context, chatID string) error
	ClearDraft(ctx context.Context, chatID string) error
	Send(ctx context.Context, chatID string) error
	DeleteMessage(ctx context.Context, messageID string) error
	Delete(ctx context.Context, chatID string) error
	Queue(ctx context.Context) error
	Ack(ctx context.Context, changeID string) error
	Logout(ctx context.Context) error
}

type command struct {
	arg    string
	whenLocked bool
	run    func(ctx context.Context, a execIface, arg string) error
}

var commands = map[string]command{
	"register":   {whenLocked: true, run: func(ctx context.Context, a execIface, _ string) error { return a.Register(ctx) }},
	"unlock":     {whenLocked: true, run: func(ctx context.Context, a execIface, _ string) error { return a.Unlock(ctx) }},
	"lock":       {run: func(ctx context.Context, a execIface, _ string) error { return a.Lock(ctx) }},
	"new":        {run: func(ctx context.Context, a execIface, _ string) error { return a.NewChat(ctx) }},
	"list":       {run: func(ctx context.Context, a execIface, _ string) error { return a.List(ctx) }},
	"show":       {arg: "chat_id", run: func(ctx context.Context, a execIface, id string) error { return a.Show(ctx, id) }},
	"title":      {arg: "chat_id", run: func(ctx context.Context, a execIface, id string) error { return a.Title(ctx, id) }},
	"draft":      {arg: "chat_id", run: func(ctx context.Context, a execIface, id string) error { return a.Draft(ctx, id) }},
	"cleardraft": {arg: "chat_id", run: func(ctx context.Context, a execIface, id string) error { return a.ClearDraft(ctx, id) }},
	"send":       {arg: "chat_id", run: func(ctx context.Context, a execIface, id string) error { return a.Send(ctx, id) }},
	"delmsg":     {arg: "message_id", run: func(ctx context.Context, a execIface, id string) error { return a.DeleteMessage(ctx, id) }},
	"delete":     {arg: "chat_id", run: func(ctx context.Context, a execIface, id string) error { return a.Delete(ctx, id) }},
	"queue":      {run: func(ctx context.Context, a execIface, _ string) error { return a.Queue(ctx) }},
	"ack":        {arg: "change_id", run: func(ctx context.Context, a execIface, id string) error { return a.Ack(ctx, id) }},
	"logout":     {run: func(ctx context.Context, a execIface, _ string) error { return a.Logout(ctx) }},
}

// runREPL reads commands from reader until EOF or "exit". Prompts issued by
// the commands read from the same reader.
//
//	Locked:    register, unlock, help, exit
//	Unlocked:  new, list, show, title, draft, cleardraft, send, delmsg,
//	           delete, queue, ack, lock, logout, help, exit
//
// Command errors are printed and the loop goes on.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		printlnFn(fmt.Sprintf("ck %s> ", statusFn()))
		line, err := reader.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || strings.TrimSpace(line) == "") {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		name := parts[0]

		switch name {
		case "help":
			if a.isUnlocked() {
				printlnFn("Available commands: new, list, show <id>, title <id>, draft <id>, cleardraft <id>, send <id>, delmsg <id>, delete <id>, queue, ack <id>, lock, logout, exit")
			} else {
				printlnFn("Available commands: register, unlock, exit")
			}
			continue
		case "exit", "quit":
			printlnFn("Bye!")
			return
		}

		cmd, ok := commands[name]
		if !ok {
			printlnFn("Unknown command:", name)
			continue
		}
		if !cmd.whenLocked && !a.isUnlocked() {
			printlnFn("Locked. Use 'unlock' first.")
			continue
		}
		var arg string
		if cmd.arg != "" {
			if len(parts) < 2 {
				printlnFn(fmt.Sprintf("Usage: %s <%s>", name, cmd.arg))
				continue
			}
			arg = parts[1]
		}
		if err := cmd.run(ctx, a, arg); err != nil {
			printlnFn("Error:", err)
		}
	}
}
