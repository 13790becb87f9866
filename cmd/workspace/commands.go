package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"mocksync/internal/cursor"
	"mocksync/internal/document"
	"mocksync/internal/document/model"
)

// workspace is the part of the session the prompt drives.
type workspace interface {
	Tabs() ([]model.Tab, error)
	ActiveTab() (string, error)
	AddTab(name string) (model.Tab, error)
	RenameTab(id, name string) error
	DeleteTab(id string) error
	SwitchTab(id string) error
	Markers() ([]cursor.Marker, error)
	Saving() bool
	SaveNow(ctx context.Context) error
}

const usage = `commands:
  tabs                  list tabs, * marks the one in the directory
  add <name>            create a tab and open it
  rename <id> <name>    rename a tab
  delete <id>           delete a tab
  open <id>             put a tab into the directory
  cursors               show who is pointing where
  save                  save now
  quit                  save and exit`

// commands reads one command per line. It reports whether the user asked to
// quit, as opposed to input running out.
func commands(ctx context.Context, ws workspace, in io.Reader, out io.Writer) bool {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "quit" || fields[0] == "exit" {
			return true
		}
		if err := run(ctx, ws, fields, out); err != nil {
			fmt.Fprintf(out, "error: %s\n", describe(err))
		}
	}
	return false
}

func run(ctx context.Context, ws workspace, fields []string, out io.Writer) error {
	args := fields[1:]
	switch fields[0] {
	case "help":
		fmt.Fprintln(out, usage)
	case "tabs":
		tabs, err := ws.Tabs()
		if err != nil {
			return err
		}
		active, err := ws.ActiveTab()
		if err != nil {
			return err
		}
		for _, tab := range tabs {
			mark := " "
			if tab.ID == active {
				mark = "*"
			}
			fmt.Fprintf(out, "%s %s  %s\n", mark, tab.ID, tab.Name)
		}
	case "add":
		if len(args) == 0 {
			return errors.New("usage: add <name>")
		}
		tab, err := ws.AddTab(strings.Join(args, " "))
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "added %s\n", tab.ID)
	case "rename":
		if len(args) < 2 {
			return errors.New("usage: rename <id> <name>")
		}
		return ws.RenameTab(args[0], strings.Join(args[1:], " "))
	case "delete":
		if len(args) != 1 {
			return errors.New("usage: delete <id>")
		}
		return ws.DeleteTab(args[0])
	case "open":
		if len(args) != 1 {
			return errors.New("usage: open <id>")
		}
		return ws.SwitchTab(args[0])
	case "cursors":
		markers, err := ws.Markers()
		if err != nil {
			return err
		}
		if len(markers) == 0 {
			fmt.Fprintln(out, "nobody else is here")
		}
		for _, m := range markers {
			fmt.Fprintf(out, "%s (%s) at %.0f%%, %.0f%%\n", m.Name, m.SenderID, m.Position.RX*100, m.Position.RY*100)
		}
	case "save":
		if ws.Saving() {
			fmt.Fprintln(out, "saving...")
		}
		if err := ws.SaveNow(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "saved")
	default:
		return fmt.Errorf("unknown command %q, try help", fields[0])
	}
	return nil
}

func describe(err error) string {
	switch {
	case errors.Is(err, document.ErrLastTab):
		return "a project needs at least one tab"
	case errors.Is(err, document.ErrTabNotFound):
		return "no such tab"
	case errors.Is(err, document.ErrEmptyName):
		return "tab names cannot be blank"
	}
	return err.Error()
}
