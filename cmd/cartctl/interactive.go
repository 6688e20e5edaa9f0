package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/statecart/statecart/cart"
	"github.com/statecart/statecart/cli"
)

const (
	choiceLog  = "Show log"
	choiceQuit = "Quit"
)

var errBadCartID = errors.New("cart ID must not contain spaces or slashes")

// runInteractive offers the triggers permitted in the cart's current state
// until the user quits.
func runInteractive(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("interactive", a.out)
	id := fs.String("id", "", "cart ID; prompted for when empty")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *id == "" {
		answer, err := askCartID()
		if err != nil {
			return ignoreInterrupt(err)
		}

		*id = answer
	}

	var (
		c   *cart.Cart
		err error
	)

	if *id == "" {
		c, err = a.reg.Create(ctx)
	} else {
		c, err = a.reg.Open(ctx, *id)
	}

	if err != nil {
		return err
	}

	for ctx.Err() == nil {
		fmt.Fprint(a.out, cli.BannerAutoWidth(status(c.Snapshot()), cli.AlignLeft))

		_, choice, err := cli.Select("Trigger", menu(c.PermittedTriggers()))
		if err != nil {
			return ignoreInterrupt(err)
		}

		switch choice {
		case choiceQuit:
			return nil
		case choiceLog:
			printLog(a.out, c.LogLines())

			continue
		}

		trigger, err := cart.ParseTrigger(choice)
		if err != nil {
			return err
		}

		if trigger == cart.DeleteCart {
			ok, err := confirmDelete(c.Snapshot())
			if err != nil {
				return ignoreInterrupt(err)
			}

			if !ok {
				continue
			}
		}

		if err := c.Fire(ctx, trigger); err != nil {
			return err
		}
	}

	return nil
}

func askCartID() (string, error) {
	prompt := promptui.Prompt{
		Label:    "Cart ID (empty for a new cart)",
		Validate: validateCartID,
	}

	answer, err := prompt.Run()

	return strings.TrimSpace(answer), err
}

// validateCartID accepts IDs that can be used in a /carts/{id} URL.
func validateCartID(input string) error {
	if strings.ContainsAny(strings.TrimSpace(input), " \t/") {
		return errBadCartID
	}

	return nil
}

// confirmDelete asks before firing DeleteCart. Anything but "y" keeps the cart.
func confirmDelete(snap cart.Snapshot) (bool, error) {
	prompt := promptui.Prompt{
		Label:     deleteLabel(snap),
		IsConfirm: true,
	}

	if _, err := prompt.Run(); err != nil {
		if errors.Is(err, promptui.ErrAbort) {
			return false, nil
		}

		return false, err
	}

	return true, nil
}

func deleteLabel(snap cart.Snapshot) string {
	if snap.ItemCount == 0 {
		return fmt.Sprintf("Delete empty cart %s", snap.ID)
	}

	return fmt.Sprintf("Delete cart %s with %d item(s); Deleted is final", snap.ID, snap.ItemCount)
}

func status(snap cart.Snapshot) string {
	return fmt.Sprintf("Cart %s\nState: %s    Items: %d    Log entries: %d",
		snap.ID, snap.State, snap.ItemCount, len(snap.Log))
}

func menu(permitted []cart.Trigger) []string {
	items := make([]string, 0, len(permitted)+2) //nolint:mnd

	for _, t := range permitted {
		items = append(items, t.String())
	}

	return append(items, choiceLog, choiceQuit)
}

func printLog(out io.Writer, lines []string) {
	fmt.Fprint(out, cli.DividerAutoWidth())

	if len(lines) == 0 {
		fmt.Fprintln(out, "(empty)")
	}

	for _, line := range lines {
		fmt.Fprintln(out, line)
	}
}

func ignoreInterrupt(err error) error {
	if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
		return nil
	}

	return err
}
