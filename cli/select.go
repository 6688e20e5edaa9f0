package cli

import (
	"errors"
	"strings"

	"github.com/manifoldco/promptui"
)

// ErrNoChoices is returned by Select when there is nothing to choose from.
var ErrNoChoices = errors.New("no choices")

// Select shows a menu and returns the index and value of the chosen item.
// Typing filters items by case-insensitive prefix.
func Select(label string, items []string) (int, string, error) {
	if len(items) == 0 {
		return -1, "", ErrNoChoices
	}

	sel := &promptui.Select{
		Label:    label,
		Items:    items,
		Size:     len(items),
		Searcher: PrefixSearcher(items),
	}

	return sel.Run()
}

// PrefixSearcher matches items whose name starts with the typed input,
// ignoring case.
func PrefixSearcher(items []string) func(input string, index int) bool {
	return func(input string, index int) bool {
		if input == "" || index < 0 || index >= len(items) {
			return false
		}

		return strings.HasPrefix(strings.ToLower(items[index]), strings.ToLower(input))
	}
}
