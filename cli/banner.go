package cli

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"unicode"

	"go.uber.org/atomic"
)

const (
	boxTopLeft     = "╒"
	boxBottomLeft  = "└"
	boxTopRight    = "╕"
	boxBottomRight = "┘"
	boxSide        = "│"
	boxTop         = "═"
	boxBottom      = "─"
	dividerLeft    = "┠"
	dividerMiddle  = "─"
	dividerRight   = "┨"
	ellipsis       = "…"
)

// Alignment of banner lines.
type Alignment int

const (
	AlignLeft Alignment = iota
	AlignCenter
	AlignRight
)

const (
	bannerPadding   = 2
	truncateReserve = 1
	halfDivisor     = 2

	DefaultTerminalWidth = 80
)

var plain = atomic.NewBool(false) //nolint:gochecknoglobals

// SetPlain turns box drawing off, for output that is piped or logged.
func SetPlain(p bool) {
	plain.Store(p)
}

// DividerAutoWidth returns a divider as wide as the terminal.
func DividerAutoWidth() string {
	return Divider(terminalWidth())
}

// Divider returns a horizontal rule of the given width.
func Divider(width int) string {
	if plain.Load() || width < bannerPadding {
		return "\n"
	}

	return dividerLeft + strings.Repeat(dividerMiddle, width-bannerPadding) + dividerRight + "\n"
}

// BannerAutoWidth boxes s to the terminal width.
func BannerAutoWidth(s string, align Alignment) string {
	return Banner(s, terminalWidth(), align)
}

// Banner draws a box around the lines of s, truncating lines that do not fit.
func Banner(s string, width int, align Alignment) string {
	if plain.Load() {
		return s + "\n"
	}

	if width <= bannerPadding || s == "" {
		return ""
	}

	inner := width - bannerPadding
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")

	parts := make([]string, 0, len(lines)+2)
	parts = append(parts, boxTopLeft+strings.Repeat(boxTop, inner)+boxTopRight)

	for _, l := range lines {
		parts = append(parts, boxSide+pad(l, inner, align)+boxSide)
	}

	parts = append(parts, boxBottomLeft+strings.Repeat(boxBottom, inner)+boxBottomRight)

	return strings.Join(parts, "\n") + "\n"
}

func pad(text string, width int, align Alignment) string {
	length := countGraphic(text)
	if length > width {
		text, length = truncateGraphic(text, width-truncateReserve)
		text += ellipsis
		length++
	}

	diff := width - length

	switch align {
	case AlignCenter:
		left := diff / halfDivisor

		return strings.Repeat(" ", left) + text + strings.Repeat(" ", diff-left)
	case AlignRight:
		return strings.Repeat(" ", diff) + text
	default:
		return text + strings.Repeat(" ", diff)
	}
}

func countGraphic(s string) int {
	count := 0

	for _, r := range s {
		if unicode.IsGraphic(r) {
			count++
		}
	}

	return count
}

// truncateGraphic keeps the first n graphic runes of s.
func truncateGraphic(s string, n int) (string, int) {
	var sb strings.Builder

	count := 0

	for _, r := range s {
		if unicode.IsGraphic(r) {
			if count == n {
				break
			}

			count++
		}

		sb.WriteRune(r)
	}

	return sb.String(), count
}

func terminalWidth() int {
	_, w, err := TerminalDimensions()
	if err != nil || w == 0 {
		return DefaultTerminalWidth
	}

	return int(w) //nolint:gosec // Terminal width is bounded by screen size, no overflow risk
}

// TerminalDimensions returns (rows, cols, err).
func TerminalDimensions() (uint, uint, error) {
	tty, err := os.Open("/dev/tty")
	if err != nil {
		return 0, 0, err
	}
	defer tty.Close() //nolint:errcheck

	// Outputs: "rows columns"
	cmd := exec.Command("stty", "size")
	cmd.Stdin = tty

	out, err := cmd.Output()
	if err != nil {
		return 0, 0, err
	}

	return parseSize(string(out))
}

func parseSize(input string) (uint, uint, error) {
	fields := strings.Fields(input)
	if len(fields) != 2 { //nolint:mnd
		return 0, 0, fmt.Errorf("unexpected stty output %q", input) //nolint:err113
	}

	rows, err := strconv.ParseUint(fields[0], 10, 32)
	if err != nil {
		return 0, 0, err
	}

	cols, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return 0, 0, err
	}

	return uint(rows), uint(cols), nil
}
