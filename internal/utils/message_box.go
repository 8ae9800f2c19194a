package utils

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// MessageType defines the type of message box to render.
type MessageType int

const (
	InfoMessage MessageType = iota
	SuccessMessage
	WarningMessage
	ErrorMessage
)

var boxPrefixes = map[MessageType]string{
	InfoMessage:    "ℹ",
	SuccessMessage: "✓",
	WarningMessage: "⚠",
	ErrorMessage:   "✗",
}

var boxColors = map[MessageType]lipgloss.Color{
	InfoMessage:    lipgloss.Color("86"),
	SuccessMessage: lipgloss.Color("42"),
	WarningMessage: lipgloss.Color("178"),
	ErrorMessage:   lipgloss.Color("196"),
}

// Box is a builder for rounded message boxes.
type Box struct {
	messageType MessageType
	title       string
	content     []string
	width       int
}

// NewBox creates a message box sized to the terminal.
func NewBox(messageType MessageType, title string) *Box {
	return &Box{
		messageType: messageType,
		title:       title,
		width:       terminalWidth() - 8,
	}
}

// WithWidth caps the rendered width. It never widens a box past the terminal.
func (b *Box) WithWidth(width int) *Box {
	if b.width <= 4 || width < b.width {
		b.width = width
	}
	return b
}

// AddLine adds a line of text to the message box content.
func (b *Box) AddLine(text string) *Box {
	b.content = append(b.content, text)
	return b
}

// AddBullet adds a bulleted line to the message box content.
func (b *Box) AddBullet(text string) *Box {
	b.content = append(b.content, "• "+text)
	return b
}

// Render builds and returns the formatted message box as a string.
func (b *Box) Render() string {
	color := boxColors[b.messageType]
	border := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(color).
		Padding(0, 1)
	if b.width > 4 {
		border = border.MaxWidth(b.width)
	}

	heading := lipgloss.NewStyle().Bold(true).Foreground(color).
		Render(boxPrefixes[b.messageType] + " " + b.title)

	lines := append([]string{heading}, b.content...)
	return border.Render(strings.Join(lines, "\n"))
}

// Success renders a success box.
func Success(title string, lines ...string) string {
	return render(SuccessMessage, title, lines)
}

// Warning renders a warning box.
func Warning(title string, lines ...string) string {
	return render(WarningMessage, title, lines)
}

// Error renders an error box.
func Error(title string, lines ...string) string {
	return render(ErrorMessage, title, lines)
}

func render(t MessageType, title string, lines []string) string {
	box := NewBox(t, title)
	for _, line := range lines {
		box.AddLine(line)
	}
	return box.Render()
}

func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return 80
	}
	return width
}
