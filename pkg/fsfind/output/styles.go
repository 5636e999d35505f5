package output

import "github.com/charmbracelet/lipgloss"

// Palette, as ANSI 256 colors.
const (
	ColorAccent = lipgloss.Color("39")  // directories, sizes, titles
	ColorOK     = lipgloss.Color("42")  // timings, healthy states
	ColorWarn   = lipgloss.Color("214") // warnings, low memory
	ColorFail   = lipgloss.Color("196") // errors
	ColorDim    = lipgloss.Color("245") // labels, row numbers
	ColorText   = lipgloss.Color("255") // file paths, values
)

func fg(c lipgloss.Color) lipgloss.Style { return lipgloss.NewStyle().Foreground(c) }

func box(border lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(border).
		Padding(0, 1)
}

// Query header and result summary boxes of the pretty format.
var (
	HeaderBox = box(ColorAccent).MarginBottom(1)
	FooterBox = box(ColorDim).MarginTop(1)
)

// Text styles shared by the pretty format and the CLI's warm and daemon
// reports.
var (
	TitleStyle   = fg(ColorAccent).Bold(true)
	LabelStyle   = fg(ColorDim)
	ValueStyle   = fg(ColorText)
	MutedStyle   = fg(ColorDim)
	SuccessStyle = fg(ColorOK)
	WarningStyle = fg(ColorWarn)
	ErrorStyle   = fg(ColorFail)

	PathStyle = fg(ColorText)
	DirStyle  = fg(ColorAccent)
	SizeStyle = fg(ColorAccent).Bold(true)
)
