package ui

import "fmt"

// ASCII logo for the application
const ASCIILogo = `
    ╔══════════════════════════════════════════════════════════════╗
    ║ ██╗  ██╗ ███████╗ ███╗   ███╗  ██████╗  ███╗   ██╗  ██████╗  ║
    ║ ██║ ██╔╝ ██╔════╝ ████╗ ████║ ██╔═══██╗ ████╗  ██║ ██╔═══██╗ ║
    ║ █████╔╝  █████╗   ██╔████╔██║ ██║   ██║ ██╔██╗ ██║ ██║   ██║ ║
    ║ ██╔═██╗  ██╔══╝   ██║╚██╔╝██║ ██║   ██║ ██║╚██╗██║ ██║   ██║ ║
    ║ ██║  ██╗ ███████╗ ██║ ╚═╝ ██║ ╚██████╔╝ ██║ ╚████║ ╚██████╔╝ ║
    ║ ╚═╝  ╚═╝ ╚══════╝ ╚═╝     ╚═╝  ╚═════╝  ╚═╝  ╚═══╝  ╚═════╝  ║
    ║          GRAB - BULK CREATOR MEDIA ARCHIVER v1.0             ║
    ╚══════════════════════════════════════════════════════════════╝
`

// Color helpers wrap text in an ANSI SGR code, or pass it through
// untouched once colors are disabled.
var (
	Cyan    = colorize("36")
	Yellow  = colorize("33")
	Red     = colorize("31")
	Green   = colorize("32")
	Magenta = colorize("35")
	Dim     = colorize("2")
)

// Output modes. All are set once at startup, before any goroutines
// print.
var (
	// quietMode suppresses everything except errors.
	quietMode bool

	// progressOnlyMode drops the informational ceremony lines and
	// leaves the terminal to the progress display.
	progressOnlyMode bool

	// colorEnabled strips ANSI codes when false.
	colorEnabled = true
)

// SetQuietMode toggles suppression of informational console output.
// Errors still print.
func SetQuietMode(quiet bool) {
	quietMode = quiet
}

// IsQuietMode reports whether informational output is suppressed.
func IsQuietMode() bool {
	return quietMode
}

// SetProgressOnlyMode suppresses info and highlight lines so the
// progress display owns the terminal.
func SetProgressOnlyMode(on bool) {
	progressOnlyMode = on
}

// IsProgressOnlyMode reports whether only progress output is shown.
func IsProgressOnlyMode() bool {
	return progressOnlyMode
}

// SetColorEnabled toggles ANSI colors for all console output.
func SetColorEnabled(on bool) {
	colorEnabled = on
}

func colorize(sgrCode string) func(string) string {
	return func(text string) string {
		if !colorEnabled {
			return text
		}
		return "\033[" + sgrCode + "m" + text + "\033[0m"
	}
}

// withDetail appends the first detail value to the message, keeping
// call sites like PrintError("Download failed", err) readable.
func withDetail(msg string, args []interface{}) string {
	if len(args) == 0 {
		return msg
	}
	return fmt.Sprintf("%s: %v", msg, args[0])
}

// PrintLogo prints the ASCII logo. Suppressed in quiet mode.
func PrintLogo() {
	if quietMode {
		return
	}
	fmt.Print(Cyan(ASCIILogo))
}

// PrintError prints in red. Errors ignore quiet mode.
func PrintError(msg string, args ...interface{}) {
	fmt.Println(Red(withDetail(msg, args)))
}

// PrintSuccess prints in green.
func PrintSuccess(msg string) {
	if quietMode {
		return
	}
	fmt.Println(Green(msg))
}

// PrintInfo prints a "label: value" line.
func PrintInfo(label string, value string) {
	if quietMode || progressOnlyMode {
		return
	}
	fmt.Printf("%s: %s\n", Cyan(label), Yellow(value))
}

// PrintWarning prints in yellow.
func PrintWarning(msg string, args ...interface{}) {
	if quietMode {
		return
	}
	fmt.Println(Yellow(withDetail(msg, args)))
}

// PrintHighlight prints in magenta, used for phase banners.
func PrintHighlight(msg string) {
	if quietMode || progressOnlyMode {
		return
	}
	fmt.Println(Magenta(msg))
}
