package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"kemonograb/pkg/auth"
	"kemonograb/pkg/kemono"
	"kemonograb/pkg/ui"
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage stored session cookies",
	Long: `Manage stored session cookies for the archive sites.

The archives serve public creators without an account; a logged-in
session unlocks subscriber-only content. Sessions live in:
  - the system keychain, when one is available
  - an encrypted vault file with a PBKDF2-derived key
  - the KEMONOGRAB_SESSION environment variable (single-run override)

Never share your session cookie!`,
}

// loginCmd represents the auth login command
var loginCmd = &cobra.Command{
	Use:   "login [name]",
	Short: "Store a session cookie securely",
	Long: `Store a session cookie securely in the system keychain or an encrypted file.

The login asks for:
  - an account name (when not given on the command line)
  - the site the session belongs to (kemono or coomer)
  - the session cookie value, typed without echo

To find the cookie value:
1. Log into the site in your browser
2. Open the browser dev tools (F12)
3. Find Cookies under the Application or Storage tab
4. Copy the value of the 'session' cookie`,
	Example: `  # Prompted login
  kemonograb auth login

  # Login with a name
  kemonograb auth login main`,
	Args: cobra.MaximumNArgs(1),
	Run:  runLogin,
}

// logoutCmd represents the auth logout command
var logoutCmd = &cobra.Command{
	Use:   "logout [name]",
	Short: "Remove a stored session",
	Long: `Remove a stored session cookie.

Without a name you get a menu of stored sessions to pick from, with an
option to wipe them all.`,
	Example: `  # Pick from a menu
  kemonograb auth logout

  # Logout a specific session
  kemonograb auth logout main`,
	Args: cobra.MaximumNArgs(1),
	Run:  runLogout,
}

// listCmd represents the auth list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all stored sessions",
	Long:  `List all stored sessions with their cookie values masked.`,
	Run:   runList,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(listCmd)
}

// mustManager opens the credential store or exits.
func mustManager() *auth.Manager {
	manager, err := auth.NewManager()
	if err != nil {
		ui.PrintError("Credential store unavailable", err.Error())
		os.Exit(1)
	}
	return manager
}

// answer prompts and returns the reply lowercased and trimmed.
func answer(reader *bufio.Reader, prompt string) string {
	fmt.Print(prompt)
	input, _ := reader.ReadString('\n')
	return strings.ToLower(strings.TrimSpace(input))
}

func runLogin(cmd *cobra.Command, args []string) {
	manager := mustManager()

	var name string
	if len(args) > 0 {
		name = args[0]
	}

	reader := bufio.NewReader(os.Stdin)

	auth.ShowCookieExtractionGuide()

	if answer(reader, "Ready to enter your session cookie? (Y/n): ") == "n" {
		fmt.Println("\nRun 'kemonograb auth login' when you're ready.")
		return
	}

	fmt.Println()

	if name == "" {
		fmt.Print("📛 Account name [main]: ")
		input, err := reader.ReadString('\n')
		if err != nil {
			ui.PrintError("Could not read input", err.Error())
			os.Exit(1)
		}
		name = strings.TrimSpace(input)
		if name == "" {
			name = "main"
		}
	}

	if existing, _ := manager.Retrieve(name); existing != nil {
		prompt := fmt.Sprintf("\n⚠️  Session '%s' already exists. Update it? (y/N): ", name)
		if !strings.HasPrefix(answer(reader, prompt), "y") {
			return
		}
	}

	var site string
	for {
		site = answer(reader, "🌐 Site (kemono/coomer) [kemono]: ")
		if site == "" {
			site = "kemono"
		}
		if kemono.SiteFamily(site) != "" {
			break
		}
		fmt.Printf("\n❌ Unknown site %q. Use 'kemono', 'coomer', or a full host like kemono.su.\n\n", site)
	}

	fmt.Println("\n🔐 Enter your session cookie (it will be hidden as you type):")
	fmt.Println()

	var session string
	for {
		fmt.Printf("session cookie value: ")
		secret, err := readPassword()
		if err != nil {
			ui.PrintError("Could not read input", err.Error())
			os.Exit(1)
		}

		// Real session cookies are long opaque strings; a short value
		// is almost certainly a paste mistake.
		if len(secret) < 16 {
			fmt.Println("\n❌ That doesn't look like a valid session cookie.")
			fmt.Println("   It should be a long opaque string from the 'session' cookie.")
			if answer(reader, "\nEnter it again? (Y/n): ") == "n" {
				os.Exit(1)
			}
			continue
		}
		session = secret
		break
	}

	fmt.Println("\n📋 About to store:")
	fmt.Printf("   Name: %s\n", name)
	fmt.Printf("   Site: %s\n", site)
	fmt.Printf("   Session: %s...%s (hidden)\n", session[:6], session[len(session)-4:])

	fmt.Println("\n💾 Storing session securely...")
	if err := manager.Store(&auth.Account{
		Name:         name,
		Site:         site,
		Session:      session,
		LastModified: time.Now(),
	}); err != nil {
		ui.PrintError("Could not store session", err.Error())
		os.Exit(1)
	}

	if stored, _ := manager.List(); len(stored) == 1 {
		fmt.Printf("✅ '%s' is now the default session\n", name)
	}

	ui.PrintSuccess(fmt.Sprintf("Session saved: %s", name))

	fmt.Println("\n🔒 Where it lives:")
	if auth.IsKeyringAvailable() {
		fmt.Println("   • system keychain, encrypted by the OS")
	}
	fmt.Println("   • encrypted vault file as backup")

	fmt.Println("\n📖 Next:")
	fmt.Println("   Download everything a creator has posted:")
	fmt.Printf("   $ kemonograb grab https://kemono.su/patreon/user/12345\n")
	fmt.Println("\n   Use this session explicitly:")
	fmt.Printf("   $ kemonograb grab <target> --account %s\n", name)
	fmt.Println("\n   All options:")
	fmt.Printf("   $ kemonograb grab --help\n")
	fmt.Println("\n⚠️  Never share your session cookie or config files!")
}

// deleteSession removes one stored session and reports the outcome.
func deleteSession(manager *auth.Manager, name string) {
	if err := manager.Delete(name); err != nil {
		ui.PrintError("Could not remove session", err.Error())
		os.Exit(1)
	}
	ui.PrintSuccess("Session removed: " + name)
}

func runLogout(cmd *cobra.Command, args []string) {
	manager := mustManager()

	if len(args) > 0 {
		deleteSession(manager, args[0])
		return
	}

	accounts, err := manager.List()
	if err != nil || len(accounts) == 0 {
		ui.PrintError("No stored sessions found", "")
		return
	}

	reader := bufio.NewReader(os.Stdin)

	if len(accounts) == 1 {
		only := accounts[0]
		prompt := fmt.Sprintf("Remove session '%s'? (y/N): ", only.Name)
		if strings.HasPrefix(answer(reader, prompt), "y") {
			deleteSession(manager, only.Name)
		}
		return
	}

	fmt.Println("Select session to remove:")
	for i, account := range accounts {
		fmt.Printf("  %d. %s (%s)\n", i+1, account.Name, account.Site)
	}
	fmt.Printf("  %d. Remove all sessions\n", len(accounts)+1)
	fmt.Println("  0. Cancel")
	fmt.Println()

	var choice int
	fmt.Sscanf(answer(reader, "Choice: "), "%d", &choice)

	switch {
	case choice == 0:
		return
	case choice >= 1 && choice <= len(accounts):
		deleteSession(manager, accounts[choice-1].Name)
	case choice == len(accounts)+1:
		if answer(reader, "Remove ALL sessions? This cannot be undone! (yes/N): ") != "yes" {
			return
		}
		if err := manager.DeleteAll(); err != nil {
			ui.PrintError("Could not remove sessions", err.Error())
			os.Exit(1)
		}
		ui.PrintSuccess("All sessions removed")
	default:
		ui.PrintError("No such option", "")
		os.Exit(1)
	}
}

func runList(cmd *cobra.Command, args []string) {
	manager := mustManager()

	accounts, err := manager.List()
	if err != nil {
		ui.PrintError("Could not list sessions", err.Error())
		os.Exit(1)
	}

	if len(accounts) == 0 {
		ui.PrintInfo("No stored sessions", "Use 'kemonograb auth login' to add one")
		auth.ShowQuickExtractGuide()
		return
	}

	ui.PrintHighlight("Stored Sessions")
	fmt.Println()

	for i, account := range accounts {
		masked := auth.SanitizeAccount(account)
		fmt.Printf("%d. Name: %s\n", i+1, masked.Name)
		if masked.Site != "" {
			fmt.Printf("   Site: %s\n", masked.Site)
		}
		fmt.Printf("   Session: %s\n", masked.Session)
		fmt.Printf("   Updated: %s\n", masked.LastModified.Format("2006-01-02 15:04:05"))
		fmt.Println()
	}
}

// readPassword reads a secret from stdin without echoing.
func readPassword() (string, error) {
	if term.IsTerminal(int(syscall.Stdin)) {
		password, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println() // the hidden input swallowed the newline
		if err == nil {
			return string(password), nil
		}
	}

	// Not a terminal, read a plain line instead.
	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(input), nil
}
