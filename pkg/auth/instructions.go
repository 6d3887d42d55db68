package auth

import (
	"fmt"
	"strings"
)

// ShowCookieExtractionGuide displays step-by-step instructions for extracting
// the session cookie from a browser.
func ShowCookieExtractionGuide() {
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("📚 SESSION COOKIE EXTRACTION GUIDE")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println()

	fmt.Println("The archives work without an account, but a logged-in session unlocks")
	fmt.Println("favorites and importer-linked content. Follow these steps to extract")
	fmt.Println("your session cookie:")
	fmt.Println()

	fmt.Println("🌐 STEP 1: Open the site in your browser")
	fmt.Println("   - Go to https://kemono.su (or https://coomer.su)")
	fmt.Println("   - Sign in to your account")
	fmt.Println()

	fmt.Println("🔧 STEP 2: Open your browser's developer tools")
	fmt.Println("   • Chrome/Edge/Brave: Press F12 or Ctrl+Shift+I (Cmd+Option+I on Mac)")
	fmt.Println("   • Firefox: Press F12 or Ctrl+Shift+I (Cmd+Option+I on Mac)")
	fmt.Println("   • Safari: Enable Developer menu in Preferences, then Cmd+Option+I")
	fmt.Println()

	fmt.Println("🍪 STEP 3: Find the cookie")
	fmt.Println("   1. Go to the 'Application' tab (Chrome) or 'Storage' tab (Firefox)")
	fmt.Println("   2. Expand 'Cookies' in the left sidebar")
	fmt.Println("   3. Click on the site's entry")
	fmt.Println("   4. Find the cookie named 'session'")
	fmt.Println("   5. Copy its value (everything in the Value column)")
	fmt.Println()

	fmt.Println("🔑 STEP 4: Store it")
	fmt.Println("   kemonograb auth login --account main")
	fmt.Println("   (paste the value at the hidden prompt)")
	fmt.Println()
	fmt.Println("   Or set it for a single run:")
	fmt.Println("   export KEMONOGRAB_SESSION=<value>")
	fmt.Println()

	fmt.Println("💡 GOOD TO KNOW:")
	fmt.Println("   • Copy the ENTIRE value, without quotes or semicolons")
	fmt.Println("   • Sessions expire; re-extract if downloads start failing with 401")
	fmt.Println()

	fmt.Println("⚠️  KEEP IT SECRET:")
	fmt.Println("   • This cookie gives full access to your account on the site")
	fmt.Println("   • NEVER share it with anyone")
	fmt.Println("   • Store it through this tool (it encrypts tokens at rest)")
	fmt.Println()
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println()
}

// ShowQuickExtractGuide is the one-screen version.
func ShowQuickExtractGuide() {
	fmt.Println("\n🍪 Quick guide: F12, Application/Storage tab, Cookies, copy the 'session' value")
	fmt.Println("   Then: kemonograb auth login   (or export KEMONOGRAB_SESSION=...)")
	fmt.Println("   'kemonograb auth login' walks through the full guide")
}
