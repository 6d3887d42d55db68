// Package ui provides the console output layer for kemonograb.
// This file demonstrates example usage of the UI components
package ui

/*
Console printing:

	ui.PrintLogo()                              // ASCII logo, cyan
	ui.PrintInfo("Target", "patreon/12345")     // "Target: patreon/12345"
	ui.PrintSuccess("Grab completed!")          // green line
	ui.PrintError("Failed to download", err)    // "Failed to download: <err>" in red
	ui.PrintWarning("Rate limit approaching")   // yellow line
	ui.PrintHighlight("[SCANNING]")             // magenta line

Output modes, set once from CLI flags before anything prints:

	ui.SetQuietMode(true)         // errors only
	ui.SetProgressOnlyMode(true)  // drop the ceremony, keep progress lines
	ui.SetColorEnabled(false)     // plain text for pipes and dumb terminals

Progress tracking behind a console run:

	tracker := ui.NewStatusTracker(creator.PostCount)
	tracker.RecordPosts(len(page.Results))  // after each listing page
	tracker.RecordCompleted()               // after each finished file
	tracker.PrintScanStatus(offset)
	tracker.PrintProgress()

Wiring a reporter into a crawl. ProgressDisplay renders plain console
progress; NotifyingReporter adds desktop notifications on top of any
reporter; TUIReporter drives the full-screen dashboard:

	display := ui.NewProgressDisplay(false) // true echoes every event for debugging
	notifier := ui.NewNotifier()
	rep := ui.NewNotifyingReporter(display, notifier, cfg.Notifications, target.String())
	c.SetReporter(rep)

Desktop notifications on their own:

	notifier := ui.NewNotifier()
	notifier.SendNotification("Grab Complete", "All files archived")
	notifier.SendError("Grab Failed", "Session token rejected")

Raw color helpers, honoring SetColorEnabled:

	fmt.Printf("%s: %s\n", ui.Cyan("Creator"), ui.Yellow("12345"))
	fmt.Println(ui.Green("done"), ui.Dim("(34 skipped)"))
*/
