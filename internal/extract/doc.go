// Package extract drives a browser to export original activity files from Strava.
//
// A [Session] logs in once and then exports each requested activity in turn:
//
//	Start → CookieConsentHandled → CredentialEntered → ChallengeResolved (optional)
//	      → PasswordEntered → Authenticated → [Extracting]* → Closed
//
// Every step waits on a visibility, URL or download condition bounded by its own timeout.
// A failure before Authenticated ends the session with a [StepError] and nothing is exported;
// login is never retried. A failure while exporting one activity yields a nil artifact in its
// slot and the session continues with the next one. The browser is closed on every return path.
//
// The browser itself sits behind [Driver]. [ChromeLauncher] provides a chromedp implementation;
// tests substitute a scripted fake. Page anchors live in [Selectors] so a markup change touches
// one table.
package extract
