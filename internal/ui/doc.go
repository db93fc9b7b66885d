// Package ui implements the interactive task tray using bubbletea's Elm architecture.
//
// The TUI has four views:
//  1. [TrayView] : tracked generation tasks with preview, refresh, discard and "use result"
//  2. [GenerateView] : the generation dialog, one [tasks.Session] per opening
//  3. [FormView] : the creation form, which consumes a pending handoff when it opens
//  4. [FeedView] : the published feed with likes
//
// The [Model] implements the standard Init/Update/View pattern, receiving messages via the Msg union type.
// Long-running work runs in commands; generation progress flows through a channel the dialog drains one
// message at a time. A ticker re-runs [tasks.Registry.SyncAll] in the background, and notifications from the
// core arrive through a [ChannelNotifier] and show up in the status line.
package ui
