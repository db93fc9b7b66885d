// Package models defines the domain entities of the vgen client.
//
// The package contains three groups of types:
//
// 1. Generation inputs: value objects submitted to the remote generation gateway
//   - [GenerationRequest] : prompt plus resolution, aspect ratio, duration and frame rate
//   - [Resolution], [AspectRatio], [FPS] : provider enums validated before submission
//
// 2. Task tracking: jobs known to the client for the lifetime of a client session
//   - [TrackedTask] : one remote generation job keyed by its gateway task id
//   - [TaskStatus] : queued, running, succeeded, failed, uploaded
//   - [TaskPatch] : partial update merged into a [TrackedTask]
//   - [PendingUseResult] : single-slot handoff from the task tray to the creation form
//
// 3. Catalog entities: what ends up in the user-visible feed
//   - [VideoMetadata] : title, description and tags entered by the user
//   - [PublishedVideo] : the catalog record both publish paths converge on
//   - [Profile] : uploader identity joined onto a hydrated record
package models
