// Package services implements the HTTP collaborators of the vgen client.
//
// # Transport
//
// [Client] is shared by every collaborator. It sends the project api key and an X-Request-ID on each request,
// waits on a [rate.Limiter], and decodes non-2xx bodies ({message|error|detail}) into a [StatusError]
// that unwraps to [shared.ErrGateway].
//
// # Remote Job Gateway
//
// [Gateway] creates generation jobs and observes them by id. [HTTPGateway] normalizes provider status
// vocabularies onto [models.TaskStatus] and rejects payloads with unknown statuses.
//
// # Catalog and Storage
//
// [Catalog] exposes single-record insert / fetch / update / list / like. [ObjectStore] holds uploaded
// video and cover files: [HTTPStore] for the backend bucket, [FileStore] for local development.
//
// # Auth
//
// [TokenStore] persists the OAuth2 token (0600), refreshes it through [oauth2.TokenSource], and decodes
// identity claims from the access token with [jwt.Parser.ParseUnverified].
package services
