// Package publish turns media into catalog records.
//
// Two paths feed the same [models.PublishedVideo] shape:
//
//   - Upload: local video and cover files are stored, inserted into the catalog, added to the feed unhydrated,
//     then replaced in place by the joined record.
//   - Generated: a finished generation is finalized by the gateway, which performs the insert itself.
//
// Missing duration and aspect ratio are read from the media by [MediaProber]; failures fall back to an unknown
// duration and [models.FallbackAspectRatio].
//
// Objects already stored when a later step fails are not deleted. The error names their keys so they can be
// removed with `vgen storage remove`.
//
// [Form] holds the creation surface state and routes [Form.Submit] to the matching path.
package publish
