// Package ytdlp wraps the yt-dlp binary for media and metadata acquisition.
//
// A single invocation downloads the post's media files into the bundle
// directory and writes an info JSON sidecar that carries the caption,
// uploader, upload date, and comment thread. The sidecar is parsed into a
// Result and removed afterwards.
//
// Failures are classified from yt-dlp's stderr into the services error
// taxonomy so the workflow manager can decide between retry and terminal
// failure: expired cookies and rate limits are retryable, removed or
// unsupported posts are not.
package ytdlp
