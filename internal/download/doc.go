// Package download saves responses that a page cannot display.
//
// Attachments and non-HTML responses are written to the downloads
// directory under a unique name. Progress and completion are published as
// download:progress and download:done events, and persistent containers
// keep a record in their partition database. Images whose EXIF block
// carries location, device or author tags get metadata warnings so the user
// knows the file identifies someone before sharing it.
package download
