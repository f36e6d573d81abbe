// Package report renders the routing state of the browser core.
//
// A Report combines the Tor supervisor status with every container's route
// and its latest probe result. Writers render it:
//   - SimpleWriter: plain text for terminals
//   - JSONWriter: structured JSON for tools
//   - MarkdownWriter: a shareable Markdown document
//
// Writers implement the Writer interface; MultiWriter fans a report out to
// several of them.
package report
