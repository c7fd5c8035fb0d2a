// Package stream decodes the line-oriented, prefix-tagged event format that
// agent backends use to stream chat replies.
//
// Bytes arrive in arbitrarily sized chunks. A LineDecoder turns them into
// complete lines, carrying partial lines and partial UTF-8 sequences across
// chunk boundaries. A Translator maps each line onto the closed Event
// vocabulary (ContentDelta, Completed, Failed). Neither ever fails on
// malformed input: bad frames are reported to a diagnostic callback and
// dropped.
//
// Wire format, one frame per line, frames separated by blank lines:
//
//	data: {"content": "<delta text>", "done": false}
//	data: {"content": "", "done": true}
//	data: {"error": "<message>"}
package stream
