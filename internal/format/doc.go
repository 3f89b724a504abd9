// Package format defines the byte layout shared by the sfx builder and the
// sfx launcher. Nothing else couples the two programs.
//
// # File Layout
//
// A self-extracting file is the ordered concatenation of:
//
//	[launcher bytes][metadata block][separator][marker][payload archive]
//
// The launcher bytes are a compiled launcher executable. The optional
// metadata block is YAML fenced by MetadataBegin/MetadataEnd and counts as
// part of the launcher: it is attached before any binary concatenation takes
// place. The separator is human-readable text. The marker is Marker, and the
// payload archive follows it with zero intervening bytes.
//
// # Marker Discovery
//
// The launcher executable itself contains the bytes of Marker, because the
// constant is compiled into it. Those bytes always sit earlier in the file
// than the real delimiter, so discovery must resolve the LAST occurrence of
// the marker. FindPayloadOffset scans backwards from the end of the file and
// stops at the first match it sees, which is the last one in file order.
// Resolving the first occurrence would carve the payload out of the middle
// of the launcher's read-only data.
//
// # Archive Layout
//
// The payload is a ZIP archive with a fixed layout that the launcher's
// resource search relies on:
//
//	<tool name>            the wrapped tool, at the archive root
//	.rcc_home/...          optional pre-materialized tool home
//	robot/robot.yaml       project tree with its entry-point descriptor
package format
