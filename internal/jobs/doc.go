// Package jobs turns multi-burst groups into the work handed downstream: one
// queue message per group, and the multiburst.json document with its tile
// list for file-based processing.
package jobs
