// Package joins runs the per-user auto-join pipeline: a deduplicated queue
// of join candidates (invite links, public usernames, raw chat ids) drained
// by one background worker per user with randomized pacing between attempts.
//
// Work arrives from two producers: the mention detector, when a watched
// keyword appears in a message carrying joinable links, and the broadcast
// scheduler, when a send fails with a membership-style error. Joining is
// strictly best-effort: every attempt error is swallowed after logging, and
// being already a member counts as success.
package joins
