// Package broadcast implements the broadcast job registry and the
// scheduling engine that paces message delivery across chats.
//
// Concepts
//
// A Job is one execution of sending a message set to a list of chats from
// one sub-account. Jobs created together for several accounts share a
// GroupID and respond to bulk pause/resume/cancel as a unit.
//
// Delivery semantics
//
// The scheduler plans server-side scheduled sends: every (chat, round) pair
// gets a future timestamp computed up front, so the engine does not sleep in
// real time between sends. Chats are staggered on their first send and each
// chat keeps one fixed random re-send interval for the whole job, which keeps
// a chat's cadence internally consistent while chats differ from one another.
//
// Pausing parks the scheduling cursor; Resume re-enters scheduling from the
// parked state. Delivery is best-effort: a failed send never aborts the job,
// and membership-style failures feed the auto-join queue for self-healing.
package broadcast
