// Package mentions watches the live message streams of connected accounts
// and notifies the operator through the bot when one of their accounts is
// mentioned: by Telegram's mention flag, a reply, an explicit mention entity,
// or the account's @username appearing in the text.
//
// The same stream doubles as the discovery input for auto-join: messages
// containing a watch keyword are scanned for invite links and public chat
// usernames, which go to the join queue.
package mentions
