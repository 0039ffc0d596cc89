package joins

import (
	"regexp"
	"strings"
)

var (
	// Private invite links: t.me/+hash and the older t.me/joinchat/hash.
	inviteLinkRe = regexp.MustCompile(`(?i)(?:https?://)?t\.me/(?:\+|joinchat/)([A-Za-z0-9_-]+)`)
	inviteHashRe = regexp.MustCompile(`(?i)t\.me/(?:\+|joinchat/)([A-Za-z0-9_-]+)`)
	// Public chat links: t.me/username. Telegram usernames are at least 4
	// characters.
	publicLinkRe = regexp.MustCompile(`(?i)(?:https?://)?t\.me/([A-Za-z0-9_]{4,})`)
	mentionRe    = regexp.MustCompile(`@([A-Za-z0-9_]{4,})`)
)

// ExtractInviteHash pulls the invite hash out of a private invite link.
func ExtractInviteHash(link string) (string, bool) {
	m := inviteHashRe.FindStringSubmatch(link)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ExtractTargets scans message text plus any attached button URLs and returns
// joinable candidates: private invite links and public usernames. Duplicates
// within one message collapse.
func ExtractTargets(text string, buttonURLs []string) (links []string, usernames []string) {
	blob := text
	if len(buttonURLs) > 0 {
		blob += "\n" + strings.Join(buttonURLs, "\n")
	}

	seenLink := map[string]struct{}{}
	for _, m := range inviteLinkRe.FindAllString(blob, -1) {
		k := strings.ToLower(m)
		if _, dup := seenLink[k]; dup {
			continue
		}
		seenLink[k] = struct{}{}
		links = append(links, m)
	}

	seenUser := map[string]struct{}{}
	addUser := func(u string) {
		k := strings.ToLower(u)
		if k == "joinchat" {
			return
		}
		if _, dup := seenUser[k]; dup {
			return
		}
		seenUser[k] = struct{}{}
		usernames = append(usernames, u)
	}
	for _, m := range publicLinkRe.FindAllStringSubmatch(blob, -1) {
		addUser(m[1])
	}
	for _, m := range mentionRe.FindAllStringSubmatch(blob, -1) {
		addUser(m[1])
	}
	return links, usernames
}

// MatchesKeyword reports whether the text contains any of the watch keywords,
// case-insensitively. An empty keyword list never matches.
func MatchesKeyword(text string, keywords []string) bool {
	if text == "" || len(keywords) == 0 {
		return false
	}
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		kw = strings.TrimSpace(strings.ToLower(kw))
		if kw != "" && strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
