package hub

import "regexp"

// leadingMentionRe matches a leading `@name` or `<@id>` mention, per spec §6:
// `^\s*(?:<@([\w/-]+)>|@([\w/-]+))\s*`. The remainder of the match captures
// the message body.
var leadingMentionRe = regexp.MustCompile(`^\s*(?:<@([\w/-]+)>|@([\w/-]+))\s*([\s\S]*)`)

// anyMentionBracketRe and anyMentionAtRe match mentions anywhere in text,
// used by ReplaceAllMentions.
var anyMentionBracketRe = regexp.MustCompile(`<@([\w/-]+)>`)
var anyMentionAtRe = regexp.MustCompile(`@([\w/-]+)`)

// threadRefRe matches `thread:<id>` references, per spec §6:
// `thread:([A-Za-z0-9.\-]+)`.
var threadRefRe = regexp.MustCompile(`thread:([A-Za-z0-9.\-]+)`)

// ExtractInitialMention splits a leading `@name`/`<@id>` mention from the
// rest of the text. Returns ("", text) if there is no leading mention.
//
//	ExtractInitialMention("")            -> ("", "")
//	ExtractInitialMention("@a hi")       -> ("a", "hi")
//	ExtractInitialMention("<@U1> hi")    -> ("U1", "hi")
func ExtractInitialMention(text string) (name string, rest string) {
	if text == "" {
		return "", ""
	}

	m := leadingMentionRe.FindStringSubmatch(text)
	if m == nil {
		return "", text
	}

	if m[1] != "" {
		return m[1], m[3]
	}
	if m[2] != "" {
		return m[2], m[3]
	}
	return "", text
}

// ExtractThreadReferences returns every `thread:<id>` reference in text, in
// order of appearance. Matching is case-sensitive on the literal "thread:"
// tag, so "THREAD:1" yields no matches.
func ExtractThreadReferences(text string) []string {
	matches := threadRefRe.FindAllStringSubmatch(text, -1)
	if matches == nil {
		return nil
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}

// ReplaceAllMentions replaces every `@name` and `<@id>` mention anywhere in
// text with resolver's resolution of the captured name/id. resolver is
// expected to return its input unchanged for unknown ids, leaving them as
// bare text (without the leading `@`/brackets).
func ReplaceAllMentions(text string, resolver func(string) string) string {
	if text == "" {
		return text
	}

	text = anyMentionBracketRe.ReplaceAllStringFunc(text, func(match string) string {
		id := anyMentionBracketRe.FindStringSubmatch(match)[1]
		return resolver(id)
	})

	text = anyMentionAtRe.ReplaceAllStringFunc(text, func(match string) string {
		name := anyMentionAtRe.FindStringSubmatch(match)[1]
		return resolver(name)
	})

	return text
}
