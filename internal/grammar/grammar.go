// Package grammar classifies Minecraft client log lines against the
// moderation and chat grammars the ingester understands.
package grammar

import (
	"regexp"
)

// Kind identifies which grammar matched a line.
type Kind string

// Match kinds, in evaluation order.
const (
	KindBan           Kind = "ban"
	KindMute          Kind = "mute"
	KindReport        Kind = "report"
	KindChatSwear     Kind = "chat_swear"
	KindChatAdvertise Kind = "chat_advertise"
	KindChatNormal    Kind = "chat_normal"
	KindKill          Kind = "kill"
)

// Match is the typed field set extracted from one line by one grammar.
//
// Player is the subject of the event: the punished player, the chat author,
// the reporter, or the killer. Target is the reported player or the victim.
// Fields a grammar does not capture are left empty.
type Match struct {
	Kind     Kind
	Clock    string // HH:MM:SS
	Player   string
	Target   string
	Duration string
	Reason   string
	Server   string
	Message  string
	Line     string
}

// Matcher is one grammar. It is a pure function of the line.
type Matcher struct {
	kind    Kind
	re      *regexp.Regexp
	extract func(m []string) Match
}

// Kind returns the kind of match this matcher produces.
func (m Matcher) Kind() Kind { return m.kind }

// Match searches line for the grammar anywhere in the line.
func (m Matcher) Match(line string) (Match, bool) {
	sub := m.re.FindStringSubmatch(line)
	if sub == nil {
		return Match{}, false
	}
	out := m.extract(sub)
	out.Kind = m.kind
	out.Clock = sub[1]
	out.Line = line
	return out, true
}

const (
	clock  = `\[(\d{2}:\d{2}:\d{2})\] `
	client = clock + `\[Client thread/INFO\]: `
	server = clock + `\[Server thread/INFO\]: `
)

func punishment(kind Kind, label, verb string) Matcher {
	return Matcher{
		kind: kind,
		re:   regexp.MustCompile(client + `\[CHAT\] \? ` + label + ` \? (.+?) has been ` + verb + ` (.+?) for (.+?)\.`),
		extract: func(m []string) Match {
			return Match{Player: m[2], Duration: m[3], Reason: m[4]}
		},
	}
}

// Ban matches "? Banned ? <user> has been banned <duration> for <reason>."
func Ban() Matcher { return punishment(KindBan, "Banned", "banned") }

// Mute matches "? Muted ? <user> has been muted <duration> for <reason>."
func Mute() Matcher { return punishment(KindMute, "Muted", "muted") }

// Report matches "? Report ? <reporter> reported <reported> for <reason> in <server>."
func Report() Matcher {
	return Matcher{
		kind: KindReport,
		re:   regexp.MustCompile(client + `\[CHAT\] \? Report \? (.+?) reported (.+?) for (.+?) in (.+?)\.`),
		extract: func(m []string) Match {
			return Match{Player: m[2], Target: m[3], Reason: m[4], Server: m[5]}
		},
	}
}

// ChatSwear matches the server-side swear filter notice.
func ChatSwear() Matcher {
	return Matcher{
		kind: KindChatSwear,
		re:   regexp.MustCompile(server + `(.+?) swears in (.+?): (.+)`),
		extract: func(m []string) Match {
			return Match{Player: m[2], Server: m[3], Message: m[4]}
		},
	}
}

// ChatAdvertise matches the server-side advertising filter notice.
func ChatAdvertise() Matcher {
	return Matcher{
		kind: KindChatAdvertise,
		re:   regexp.MustCompile(server + `(.+?) possibly advertises in (.+?): (.+)`),
		extract: func(m []string) Match {
			return Match{Player: m[2], Server: m[3], Message: m[4]}
		},
	}
}

// ChatNormal matches "[CHAT] <user> » <message>". The delimiter may have been
// replaced by U+FFFD when the log was decoded with the wrong charset.
func ChatNormal() Matcher {
	return Matcher{
		kind: KindChatNormal,
		re:   regexp.MustCompile(client + `\[CHAT\] (.+?) [»\x{FFFD}] (.+)`),
		extract: func(m []string) Match {
			return Match{Player: m[2], Message: m[3]}
		},
	}
}

// Kill matches "<victim> was killed by <killer>". The victim is captured
// first; the returned Match has Player set to the killer.
func Kill() Matcher {
	return Matcher{
		kind: KindKill,
		re:   regexp.MustCompile(server + `(.+?) was killed by (.+)`),
		extract: func(m []string) Match {
			return Match{Target: m[2], Player: m[3]}
		},
	}
}

// Classifier evaluates an ordered set of matchers against each line.
type Classifier struct {
	matchers []Matcher
}

// New returns a Classifier over matchers, evaluated in the given order.
// With no matchers it uses Default.
func New(matchers ...Matcher) *Classifier {
	if len(matchers) == 0 {
		matchers = Default()
	}
	return &Classifier{matchers: matchers}
}

// Default returns the built-in grammars in evaluation order.
func Default() []Matcher {
	return []Matcher{Ban(), Mute(), Report(), ChatSwear(), ChatAdvertise(), ChatNormal(), Kill()}
}

// Classify returns every match for line. All matchers are tried; a line may
// produce several matches or none.
func (c *Classifier) Classify(line string) []Match {
	var out []Match
	for _, m := range c.matchers {
		if match, ok := m.Match(line); ok {
			out = append(out, match)
		}
	}
	return out
}

// Kinds returns the kinds of the configured matchers in order.
func (c *Classifier) Kinds() []Kind {
	kinds := make([]Kind, len(c.matchers))
	for i, m := range c.matchers {
		kinds[i] = m.kind
	}
	return kinds
}
