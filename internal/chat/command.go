package chat

import "strings"

// CommandKind tags the parsed form of a raw chat input.
type CommandKind int

const (
	KindPlain CommandKind = iota
	KindDirectMessage
	KindNotice
	KindEmail
)

func (k CommandKind) String() string {
	switch k {
	case KindDirectMessage:
		return "dm"
	case KindNotice:
		return "notice"
	case KindEmail:
		return "email"
	default:
		return "plain"
	}
}

// Command is one parsed chat input. Target is set only for kinds that
// address a user.
type Command struct {
	Kind   CommandKind
	Target string
	Body   string
}

// ParseCommand interprets the slash and hash prefixes:
//
//	/w <user> <body>      direct message (also /dm)
//	/email <user> <body>  email relay
//	#<body>               room notice
//
// Anything else, including malformed commands, is a plain message.
func ParseCommand(raw string) Command {
	trimmed := strings.TrimSpace(raw)

	if body, ok := strings.CutPrefix(trimmed, "#"); ok {
		body = strings.TrimSpace(body)
		if body != "" {
			return Command{Kind: KindNotice, Body: body}
		}
		return Command{Kind: KindPlain, Body: raw}
	}

	if !strings.HasPrefix(trimmed, "/") {
		return Command{Kind: KindPlain, Body: raw}
	}

	verb, rest, _ := strings.Cut(trimmed[1:], " ")
	switch strings.ToLower(verb) {
	case "w", "dm":
		if target, body, ok := splitTargeted(rest); ok {
			return Command{Kind: KindDirectMessage, Target: target, Body: body}
		}
	case "email":
		if target, body, ok := splitTargeted(rest); ok {
			return Command{Kind: KindEmail, Target: target, Body: body}
		}
	}
	return Command{Kind: KindPlain, Body: raw}
}

func splitTargeted(rest string) (target, body string, ok bool) {
	target, body, _ = strings.Cut(strings.TrimSpace(rest), " ")
	body = strings.TrimSpace(body)
	if target == "" || body == "" {
		return "", "", false
	}
	return target, body, true
}
