package bridge

import (
	"encoding/json"
	"strings"

	"github.com/noesisproject/noesis/internal/event"
	"github.com/noesisproject/noesis/internal/rules"
	"github.com/noesisproject/noesis/internal/storage"
)

// command is one parsed player line, ready to submit. quit is signalled
// separately; a usage string means the line never leaves the bridge.
type command struct {
	typ     event.Type
	payload any
	quit    bool
	usage   string
}

// parseLine maps the small bridge vocabulary onto attempt payloads.
// Shortcuts follow MU* convention: a leading quote says, a leading colon
// poses.
func parseLine(line string) command {
	line = strings.TrimSpace(line)

	if rest, ok := strings.CutPrefix(line, `"`); ok {
		return command{typ: event.TypeSayAttempt, payload: rules.SayPayload{Message: rest}}
	}
	if rest, ok := strings.CutPrefix(line, ":"); ok {
		return command{typ: event.TypePoseAttempt, payload: rules.PosePayload{Action: rest}}
	}

	verb, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(verb) {
	case "say":
		return command{typ: event.TypeSayAttempt, payload: rules.SayPayload{Message: rest}}
	case "pose", "emote":
		return command{typ: event.TypePoseAttempt, payload: rules.PosePayload{Action: rest}}
	case "go":
		if rest == "" {
			return command{usage: "go <direction>"}
		}
		return command{typ: event.TypeMoveAttempt, payload: rules.MovePayload{Direction: rest}}
	case "shift":
		if rest == "" {
			return command{usage: "shift <layer>"}
		}
		return command{typ: event.TypeMoveAttempt, payload: rules.MovePayload{Layer: rest}}
	case "touch", "look", "use":
		if rest == "" {
			return command{usage: verb + " <entity>"}
		}
		return command{typ: event.TypeInteractAttempt, payload: rules.InteractPayload{
			Target: storage.Identifier(rest),
			Verb:   strings.ToLower(verb),
		}}
	case "set":
		entity, kv, _ := strings.Cut(rest, " ")
		key, value, ok := strings.Cut(strings.TrimSpace(kv), " ")
		if entity == "" || key == "" || !ok {
			return command{usage: "set <entity> <key> <value>"}
		}
		raw, err := json.Marshal(strings.TrimSpace(value))
		if err != nil {
			return command{usage: "set <entity> <key> <value>"}
		}
		return command{typ: event.TypeAttributeAttempt, payload: rules.AttributePayload{
			Entity: storage.Identifier(entity),
			Key:    key,
			Value:  raw,
		}}
	case "quit":
		return command{quit: true}
	case "":
		return command{usage: ""}
	default:
		return command{usage: "commands: say, pose, go, shift, touch, look, use, set, quit"}
	}
}
