package bridge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/muesli/reflow/wordwrap"

	"github.com/noesisproject/noesis/internal/event"
	"github.com/noesisproject/noesis/internal/perception"
	"github.com/noesisproject/noesis/internal/rules"
)

const DefaultWidth = 80

// Narrative templates, one per perceivable event type. The renderer is
// entirely outside the core: a template bug garbles a line of output and
// nothing else.
var lineTemplates = map[event.Type]string{
	event.TypeSay:           `{{.actor_name | default "Someone"}} says, "{{.message}}"`,
	event.TypePose:          `{{.actor_name | default "Someone"}} {{.action}}`,
	event.TypeInteract:      `{{.actor_name | default "Someone"}} {{.verb}}s {{.target_name}}.`,
	event.TypeEntityLeft:    `{{if .direction}}{{.actor_name | default "Someone"}} leaves {{.direction}}.{{else}}{{.actor_name | default "Someone"}} fades from view.{{end}}`,
	event.TypeEntityEntered: `{{if .direction}}{{.actor_name | default "Someone"}} arrives.{{else}}{{.actor_name | default "Someone"}} shimmers into view.{{end}}`,

	event.TypeObjectCreated:    `{{.location_name}}: something new is here.`,
	event.TypeObjectDestroyed:  `{{.name | default "Something"}} crumbles away.`,
	event.TypeAttributeChanged: `{{.location_name}}: something changed.`,
	event.TypeBonusCleared:     `Your widened senses fade back to normal.`,
}

// refusalLines translate reason codes for the person who was refused.
var refusalLines = map[string]string{
	rules.ReasonNoExit:        "You can't go that way.",
	rules.ReasonLayerBlocked:  "The way is closed to you.",
	rules.ReasonOutOfReach:    "You can't reach that.",
	rules.ReasonUnknownEntity: "Nothing like that is here.",
	rules.ReasonEmptyMessage:  "Say what?",
	rules.ReasonEmptyAction:   "Do what?",
	rules.ReasonReservedAttr:  "That is not yours to change.",
	rules.ReasonNowhere:       "You are nowhere.",
	rules.ReasonAlreadyExists: "That already exists.",
}

const gapNotice = "(The world moved on while you lagged behind; some moments are lost.)"

// Renderer turns Information packets into wrapped narrative lines.
type Renderer struct {
	tmpl  *template.Template
	width int
}

func NewRenderer() (*Renderer, error) {
	root := template.New("lines").Funcs(sprig.FuncMap())
	for typ, text := range lineTemplates {
		if _, err := root.New(string(typ)).Parse(text); err != nil {
			return nil, fmt.Errorf("parsing %s template: %w", typ, err)
		}
	}
	return &Renderer{tmpl: root, width: DefaultWidth}, nil
}

// Render produces the display line for one packet. Unknown types fall back
// to a neutral line rather than erroring: the bridge must never let a
// rendering problem look like a world problem.
func (r *Renderer) Render(info *perception.Information) string {
	var out []string
	if info.GapBefore {
		out = append(out, gapNotice)
	}

	switch info.Category {
	case event.CategoryRefusal:
		line, ok := refusalLines[info.Reason]
		if !ok {
			line = "You cannot do that."
		}
		out = append(out, line)
	default:
		out = append(out, r.worldLine(info))
	}

	joined := strings.Join(out, "\n")
	return wordwrap.String(joined, r.width)
}

func (r *Renderer) worldLine(info *perception.Information) string {
	t := r.tmpl.Lookup(string(info.EventType))
	if t == nil {
		return fmt.Sprintf("[%s]", info.EventType)
	}

	data := map[string]any{}
	if len(info.Payload) > 0 {
		// Best effort: a malformed payload just renders with empty fields.
		_ = json.Unmarshal(info.Payload, &data)
	}
	data["actor_name"] = info.ActorName
	data["location_name"] = info.LocationName
	data["attribution"] = info.Attribution

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return fmt.Sprintf("[%s]", info.EventType)
	}
	return buf.String()
}
