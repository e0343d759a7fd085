package adjust

// Op names an adjustment.
type Op string

const (
	OpText        Op = "text"
	OpFontSize    Op = "font_size"
	OpLineSpacing Op = "line_spacing"
	OpCurve       Op = "curve"
	OpPosition    Op = "position"
	OpCharacter   Op = "character"
)

// Mode selects absolute or relative numeric changes, or the curve action.
type Mode string

const (
	ModeSet      Mode = "set"
	ModeIncrease Mode = "increase"
	ModeDecrease Mode = "decrease"

	ModeOn     Mode = "on"
	ModeOff    Mode = "off"
	ModeToggle Mode = "toggle"
)

// Direction is a position move.
type Direction string

const (
	Up    Direction = "up"
	Down  Direction = "down"
	Left  Direction = "left"
	Right Direction = "right"
)

// Request is one adjustment in transport-neutral form.
type Request struct {
	Op        Op        `json:"op"`
	Mode      Mode      `json:"mode,omitempty"`
	Text      string    `json:"text,omitempty"`
	Value     *float64  `json:"value,omitempty"`
	Direction Direction `json:"direction,omitempty"`
	Step      int       `json:"step,omitempty"`
	Character string    `json:"character,omitempty"`
	Random    bool      `json:"random,omitempty"`
}

// Float returns a pointer to v, for building Requests.
func Float(v float64) *float64 {
	return &v
}
