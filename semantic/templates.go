package semantic

// Template is an intent family with example phrasings and the slots an
// instruction of that family should fill.
type Template struct {
	Name          string
	Examples      []string
	CanonicalForm string
	Slots         []string
	SlotHints     map[string]string
}

// DefaultTemplates is the built-in template library.
var DefaultTemplates = []Template{
	{
		Name: "threshold_action",
		Examples: []string{
			"If temperature exceeds 30, turn on the AC.",
			"Turn on the AC when temperature is above 30.",
			"Close the windows when the air quality index exceeds 150.",
			"If humidity is greater than 70, dehumidify the room.",
			"Notify me when CPU usage goes above 90 percent.",
		},
		CanonicalForm: "IF <metric> <operator> <threshold> THEN <action>",
		Slots:         []string{"metric", "operator", "threshold", "action"},
		SlotHints: map[string]string{
			"threshold": "numeric threshold is missing",
			"operator":  "comparison operator is missing",
			"metric":    "metric/variable is unclear",
			"action":    "action is unclear",
		},
	},
	{
		Name: "event_action",
		Examples: []string{
			"When the door opens, turn on the hallway light.",
			"If motion is detected, start recording.",
			"When the kettle finishes, send a notification.",
		},
		CanonicalForm: "WHEN <event> THEN <action>",
		Slots:         []string{"event", "action"},
		SlotHints: map[string]string{
			"event":  "event trigger is unclear",
			"action": "action is unclear",
		},
	},
	{
		Name: "unless_negation",
		Examples: []string{
			"Turn on the heater unless a window is open.",
			"Water the garden unless it is raining.",
			"Lock the door unless someone is inside.",
		},
		CanonicalForm: "<action> UNLESS <condition>",
		Slots:         []string{"action", "condition"},
		SlotHints: map[string]string{
			"condition": "exception/negation condition is unclear",
			"action":    "action is unclear",
		},
	},
}

// HasSlot reports whether the template declares slot.
func (t Template) HasSlot(slot string) bool {
	for _, s := range t.Slots {
		if s == slot {
			return true
		}
	}
	return false
}
