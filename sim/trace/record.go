// Package trace records kernel notifications for post-run analysis.
package trace

// ElementRecord captures an element start or finish.
type ElementRecord struct {
	ElementID int64  `yaml:"element"`
	Clock     int64  `yaml:"clock"`
	Type      string `yaml:"type"`
	Event     string `yaml:"event"`
}

// ActivityRecord captures one activity lifecycle notification.
type ActivityRecord struct {
	ElementID int64  `yaml:"element"`
	Clock     int64  `yaml:"clock"`
	Activity  string `yaml:"activity"`
	WorkGroup string `yaml:"workgroup,omitempty"`
	Manager   int    `yaml:"manager"`
	Event     string `yaml:"event"`
}

// ResourceRecord captures a timetable roll-on or roll-off.
type ResourceRecord struct {
	Resource string `yaml:"resource"`
	Clock    int64  `yaml:"clock"`
	Role     string `yaml:"role"`
	Event    string `yaml:"event"`
}

// UsageRecord captures a resource caught or released by an element.
type UsageRecord struct {
	Resource  string `yaml:"resource"`
	Clock     int64  `yaml:"clock"`
	Role      string `yaml:"role"`
	ElementID int64  `yaml:"element"`
	Activity  string `yaml:"activity"`
	Event     string `yaml:"event"`
}
