// Package fx evaluates exchange-rate watches against recent history and
// alerts on recent highs and consecutive-increase streaks, each watch with
// its own reminder cool-down.
package fx

// Watch is one monitored currency pair with its trigger parameters.
type Watch struct {
	ID                    int64  `json:"id"`
	Base                  string `json:"base"`
	Quote                 string `json:"quote"`
	RecentHighDays        int    `json:"recent_high_days"`
	ConsecutiveDays       int    `json:"consecutive_days"`
	AlertOnRecentHigh     bool   `json:"alert_on_recent_high"`
	AlertOnConsecutive    bool   `json:"alert_on_consecutive"`
	ReminderIntervalHours int    `json:"reminder_interval_hours"`
	LastAlertedAt         *int64 `json:"last_alerted_at,omitempty"`
	IsActive              bool   `json:"is_active"`
	CreatedAt             int64  `json:"created_at"`
	UpdatedAt             int64  `json:"updated_at"`
}

// Pair renders the watch as "USD/TWD".
func (w Watch) Pair() string { return w.Base + "/" + w.Quote }

// Scenario classifies which armed conditions fired in one evaluation.
type Scenario string

const (
	ScenarioBoth        Scenario = "should_alert_both"
	ScenarioHigh        Scenario = "should_alert_high"
	ScenarioConsecutive Scenario = "should_alert_consec"
	ScenarioNoSignal    Scenario = "no_signal"
)

// Evaluation is the outcome of judging one watch against its history. Rate
// is today's close; LookbackHigh is nil when no prior sessions exist.
type Evaluation struct {
	Pair                 string   `json:"pair"`
	Scenario             Scenario `json:"scenario"`
	ShouldAlert          bool     `json:"should_alert"`
	Rate                 float64  `json:"rate"`
	LookbackHigh         *float64 `json:"lookback_high,omitempty"`
	IsRecentHigh         bool     `json:"is_recent_high"`
	ConsecutiveIncreases int      `json:"consecutive_increases"`
	Sessions             int      `json:"sessions"`
}

// CheckResult pairs a watch with its evaluation for the check endpoint.
// Degraded marks watches whose history could not be fetched this pass.
type CheckResult struct {
	Watch      Watch      `json:"watch"`
	Evaluation Evaluation `json:"evaluation"`
	InCoolDown bool       `json:"in_cool_down"`
	Degraded   bool       `json:"degraded"`
}

// AlertResult summarizes one alert pass.
type AlertResult struct {
	Checked    int `json:"checked"`
	Degraded   int `json:"degraded"`
	Triggered  int `json:"triggered"`
	Sent       int `json:"sent"`
	CooledDown int `json:"cooled_down"`
	Suppressed int `json:"suppressed"`
}
