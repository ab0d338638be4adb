package domain

// Policy controls which optional context rows are written for an exception species.
// It never suppresses the instance row itself.
type Policy struct {
	LogWebContext bool
	LogHeaders    bool
}

// DefaultPolicy applies when no policy row exists for a species.
var DefaultPolicy = Policy{
	LogWebContext: true,
	LogHeaders:    true,
}
