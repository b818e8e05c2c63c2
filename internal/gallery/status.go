package gallery

// IsTerminal reports whether no further transitions are allowed from status.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusError
}

// CanTransition reports whether from -> to is a legal lifecycle step.
// Only pending -> scraping -> {completed, error} is allowed.
func CanTransition(from, to JobStatus) bool {
	switch from {
	case JobStatusPending:
		return to == JobStatusScraping
	case JobStatusScraping:
		return to == JobStatusCompleted || to == JobStatusError
	default:
		return false
	}
}
