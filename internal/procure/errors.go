package procure

import (
	"fmt"
	"time"
)

// ContractExpiredError means the contract deadline passed before the
// run could start or finish.
type ContractExpiredError struct {
	ContractID string
	Deadline   time.Time
}

func (e *ContractExpiredError) Error() string {
	return fmt.Sprintf("contract %s expired at %s", e.ContractID, e.Deadline.Format(time.RFC3339))
}

// VenueUnavailableError means no reachable venue sells the good at an
// acceptable price and the fleet holds none of it, so the plan cannot
// make any progress at all.
type VenueUnavailableError struct {
	Good     string
	Needed   int
	Rejected int
}

func (e *VenueUnavailableError) Error() string {
	if e.Rejected > 0 {
		return fmt.Sprintf("no venue can supply %d units of %s (%d rejected on price)",
			e.Needed, e.Good, e.Rejected)
	}
	return fmt.Sprintf("no venue can supply %d units of %s", e.Needed, e.Good)
}
