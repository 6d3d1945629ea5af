package canonical

import (
	"fmt"
	"time"

	"github.com/nationalarchives/ctd-pa-transformations-for-discovery/pkg/axiell"
)

// closureState carries the four leaf-level closure fields. Nil means the
// field is absent from the output.
type closureState struct {
	status      any
	code        any
	closureType any
	openingDate any
}

// deriveClosure runs the closure machine for one record.
//
// Levels above the leaf threshold carry no closure data at all. At leaf
// levels, OPEN resolves to status "O"; CLOSED resolves to "D" with the
// closure year and type, unless the material is held at Parliament, in
// which case the status is "U" with no year or type. Any other raw
// access status is a mapping error.
func deriveClosure(record *axiell.Record, level int) (closureState, error) {
	state := closureState{}
	if level < LeafLevel {
		return state, nil
	}

	raw := record.AccessStatus.Value("neutral")
	if raw == "" {
		return state, nil
	}

	switch raw {
	case "OPEN":
		state.status = "O"
		if record.ClosedUntil != "" {
			state.openingDate = record.ClosedUntil
		}
	case "CLOSED":
		if record.InstitutionName == institutionParliament {
			state.status = "U"
			return state, nil
		}
		closed, err := time.Parse("2006-01-02", record.ClosedUntil)
		if err != nil {
			return state, fmt.Errorf("failed to parse closed_until date %q: %w", record.ClosedUntil, err)
		}
		state.status = "D"
		state.code = closed.Format("2006")
		state.closureType = "U"
		state.openingDate = record.ClosedUntil
	default:
		return state, fmt.Errorf("unrecognized access_status value %q", raw)
	}
	return state, nil
}
