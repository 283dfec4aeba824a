package pipeline

// PressureLevel grades ingestion buffer utilization.
//
// Levels are advisory: the overflow policy stays drop-oldest at every
// level. The probe backs off when saturated and operators see the level in
// status output.
type PressureLevel int

const (
	// PressureNormal - buffer utilization is unremarkable.
	PressureNormal PressureLevel = iota

	// PressureElevated - the writer is falling behind the producers.
	PressureElevated

	// PressureSaturated - the buffer is near capacity and evictions are
	// imminent or ongoing.
	PressureSaturated
)

// Utilization thresholds. Recovery applies hysteresis so the level does not
// flap around a threshold.
const (
	pressureElevated   = 0.75
	pressureSaturated  = 0.95
	pressureHysteresis = 0.10
)

// String returns the string representation of the level.
func (l PressureLevel) String() string {
	switch l {
	case PressureNormal:
		return "normal"
	case PressureElevated:
		return "elevated"
	case PressureSaturated:
		return "saturated"
	default:
		return "unknown"
	}
}

// levelFor determines the pressure level for a buffer usage ratio.
// Escalation is immediate; recovery requires dropping a full hysteresis
// band below the threshold.
func levelFor(usage float64, current PressureLevel) PressureLevel {
	if usage >= pressureSaturated {
		return PressureSaturated
	}
	if usage >= pressureElevated {
		if current == PressureSaturated && usage >= pressureSaturated-pressureHysteresis {
			return PressureSaturated
		}
		return PressureElevated
	}

	switch current {
	case PressureSaturated:
		if usage < pressureSaturated-pressureHysteresis {
			return PressureElevated
		}
		return PressureSaturated
	case PressureElevated:
		if usage < pressureElevated-pressureHysteresis {
			return PressureNormal
		}
		return PressureElevated
	default:
		return PressureNormal
	}
}
