package schedule

import "sort"

// Reasons reported alongside an empty slot list. An empty list with a reason
// is a normal outcome, not an error.
const (
	ReasonNoWorkingHours    = "no_working_hours"
	ReasonDailyCapReached   = "daily_cap_reached"
	ReasonDoctorUnavailable = "doctor_unavailable"
	ReasonLookupFailed      = "lookup_failed"
)

// AvailabilityResult is the outcome of a slot computation.
type AvailabilityResult struct {
	Slots  []TimeOfDay
	Count  int
	Reason string
}

func emptyResult(reason string) AvailabilityResult {
	return AvailabilityResult{Slots: []TimeOfDay{}, Reason: reason}
}

// dayInputs bundles everything the calculator needs for one
// (doctor, location, date) triple, already fetched and normalized.
type dayInputs struct {
	Periods      []WorkingPeriod
	Booked       []Appointment
	Overrides    []AvailabilityOverride
	Cap          *DailyCap
	IntervalMins int
}

// availableSlots runs the pure part of the availability computation:
// candidate generation from working periods, then subtraction of the daily
// cap, overrides and booked appointments. Interval comparisons are half-open
// throughout, so adjacent bookings never shadow each other's neighbors.
func availableSlots(in dayInputs) AvailabilityResult {
	if len(in.Periods) == 0 {
		return emptyResult(ReasonNoWorkingHours)
	}

	// Cap check runs first: once the day is full there is nothing to filter.
	if in.Cap != nil && countBlocking(in.Booked) >= in.Cap.MaxAppointments {
		return emptyResult(ReasonDailyCapReached)
	}

	for _, o := range in.Overrides {
		if o.FullDay() {
			return emptyResult(ReasonDoctorUnavailable)
		}
	}

	candidates := candidateSlots(in.Periods, in.IntervalMins)

	for start := range candidates {
		end := start.Add(in.IntervalMins)
		for _, o := range in.Overrides {
			if !o.Unavailable || o.Start == nil || o.End == nil {
				continue
			}
			if overlaps(start, end, *o.Start, *o.End) {
				delete(candidates, start)
				break
			}
		}
	}

	for start := range candidates {
		end := start.Add(in.IntervalMins)
		for _, a := range in.Booked {
			if !a.Status.Blocking() {
				continue
			}
			if overlaps(start, end, a.Start, a.End) {
				delete(candidates, start)
				break
			}
		}
	}

	slots := make([]TimeOfDay, 0, len(candidates))
	for s := range candidates {
		slots = append(slots, s)
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i] < slots[j] })

	return AvailabilityResult{Slots: slots, Count: len(slots)}
}

// candidateSlots enumerates every start time at interval steps that fits
// entirely within some working period. A set is used because split shifts
// may produce the same start time twice.
func candidateSlots(periods []WorkingPeriod, intervalMins int) map[TimeOfDay]struct{} {
	out := make(map[TimeOfDay]struct{})
	for _, p := range periods {
		for start := p.Start; start.Add(intervalMins) <= p.End; start = start.Add(intervalMins) {
			out[start] = struct{}{}
		}
	}
	return out
}

func countBlocking(appts []Appointment) int {
	n := 0
	for _, a := range appts {
		if a.Status.Blocking() {
			n++
		}
	}
	return n
}
