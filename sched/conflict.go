package sched

import (
	"github.com/spoolworks/printfarm/fleet"
	"github.com/spoolworks/printfarm/job"
)

// SkipReason explains why a job could not be placed on a printer
type SkipReason string

const (
	SkipPrinterInactive SkipReason = "printer_inactive"
	SkipTagMismatch     SkipReason = "tag_mismatch"
	SkipColorMismatch   SkipReason = "color_mismatch"
	SkipSlotOverlap     SkipReason = "slot_overlap"
	SkipBlackout        SkipReason = "blackout"
	SkipQuotaExceeded   SkipReason = "quota_exceeded"
	SkipNoPrinter       SkipReason = "no_eligible_printer"
	SkipConflict        SkipReason = "concurrent_modification"
)

// Resolver answers whether a job may occupy a given slot on a given printer
type Resolver struct {
	colorCompat map[string][]string
	blackout    Blackout
}

// NewResolver creates a conflict resolver with the given color
// compatibility table and blackout window.
func NewResolver(colorCompat map[string][]string, blackout Blackout) *Resolver {
	return &Resolver{colorCompat: colorCompat, blackout: blackout}
}

// Eligible checks the printer-level constraints that do not depend on the
// slot: active state, capability tags, and loaded colors. A printer
// override on the job bypasses the tag and color checks but never the
// active check.
func (r *Resolver) Eligible(j *job.Job, p *fleet.Printer) (SkipReason, bool) {
	if !p.Active {
		return SkipPrinterInactive, false
	}
	if j.PrinterOverride == p.ID {
		return "", true
	}
	if !p.HasTags(j.RequiredTags) {
		return SkipTagMismatch, false
	}
	if !p.CanLoadColors(j.Colors, r.colorCompat) {
		return SkipColorMismatch, false
	}
	return "", true
}

// FitsSlot checks the slot-level constraints: no overlap with the printer's
// committed timeline and no blackout intersection. Overrides never bypass
// these.
func (r *Resolver) FitsSlot(iv job.Interval, timeline []job.Interval) (SkipReason, bool) {
	for _, busy := range timeline {
		if iv.Overlaps(busy) {
			return SkipSlotOverlap, false
		}
	}
	if r.blackout.Violates(iv) {
		return SkipBlackout, false
	}
	return "", true
}
