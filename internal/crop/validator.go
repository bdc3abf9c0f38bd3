// Package crop performs pre-flight validation of crop rectangles against
// channel resolutions and drives the four-way conflict resolution protocol.
// The actual pixel math is the host's job; this package only decides which
// channels may be cropped at all.
package crop

import (
	"fmt"

	"github.com/zjrosen/spmbatch/internal/batch"
	"github.com/zjrosen/spmbatch/internal/log"
	"github.com/zjrosen/spmbatch/internal/provider"
)

// Spec is a crop request in pixel units.
type Spec struct {
	X           int
	Y           int
	Width       int
	Height      int
	CreateNew   bool // extract into a new channel instead of cropping in place
	KeepOffsets bool // preserve lateral offsets of the cropped region
}

// Conflict describes one channel that failed validation.
type Conflict struct {
	Title    string
	Filename string
	Reason   string
}

// Report is the ordered list of conflicts from one validation pass.
type Report []Conflict

// Decision is the caller's answer to a non-empty conflict report.
type Decision int

const (
	// Abort cancels the whole crop.
	Abort Decision = iota
	// AbortWithReport cancels after surfacing the conflict list.
	AbortWithReport
	// Proceed crops the valid channels only.
	Proceed
	// ProceedWithReport surfaces the conflict list, then crops the valid
	// channels only.
	ProceedWithReport
)

// DecisionFunc obtains a decision for a conflict report; dialog
// presentation lives behind this callback, outside the engine.
type DecisionFunc func(Report) Decision

// Surfacer presents a conflict report to the user.
type Surfacer func(Report)

// CheckBounds validates one rectangle against a channel resolution.
// The empty string means valid.
func CheckBounds(s Spec, xres, yres int) string {
	if s.X < 0 || s.Y < 0 || s.Width <= 0 || s.Height <= 0 {
		return fmt.Sprintf("invalid crop parameters: x=%d, y=%d, width=%d, height=%d",
			s.X, s.Y, s.Width, s.Height)
	}
	if s.X+s.Width > xres || s.Y+s.Height > yres {
		return fmt.Sprintf("crop area out of bounds: x=%d, y=%d, width=%d, height=%d, resolution=%dx%d",
			s.X, s.Y, s.Width, s.Height, xres, yres)
	}
	return ""
}

// Validate partitions targets into croppable and conflicting sets. Targets
// whose channel has vanished are conflicts, not errors.
func Validate(p provider.Provider, targets []batch.Target, s Spec) ([]batch.Target, Report) {
	var (
		valid  []batch.Target
		report Report
	)
	for _, t := range targets {
		meta, err := p.ChannelMeta(t.Resource, t.Channel)
		if err != nil {
			report = append(report, Conflict{
				Title:    t.Title,
				Filename: t.Filename,
				Reason:   "no data field",
			})
			continue
		}
		if reason := CheckBounds(s, meta.XRes, meta.YRes); reason != "" {
			report = append(report, Conflict{
				Title:    t.Title,
				Filename: t.Filename,
				Reason:   reason,
			})
			continue
		}
		valid = append(valid, t)
	}
	if len(report) > 0 {
		log.Warn(log.CatCrop, "validation conflicts",
			"valid", len(valid), "invalid", len(report))
	}
	return valid, report
}

// Resolve applies the decision protocol to a validation result. With an
// empty report it proceeds immediately. Otherwise the decision callback is
// consulted; "with report" decisions surface the report before acting.
// Returns true when the caller should hand the valid set to the runner.
func Resolve(report Report, decide DecisionFunc, surface Surfacer) bool {
	if len(report) == 0 {
		return true
	}

	decision := Abort
	if decide != nil {
		decision = decide(report)
	}

	switch decision {
	case AbortWithReport:
		if surface != nil {
			surface(report)
		}
		log.Info(log.CatCrop, "crop aborted after listing conflicts", "conflicts", len(report))
		return false
	case Abort:
		log.Info(log.CatCrop, "crop aborted", "conflicts", len(report))
		return false
	case ProceedWithReport:
		if surface != nil {
			surface(report)
		}
		return true
	case Proceed:
		return true
	default:
		return false
	}
}

// DefaultRect computes the default selection rectangle for a channel as a
// centered-at-origin fraction of its resolution. Fraction is clamped to
// (0, 1]; a non-positive fraction falls back to a quarter.
func DefaultRect(xres, yres int, fraction float64) provider.Rect {
	if fraction <= 0 || fraction > 1 {
		fraction = 0.25
	}
	return provider.Rect{
		X:      0,
		Y:      0,
		Width:  int(float64(xres) * fraction),
		Height: int(float64(yres) * fraction),
	}
}
