// Bibliocache - Bibliographic Metadata Proxy and Cache
// Copyright 2026 Bibliocache Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bibliocache/bibliocache

package warming

import "time"

// Schedule is how often a job re-runs a full pass over its work list.
type Schedule string

const (
	ScheduleOnce    Schedule = "once"
	ScheduleDaily   Schedule = "daily"
	ScheduleWeekly  Schedule = "weekly"
	ScheduleMonthly Schedule = "monthly"
)

// period returns the schedule's repeat interval. Zero for one-shot jobs.
func (s Schedule) period() time.Duration {
	switch s {
	case ScheduleDaily:
		return 24 * time.Hour
	case ScheduleWeekly:
		return 7 * 24 * time.Hour
	case ScheduleMonthly:
		return 30 * 24 * time.Hour
	default:
		return 0
	}
}

// Job is one curated warming work list with its schedule.
type Job struct {
	// Type is the job's stable identifier, used as the checkpoint key.
	Type string

	Schedule Schedule

	// Items are the identifiers to warm, processed in slices of the
	// configured batch size.
	Items []string
}

// DefaultJobs returns the built-in warming jobs.
//
// The bootstrap job is a one-shot seed of perennially requested editions; it
// disables itself once its list is fully processed. The refresh jobs re-warm
// the same material periodically so entries whose TTL lapsed between passes
// come back without an interactive miss.
func DefaultJobs() []Job {
	return []Job{
		{
			Type:     "bootstrap",
			Schedule: ScheduleOnce,
			Items:    popularEditions,
		},
		{
			Type:     "popular-refresh",
			Schedule: ScheduleWeekly,
			Items:    popularEditions,
		},
		{
			Type:     "classics-refresh",
			Schedule: ScheduleMonthly,
			Items:    classicEditions,
		},
	}
}

// popularEditions is a curated list of widely requested ISBNs: recent and
// perennial bestsellers, common school assignments, frequent library holds.
var popularEditions = []string{
	"9780441172719", // Dune
	"9780547928227", // The Hobbit
	"9780061120084", // To Kill a Mockingbird
	"9780451524935", // 1984
	"9780743273565", // The Great Gatsby
	"9780316769488", // The Catcher in the Rye
	"9780544003415", // The Lord of the Rings
	"9780062315007", // The Alchemist
	"9780590353427", // Harry Potter and the Sorcerer's Stone
	"9780345339683", // The Fellowship of the Ring
	"9780140283334", // On Writing
	"9780385490818", // The Handmaid's Tale
	"9780060850524", // Brave New World
	"9780142437230", // Don Quixote
	"9780399590504", // Educated
	"9780735211292", // Atomic Habits
	"9781501161933", // It
	"9780525559474", // The Midnight Library
	"9780593135204", // Project Hail Mary
	"9780441013593", // Dune Messiah
}

// classicEditions covers the long tail of public-domain classics that stay
// in steady demand from library catalogs.
var classicEditions = []string{
	"9780141439518", // Pride and Prejudice
	"9780141439600", // Jane Eyre
	"9780141441146", // Wuthering Heights
	"9780142000083", // Of Mice and Men
	"9780486282114", // Frankenstein
	"9780486411095", // Dracula
	"9780143105427", // The Picture of Dorian Gray
	"9780486280615", // Adventures of Huckleberry Finn
	"9780141439471", // Great Expectations
	"9780140449136", // Crime and Punishment
	"9780140449266", // Anna Karenina
	"9780142437179", // Moby-Dick
	"9780141439556", // A Tale of Two Cities
	"9780486270616", // Heart of Darkness
	"9780141439846", // Middlemarch
}
