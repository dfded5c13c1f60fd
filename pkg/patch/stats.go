package patch

import (
	"fmt"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// ChangeStats counts the lines a change adds and removes.
type ChangeStats struct {
	Added   int `json:"added"`
	Removed int `json:"removed"`
}

// String renders the stats the way diffstat does, e.g. "+3 -1".
func (s ChangeStats) String() string {
	return fmt.Sprintf("+%d -%d", s.Added, s.Removed)
}

// Stats compares before and after line by line.
func Stats(before, after []byte) ChangeStats {
	dmp := diffmatchpatch.New()
	a, b, _ := dmp.DiffLinesToRunes(string(before), string(after))
	var stats ChangeStats
	// Each rune stands for one line.
	for _, d := range dmp.DiffMainRunes(a, b, false) {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			stats.Added += len([]rune(d.Text))
		case diffmatchpatch.DiffDelete:
			stats.Removed += len([]rune(d.Text))
		}
	}
	return stats
}
