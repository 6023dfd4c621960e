package vfs

import (
	"errors"
	"fmt"
	"time"
)

// RelationType classifies a link between two resources.
type RelationType int

const (
	RelationHyperlink     RelationType = 1
	RelationEmbeddedImage RelationType = 2
	RelationXMLStrong     RelationType = 3
	RelationXMLWeak       RelationType = 4
	RelationStylesheet    RelationType = 5
)

func (t RelationType) String() string {
	switch t {
	case RelationHyperlink:
		return "hyperlink"
	case RelationEmbeddedImage:
		return "embedded-image"
	case RelationXMLStrong:
		return "xml-strong"
	case RelationXMLWeak:
		return "xml-weak"
	case RelationStylesheet:
		return "stylesheet"
	default:
		return fmt.Sprintf("relation(%d)", int(t))
	}
}

// Relation is a directed link from one resource to another.
type Relation struct {
	SourceID   string
	SourcePath string
	TargetID   string
	TargetPath string
	Type       RelationType
	DateBegin  time.Time
	DateEnd    time.Time
}

func (r Relation) String() string {
	return fmt.Sprintf("%s -[%s]-> %s", r.SourcePath, r.Type, r.TargetPath)
}

// RelationFilter selects relations. Source and target predicates are ORed,
// type and date predicates are ANDed onto the result.
type RelationFilter struct {
	SourceID   string
	SourcePath string
	TargetID   string
	TargetPath string

	// IncludeSubtree widens path predicates to everything below the path.
	IncludeSubtree bool

	Types []RelationType

	// Date, when set, keeps relations where DateBegin <= Date <= DateEnd.
	Date time.Time
}

// RelationResult is the outcome of writing a single relation row.
type RelationResult struct {
	Relation Relation
	Err      error
}

// BatchResult aggregates per-row outcomes of a relation batch write.
type BatchResult struct {
	Results []RelationResult
}

// Add records one row outcome.
func (b *BatchResult) Add(rel Relation, err error) {
	b.Results = append(b.Results, RelationResult{Relation: rel, Err: err})
}

// Failed returns the rows that did not commit.
func (b BatchResult) Failed() []RelationResult {
	var failed []RelationResult
	for _, r := range b.Results {
		if r.Err != nil {
			failed = append(failed, r)
		}
	}
	return failed
}

// Err joins every row failure, or returns nil when all rows committed.
func (b BatchResult) Err() error {
	var errs []error
	for _, r := range b.Failed() {
		errs = append(errs, fmt.Errorf("relation %s: %w", r.Relation, r.Err))
	}
	return errors.Join(errs...)
}
