package model

import "time"

// LinkType is the kind of directed edge between two DTUs.
type LinkType string

const (
	LinkSupports    LinkType = "supports"
	LinkContradicts LinkType = "contradicts"
	LinkRefines     LinkType = "refines"
	LinkSameAs      LinkType = "same_as"
	LinkDerivedFrom LinkType = "derived_from"
)

// Severity grades a link, primarily contradiction edges.
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// ContradictionType distinguishes numeric disagreements from semantic ones.
type ContradictionType string

const (
	ContradictionNumeric  ContradictionType = "NUMERIC"
	ContradictionSemantic ContradictionType = "SEMANTIC"
)

// Link is a directed edge between two DTUs.
type Link struct {
	ID       string   `json:"id"`
	FromID   string   `json:"from_id"`
	ToID     string   `json:"to_id"`
	Type     LinkType `json:"type"`
	Severity Severity `json:"severity,omitempty"`
	// ContradictionType is set only on contradicts links.
	ContradictionType ContradictionType `json:"contradiction_type,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
}
