package fetch

import "fmt"

// Decision is the classification outcome attached to a candidate.
type Decision int

const (
	Unclassified Decision = iota
	Kept
	Discarded
)

func (d Decision) String() string {
	switch d {
	case Kept:
		return "kept"
	case Discarded:
		return "discarded"
	default:
		return "unclassified"
	}
}

// Candidate is one image retrieved from the article. Ordinal is the
// position of the image's first appearance in the source markup; it is
// assigned at discovery and is the only ordering key used downstream.
type Candidate struct {
	Ordinal     int
	SourceURL   string
	Data        []byte
	ContentType string
	Width       int
	Height      int

	decision      Decision
	discardReason string
}

// Decision reports the candidate's current classification state.
func (c *Candidate) Decision() Decision { return c.decision }

// DiscardReason explains a Discarded decision; empty otherwise.
func (c *Candidate) DiscardReason() string { return c.discardReason }

// Decide transitions the candidate from Unclassified to d. The
// transition happens exactly once; a second call is an error and
// leaves the first decision in place.
func (c *Candidate) Decide(d Decision, reason string) error {
	if d == Unclassified {
		return fmt.Errorf("cannot decide %s", d)
	}
	if c.decision != Unclassified {
		return fmt.Errorf("candidate %d already %s", c.Ordinal, c.decision)
	}
	c.decision = d
	if d == Discarded {
		c.discardReason = reason
	}
	return nil
}

// Failure records one per-image error from the fetch or classification
// stage. Failures are diagnostic only; they never fail a run by
// themselves.
type Failure struct {
	Ordinal int
	URL     string
	Reason  string
}
