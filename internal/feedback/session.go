package feedback

import (
	"fmt"
	"sync"

	"github.com/SayHoang/plantidentify/internal/classifier"
	"github.com/SayHoang/plantidentify/internal/inat"
)

// Decision is the enumerated outcome of the confirmation step. Exactly one
// is live per submission; setting a new one invalidates any in-progress
// species-search sub-state.
type Decision string

const (
	DecisionNone              Decision = ""
	DecisionAcceptedPredicted Decision = "accepted_predicted"
	DecisionRejectedSearch    Decision = "rejected_search"
	DecisionConfirmedUnsure   Decision = "confirmed_unsure"
	DecisionSearchUnsure      Decision = "search_unsure"
)

// Session is the per-browser-session context object every workflow event
// operates on. One live submission at a time; a new upload supersedes
// everything. Fields are only mutated under the session lock.
type Session struct {
	mu sync.Mutex

	// Submission
	FileIdentifier   string // filename_size, detects new-upload transitions
	ImageData        []byte
	OriginalFilename string

	// Prediction, at most one live per submission
	Classified bool
	Prediction classifier.Prediction

	// Confirmation
	Decision Decision

	// Search sub-state
	Query           string
	LastSearched    string
	Candidates      []inat.SpeciesCandidate
	Selected        *inat.SpeciesCandidate
	ReferenceImages []string
	ImagesFetched   bool

	// Resolution
	ResolvedLabel string
	Saved         bool // transitions false->true exactly once, never back
}

// NewSession returns a session in its documented default state.
func NewSession() *Session {
	return &Session{}
}

// Lock acquires the session for one synchronous event pass.
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases the session.
func (s *Session) Unlock() { s.mu.Unlock() }

// HasSubmission reports whether an upload is live.
func (s *Session) HasSubmission() bool {
	return s.FileIdentifier != ""
}

// identityFor derives the stable submission identity from filename and size.
func identityFor(filename string, size int) string {
	return fmt.Sprintf("%s_%d", filename, size)
}

// supersede resets everything derived from a previous submission while
// keeping the new upload's identity, bytes and filename.
func (s *Session) supersede(identifier, filename string, data []byte) {
	s.FileIdentifier = identifier
	s.ImageData = data
	s.OriginalFilename = filename
	s.Classified = false
	s.Prediction = classifier.Prediction{}
	s.Decision = DecisionNone
	s.clearSearch()
	s.ResolvedLabel = ""
	s.Saved = false
}

// clearSearch resets the species-search sub-state.
func (s *Session) clearSearch() {
	s.Query = ""
	s.LastSearched = ""
	s.Candidates = nil
	s.Selected = nil
	s.ReferenceImages = nil
	s.ImagesFetched = false
}

// Clear drops the submission entirely, returning the session to idle.
func (s *Session) Clear() {
	s.supersede("", "", nil)
}
