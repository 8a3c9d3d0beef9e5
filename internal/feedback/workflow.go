// Package feedback orchestrates the upload, classify, confirm and correct
// workflow that turns a user's photo into confirmed training data.
package feedback

import (
	"context"
	"log/slog"

	"github.com/SayHoang/plantidentify/internal/classifier"
	"github.com/SayHoang/plantidentify/internal/errors"
	"github.com/SayHoang/plantidentify/internal/imageprep"
	"github.com/SayHoang/plantidentify/internal/inat"
	"github.com/SayHoang/plantidentify/internal/logging"
	"github.com/SayHoang/plantidentify/internal/store"
)

// maxReferenceImages caps how many reference photos are fetched per selection.
const maxReferenceImages = 10

// minQueryLength mirrors the directory client's autocomplete floor so short
// queries clear the candidate list without a remote call.
const minQueryLength = 3

// Predictor is the classifier surface the workflow depends on.
type Predictor interface {
	Predict(t *imageprep.Tensor) (classifier.Prediction, error)
	Known(label string) bool
	ScientificName(label string) (string, error)
}

// Directory is the species directory surface the workflow depends on. Both
// operations degrade to empty results instead of failing.
type Directory interface {
	Autocomplete(ctx context.Context, query string) []inat.SpeciesCandidate
	ReferenceImages(ctx context.Context, taxonID, count int) []string
}

// Committer persists one accepted feedback.
type Committer interface {
	Commit(ctx context.Context, req *store.CommitRequest) (store.Receipt, error)
}

// Workflow drives a Session through the feedback state machine. Each method
// is one user event: a synchronous pass that reads and mutates session state.
// Callers hold the session lock for the duration of an event.
type Workflow struct {
	predictor Predictor
	directory Directory
	committer Committer
	threshold float64
	prefix    string
	logger    *slog.Logger
}

// New creates a workflow over the given collaborators. threshold is the
// confidence percentage at or above which a known-class prediction counts as
// confident; prefix is the destination prefix for committed images.
func New(predictor Predictor, directory Directory, committer Committer, threshold float64, prefix string) *Workflow {
	return &Workflow{
		predictor: predictor,
		directory: directory,
		committer: committer,
		threshold: threshold,
		prefix:    prefix,
		logger:    logging.ForService("feedback"),
	}
}

// Upload registers an uploaded file. A byte-identical re-upload under the
// same filename and size is a no-op; anything else supersedes the current
// submission and resets all derived state.
func (w *Workflow) Upload(s *Session, filename string, data []byte) {
	identifier := identityFor(filename, len(data))
	if s.FileIdentifier == identifier {
		return
	}
	if w.logger != nil {
		w.logger.Info("new submission", "filename", filename, "size", len(data))
	}
	s.supersede(identifier, filename, data)
}

// Classify runs the model over the live submission. On failure the
// classification state stays unset so the user may retry.
func (w *Workflow) Classify(ctx context.Context, s *Session) error {
	if !s.HasSubmission() {
		return errors.Newf("no submission to classify").
			Category(errors.CategoryState).
			Component("feedback").
			Build()
	}
	if s.Classified {
		return nil
	}

	tensor, err := imageprep.Preprocess(s.ImageData)
	if err != nil {
		return err
	}

	prediction, err := w.predictor.Predict(tensor)
	if err != nil {
		return errors.Newf("classification failed: %w", err).
			Category(errors.CategoryModelInit).
			Component("feedback").
			Build()
	}

	s.Prediction = prediction
	s.Classified = true
	if w.logger != nil {
		w.logger.Info("submission classified",
			"label", prediction.Label,
			"confidence", prediction.Confidence)
	}
	return nil
}

// Confident reports whether the live prediction clears the confidence gate:
// confidence at or above the threshold AND a label inside the known set. A
// high-confidence out-of-set label is still non-confident.
func (w *Workflow) Confident(s *Session) bool {
	return s.Classified &&
		s.Prediction.Confidence >= w.threshold &&
		w.predictor.Known(s.Prediction.Label)
}

// KnownPrediction reports whether the prediction names a known class, which
// gates the "confirm nearest" control on the unconfident branch.
func (w *Workflow) KnownPrediction(s *Session) bool {
	return s.Classified && w.predictor.Known(s.Prediction.Label)
}

// Accept handles "yes, the prediction is right" on the confident branch:
// resolve the class to its scientific name and commit immediately.
func (w *Workflow) Accept(ctx context.Context, s *Session) error {
	if err := w.requireClassified(s); err != nil {
		return err
	}
	if !w.Confident(s) {
		return errors.Newf("accept is only valid for a confident prediction").
			Category(errors.CategoryState).
			Component("feedback").
			Build()
	}
	s.Decision = DecisionAcceptedPredicted
	s.clearSearch()
	return w.resolveAndCommit(ctx, s, s.Prediction.Label)
}

// Reject handles "no, the prediction is wrong" on the confident branch and
// opens the species search with a clean slate.
func (w *Workflow) Reject(s *Session) error {
	if err := w.requireClassified(s); err != nil {
		return err
	}
	s.Decision = DecisionRejectedSearch
	s.clearSearch()
	return nil
}

// ConfirmNearest handles "yes, it really is the nearest guess" on the
// unconfident branch. Only valid when the prediction names a known class.
func (w *Workflow) ConfirmNearest(ctx context.Context, s *Session) error {
	if err := w.requireClassified(s); err != nil {
		return err
	}
	if !w.KnownPrediction(s) {
		return errors.Newf("no nearest label to confirm").
			Category(errors.CategoryState).
			Component("feedback").
			Build()
	}
	s.Decision = DecisionConfirmedUnsure
	s.clearSearch()
	return w.resolveAndCommit(ctx, s, s.Prediction.Label)
}

// RequestSearch opens the species search from the unconfident branch.
func (w *Workflow) RequestSearch(s *Session) error {
	if err := w.requireClassified(s); err != nil {
		return err
	}
	s.Decision = DecisionSearchUnsure
	s.clearSearch()
	return nil
}

// SetQuery applies a query-string change in the search sub-state. Queries
// below the minimum length clear the candidate list without a remote call;
// longer ones hit the directory only when the string differs from the last
// string actually searched.
func (w *Workflow) SetQuery(ctx context.Context, s *Session, query string) error {
	if err := w.requireSearching(s); err != nil {
		return err
	}
	s.Query = query
	if query == s.LastSearched {
		return nil
	}
	if len([]rune(query)) < minQueryLength {
		s.Candidates = nil
	} else {
		s.Candidates = w.directory.Autocomplete(ctx, query)
	}
	s.LastSearched = query
	return nil
}

// Select picks one candidate from the current list. Selecting a different
// candidate replaces the selection, drops previously fetched reference
// images, and syncs the query string to the candidate's display name so
// re-selecting it never re-triggers a search. Reference images are fetched
// once per selection; fetch failures degrade to none.
func (w *Workflow) Select(ctx context.Context, s *Session, taxonID int) error {
	if err := w.requireSearching(s); err != nil {
		return err
	}

	var candidate *inat.SpeciesCandidate
	for i := range s.Candidates {
		if s.Candidates[i].ID == taxonID {
			candidate = &s.Candidates[i]
			break
		}
	}
	if candidate == nil {
		return errors.Newf("candidate %d is not in the current result list", taxonID).
			Category(errors.CategoryNotFound).
			Component("feedback").
			Build()
	}

	if s.Selected == nil || s.Selected.ID != candidate.ID {
		s.Selected = candidate
		s.ReferenceImages = nil
		s.ImagesFetched = false
		s.Query = candidate.DisplayName
		s.LastSearched = candidate.DisplayName
	}

	if !s.ImagesFetched {
		s.ReferenceImages = w.directory.ReferenceImages(ctx, candidate.ID, maxReferenceImages)
		s.ImagesFetched = true
	}
	return nil
}

// ConfirmSelection commits the selected candidate's scientific name as the
// resolved label.
func (w *Workflow) ConfirmSelection(ctx context.Context, s *Session) error {
	if err := w.requireSearching(s); err != nil {
		return err
	}
	if s.Selected == nil {
		return errors.Newf("no candidate selected").
			Category(errors.CategoryState).
			Component("feedback").
			Build()
	}
	return w.commit(ctx, s, s.Selected.ScientificName)
}

// resolveAndCommit maps a class label through the static table and commits.
// A missing mapping is a blocking configuration error for this action only.
func (w *Workflow) resolveAndCommit(ctx context.Context, s *Session, label string) error {
	scientificName, err := w.predictor.ScientificName(label)
	if err != nil {
		return err
	}
	return w.commit(ctx, s, scientificName)
}

// commit persists the submission under the resolved label, guarded so a
// saved submission is never written twice.
func (w *Workflow) commit(ctx context.Context, s *Session, resolvedLabel string) error {
	if s.Saved {
		return errors.Newf("feedback already saved for this submission").
			Category(errors.CategoryState).
			Component("feedback").
			Build()
	}

	s.ResolvedLabel = resolvedLabel
	receipt, err := w.committer.Commit(ctx, &store.CommitRequest{
		Image:            s.ImageData,
		OriginalFilename: s.OriginalFilename,
		Label:            resolvedLabel,
		Prefix:           w.prefix,
	})
	if err != nil {
		// Saved stays false, the same confirm action may be retried.
		return err
	}

	s.Saved = true
	if w.logger != nil {
		w.logger.Info("feedback committed",
			"label", resolvedLabel,
			"path", receipt.ObjectPath)
	}
	return nil
}

func (w *Workflow) requireClassified(s *Session) error {
	if !s.HasSubmission() || !s.Classified {
		return errors.Newf("submission has not been classified").
			Category(errors.CategoryState).
			Component("feedback").
			Build()
	}
	if s.Saved {
		return errors.Newf("feedback already saved for this submission").
			Category(errors.CategoryState).
			Component("feedback").
			Build()
	}
	return nil
}

func (w *Workflow) requireSearching(s *Session) error {
	if err := w.requireClassified(s); err != nil {
		return err
	}
	if s.Decision != DecisionRejectedSearch && s.Decision != DecisionSearchUnsure {
		return errors.Newf("species search is not open").
			Category(errors.CategoryState).
			Component("feedback").
			Build()
	}
	return nil
}
