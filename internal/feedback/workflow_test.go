package feedback

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SayHoang/plantidentify/internal/classifier"
	"github.com/SayHoang/plantidentify/internal/errors"
	"github.com/SayHoang/plantidentify/internal/imageprep"
	"github.com/SayHoang/plantidentify/internal/inat"
	"github.com/SayHoang/plantidentify/internal/store"
)

type fakePredictor struct {
	prediction classifier.Prediction
	err        error
	scientific map[string]string
}

func (f *fakePredictor) Predict(_ *imageprep.Tensor) (classifier.Prediction, error) {
	if f.err != nil {
		return classifier.Prediction{}, f.err
	}
	return f.prediction, nil
}

func (f *fakePredictor) Known(label string) bool {
	_, ok := f.scientific[label]
	return ok
}

func (f *fakePredictor) ScientificName(label string) (string, error) {
	name, ok := f.scientific[label]
	if !ok || name == "" {
		return "", errors.Newf("no scientific name mapping for class %q", label).
			Category(errors.CategoryConfiguration).
			Build()
	}
	return name, nil
}

type fakeDirectory struct {
	candidates        []inat.SpeciesCandidate
	images            []string
	autocompleteCalls int
	imageCalls        int
	lastQuery         string
	lastCount         int
}

func (f *fakeDirectory) Autocomplete(_ context.Context, query string) []inat.SpeciesCandidate {
	f.autocompleteCalls++
	f.lastQuery = query
	return f.candidates
}

func (f *fakeDirectory) ReferenceImages(_ context.Context, _, count int) []string {
	f.imageCalls++
	f.lastCount = count
	return f.images
}

type fakeCommitter struct {
	calls    int
	failWith error
	lastReq  *store.CommitRequest
}

func (f *fakeCommitter) Commit(_ context.Context, req *store.CommitRequest) (store.Receipt, error) {
	f.calls++
	f.lastReq = req
	if f.failWith != nil {
		return store.Receipt{}, f.failWith
	}
	return store.Receipt{LabelDir: store.SanitizeLabel(req.Label), ObjectPath: "x"}, nil
}

var defaultScientific = map[string]string{
	"Pothos":   "Epipremnum_aureum",
	"Monstera": "Monstera_deliciosa",
}

func testImage(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{G: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newTestWorkflow(p *fakePredictor, d *fakeDirectory, c *fakeCommitter) *Workflow {
	return New(p, d, c, 90.0, "collected_data")
}

// classifiedSession builds a session that has been uploaded and classified.
func classifiedSession(t *testing.T, w *Workflow, data []byte) *Session {
	t.Helper()
	s := NewSession()
	w.Upload(s, "leaf.png", data)
	require.NoError(t, w.Classify(context.Background(), s))
	return s
}

func TestUploadIdentity(t *testing.T) {
	t.Parallel()

	w := newTestWorkflow(&fakePredictor{scientific: defaultScientific}, &fakeDirectory{}, &fakeCommitter{})
	s := NewSession()
	data := testImage(t)

	w.Upload(s, "leaf.png", data)
	first := s.FileIdentifier
	s.Classified = true

	// Same filename and size: no-op, no state reset.
	w.Upload(s, "leaf.png", data)
	assert.Equal(t, first, s.FileIdentifier)
	assert.True(t, s.Classified)

	// Byte-identical content under a different filename is a new submission.
	w.Upload(s, "other.png", data)
	assert.NotEqual(t, first, s.FileIdentifier)
	assert.False(t, s.Classified)
	assert.False(t, s.Saved)
}

func TestClassifySetsPrediction(t *testing.T) {
	t.Parallel()

	p := &fakePredictor{
		prediction: classifier.Prediction{Label: "Pothos", Index: 0, Confidence: 95.0},
		scientific: defaultScientific,
	}
	w := newTestWorkflow(p, &fakeDirectory{}, &fakeCommitter{})
	s := classifiedSession(t, w, testImage(t))

	assert.True(t, s.Classified)
	assert.Equal(t, "Pothos", s.Prediction.Label)
	assert.InDelta(t, 95.0, s.Prediction.Confidence, 0.001)
	assert.True(t, w.Confident(s))
}

func TestClassifyFailureLeavesStateUnset(t *testing.T) {
	t.Parallel()

	p := &fakePredictor{err: errors.NewStd("inference exploded"), scientific: defaultScientific}
	w := newTestWorkflow(p, &fakeDirectory{}, &fakeCommitter{})
	s := NewSession()
	w.Upload(s, "leaf.png", testImage(t))

	require.Error(t, w.Classify(context.Background(), s))
	assert.False(t, s.Classified)

	// Retry is permitted once the model recovers.
	p.err = nil
	p.prediction = classifier.Prediction{Label: "Monstera", Confidence: 80}
	require.NoError(t, w.Classify(context.Background(), s))
	assert.True(t, s.Classified)
}

func TestClassifyRejectsGarbageImage(t *testing.T) {
	t.Parallel()

	w := newTestWorkflow(&fakePredictor{scientific: defaultScientific}, &fakeDirectory{}, &fakeCommitter{})
	s := NewSession()
	w.Upload(s, "bad.png", []byte("not an image"))

	err := w.Classify(context.Background(), s)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryImageProcess))
	assert.False(t, s.Classified)
}

func TestConfidenceGate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		prediction classifier.Prediction
		confident  bool
		known      bool
	}{
		{"high confidence known class", classifier.Prediction{Label: "Pothos", Confidence: 95}, true, true},
		{"threshold is inclusive", classifier.Prediction{Label: "Pothos", Confidence: 90}, true, true},
		{"below threshold", classifier.Prediction{Label: "Pothos", Confidence: 89.9}, false, true},
		{"high confidence unknown label", classifier.Prediction{Label: classifier.LabelUnrecognized, Confidence: 99}, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p := &fakePredictor{prediction: tt.prediction, scientific: defaultScientific}
			w := newTestWorkflow(p, &fakeDirectory{}, &fakeCommitter{})
			s := classifiedSession(t, w, testImage(t))

			assert.Equal(t, tt.confident, w.Confident(s))
			assert.Equal(t, tt.known, w.KnownPrediction(s))
		})
	}
}

func TestAcceptCommitsScientificName(t *testing.T) {
	t.Parallel()

	p := &fakePredictor{prediction: classifier.Prediction{Label: "Pothos", Confidence: 95}, scientific: defaultScientific}
	c := &fakeCommitter{}
	w := newTestWorkflow(p, &fakeDirectory{}, c)
	s := classifiedSession(t, w, testImage(t))

	require.NoError(t, w.Accept(context.Background(), s))
	assert.True(t, s.Saved)
	assert.Equal(t, DecisionAcceptedPredicted, s.Decision)
	assert.Equal(t, "Epipremnum_aureum", s.ResolvedLabel)
	require.NotNil(t, c.lastReq)
	assert.Equal(t, "Epipremnum_aureum", c.lastReq.Label)
	assert.Equal(t, "leaf.png", c.lastReq.OriginalFilename)
	assert.Equal(t, "collected_data", c.lastReq.Prefix)

	// The saved flag guards against a second write.
	err := w.Accept(context.Background(), s)
	require.Error(t, err)
	assert.Equal(t, 1, c.calls)
	assert.True(t, s.Saved)
}

func TestAcceptRequiresConfidence(t *testing.T) {
	t.Parallel()

	p := &fakePredictor{prediction: classifier.Prediction{Label: "Pothos", Confidence: 50}, scientific: defaultScientific}
	c := &fakeCommitter{}
	w := newTestWorkflow(p, &fakeDirectory{}, c)
	s := classifiedSession(t, w, testImage(t))

	require.Error(t, w.Accept(context.Background(), s))
	assert.Zero(t, c.calls)
}

func TestCommitFailureAllowsRetry(t *testing.T) {
	t.Parallel()

	p := &fakePredictor{prediction: classifier.Prediction{Label: "Monstera", Confidence: 97}, scientific: defaultScientific}
	c := &fakeCommitter{failWith: errors.Newf("bucket down").Category(errors.CategoryObjectStore).Build()}
	w := newTestWorkflow(p, &fakeDirectory{}, c)
	s := classifiedSession(t, w, testImage(t))

	require.Error(t, w.Accept(context.Background(), s))
	assert.False(t, s.Saved)

	// Manual retry of the same confirm action succeeds once the store is back.
	c.failWith = nil
	require.NoError(t, w.Accept(context.Background(), s))
	assert.True(t, s.Saved)
	assert.Equal(t, 2, c.calls)
}

func TestMissingScientificMappingBlocksCommit(t *testing.T) {
	t.Parallel()

	p := &fakePredictor{
		prediction: classifier.Prediction{Label: "Pothos", Confidence: 95},
		scientific: map[string]string{"Pothos": ""},
	}
	c := &fakeCommitter{}
	w := newTestWorkflow(p, &fakeDirectory{}, c)
	s := classifiedSession(t, w, testImage(t))

	err := w.Accept(context.Background(), s)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
	assert.Zero(t, c.calls)
	assert.False(t, s.Saved)
}

func TestConfirmNearestOnUnconfidentBranch(t *testing.T) {
	t.Parallel()

	p := &fakePredictor{prediction: classifier.Prediction{Label: "Monstera", Confidence: 60}, scientific: defaultScientific}
	c := &fakeCommitter{}
	w := newTestWorkflow(p, &fakeDirectory{}, c)
	s := classifiedSession(t, w, testImage(t))

	require.False(t, w.Confident(s))
	require.NoError(t, w.ConfirmNearest(context.Background(), s))
	assert.Equal(t, DecisionConfirmedUnsure, s.Decision)
	assert.Equal(t, "Monstera_deliciosa", s.ResolvedLabel)
	assert.True(t, s.Saved)
}

func TestConfirmNearestNeedsKnownLabel(t *testing.T) {
	t.Parallel()

	p := &fakePredictor{prediction: classifier.Prediction{Label: classifier.LabelUnrecognized, Confidence: 99}, scientific: defaultScientific}
	w := newTestWorkflow(p, &fakeDirectory{}, &fakeCommitter{})
	s := classifiedSession(t, w, testImage(t))

	require.Error(t, w.ConfirmNearest(context.Background(), s))
	assert.False(t, s.Saved)
}

func searchingSession(t *testing.T, w *Workflow) *Session {
	t.Helper()
	s := classifiedSession(t, w, testImage(t))
	require.NoError(t, w.RequestSearch(s))
	return s
}

func TestSetQueryLengthGate(t *testing.T) {
	t.Parallel()

	d := &fakeDirectory{candidates: []inat.SpeciesCandidate{{ID: 1, ScientificName: "Epipremnum aureum", DisplayName: "golden pothos"}}}
	p := &fakePredictor{prediction: classifier.Prediction{Label: "Pothos", Confidence: 50}, scientific: defaultScientific}
	w := newTestWorkflow(p, d, &fakeCommitter{})
	s := searchingSession(t, w)

	// Short queries clear candidates without calling the directory.
	require.NoError(t, w.SetQuery(context.Background(), s, "po"))
	assert.Empty(t, s.Candidates)
	assert.Zero(t, d.autocompleteCalls)

	require.NoError(t, w.SetQuery(context.Background(), s, "pothos"))
	assert.Len(t, s.Candidates, 1)
	assert.Equal(t, 1, d.autocompleteCalls)

	// Unchanged query must not re-query the directory.
	require.NoError(t, w.SetQuery(context.Background(), s, "pothos"))
	assert.Equal(t, 1, d.autocompleteCalls)

	// A changed query searches again.
	require.NoError(t, w.SetQuery(context.Background(), s, "monstera"))
	assert.Equal(t, 2, d.autocompleteCalls)
}

func TestSelectFetchesImagesOnce(t *testing.T) {
	t.Parallel()

	d := &fakeDirectory{
		candidates: []inat.SpeciesCandidate{
			{ID: 1, ScientificName: "Epipremnum aureum", DisplayName: "golden pothos"},
			{ID: 2, ScientificName: "Monstera deliciosa", DisplayName: "split-leaf philodendron"},
		},
		images: []string{"https://x/medium.jpg"},
	}
	p := &fakePredictor{prediction: classifier.Prediction{Label: "Pothos", Confidence: 50}, scientific: defaultScientific}
	w := newTestWorkflow(p, d, &fakeCommitter{})
	s := searchingSession(t, w)
	require.NoError(t, w.SetQuery(context.Background(), s, "pothos"))

	require.NoError(t, w.Select(context.Background(), s, 1))
	assert.Equal(t, 1, d.imageCalls)
	assert.Equal(t, 10, d.lastCount)
	assert.Equal(t, "golden pothos", s.Query)
	assert.Equal(t, "golden pothos", s.LastSearched)
	assert.Len(t, s.ReferenceImages, 1)

	// Re-selecting the same candidate neither refetches nor re-searches.
	require.NoError(t, w.Select(context.Background(), s, 1))
	assert.Equal(t, 1, d.imageCalls)

	// Selecting a different candidate clears images and fetches fresh ones.
	require.NoError(t, w.Select(context.Background(), s, 2))
	assert.Equal(t, 2, d.imageCalls)
	assert.Equal(t, "split-leaf philodendron", s.Query)
}

func TestSelectUnknownCandidate(t *testing.T) {
	t.Parallel()

	p := &fakePredictor{prediction: classifier.Prediction{Label: "Pothos", Confidence: 50}, scientific: defaultScientific}
	w := newTestWorkflow(p, &fakeDirectory{}, &fakeCommitter{})
	s := searchingSession(t, w)

	err := w.Select(context.Background(), s, 42)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestConfirmSelectionCommitsScientificName(t *testing.T) {
	t.Parallel()

	d := &fakeDirectory{candidates: []inat.SpeciesCandidate{{ID: 7, ScientificName: "Zamioculcas zamiifolia", DisplayName: "ZZ plant"}}}
	p := &fakePredictor{prediction: classifier.Prediction{Label: "Pothos", Confidence: 50}, scientific: defaultScientific}
	c := &fakeCommitter{}
	w := newTestWorkflow(p, d, c)
	s := searchingSession(t, w)

	require.NoError(t, w.SetQuery(context.Background(), s, "zz plant"))
	require.NoError(t, w.Select(context.Background(), s, 7))
	require.NoError(t, w.ConfirmSelection(context.Background(), s))

	assert.True(t, s.Saved)
	assert.Equal(t, "Zamioculcas zamiifolia", s.ResolvedLabel)
	require.NotNil(t, c.lastReq)
	assert.Equal(t, "Zamioculcas zamiifolia", c.lastReq.Label)
}

func TestConfirmSelectionRequiresSelection(t *testing.T) {
	t.Parallel()

	p := &fakePredictor{prediction: classifier.Prediction{Label: "Pothos", Confidence: 50}, scientific: defaultScientific}
	w := newTestWorkflow(p, &fakeDirectory{}, &fakeCommitter{})
	s := searchingSession(t, w)

	require.Error(t, w.ConfirmSelection(context.Background(), s))
}

func TestRejectClearsSearchState(t *testing.T) {
	t.Parallel()

	d := &fakeDirectory{candidates: []inat.SpeciesCandidate{{ID: 1, DisplayName: "x", ScientificName: "X y"}}}
	p := &fakePredictor{prediction: classifier.Prediction{Label: "Pothos", Confidence: 95}, scientific: defaultScientific}
	w := newTestWorkflow(p, d, &fakeCommitter{})
	s := classifiedSession(t, w, testImage(t))

	require.NoError(t, w.Reject(s))
	require.NoError(t, w.SetQuery(context.Background(), s, "some plant"))
	require.NoError(t, w.Select(context.Background(), s, 1))

	// Rejecting again resets the whole sub-state.
	require.NoError(t, w.Reject(s))
	assert.Empty(t, s.Query)
	assert.Empty(t, s.LastSearched)
	assert.Nil(t, s.Candidates)
	assert.Nil(t, s.Selected)
	assert.Nil(t, s.ReferenceImages)
}

func TestEventsRequireClassification(t *testing.T) {
	t.Parallel()

	w := newTestWorkflow(&fakePredictor{scientific: defaultScientific}, &fakeDirectory{}, &fakeCommitter{})
	s := NewSession()

	require.Error(t, w.Classify(context.Background(), s)) // nothing uploaded
	w.Upload(s, "leaf.png", testImage(t))
	require.Error(t, w.Accept(context.Background(), s))
	require.Error(t, w.Reject(s))
	require.Error(t, w.RequestSearch(s))
	require.Error(t, w.SetQuery(context.Background(), s, "pothos"))
}
