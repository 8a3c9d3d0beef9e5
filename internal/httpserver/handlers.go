package httpserver

import (
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/SayHoang/plantidentify/internal/feedback"
	"github.com/SayHoang/plantidentify/internal/inat"
)

// PredictionDTO is the wire form of a classification result.
type PredictionDTO struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Display    string  `json:"display"`
}

// StateResponse mirrors the full workflow state the UI renders from.
type StateResponse struct {
	HasSubmission   bool                    `json:"has_submission"`
	Filename        string                  `json:"filename,omitempty"`
	Classified      bool                    `json:"classified"`
	Prediction      *PredictionDTO          `json:"prediction,omitempty"`
	Confident       bool                    `json:"confident"`
	KnownPrediction bool                    `json:"known_prediction"`
	Decision        string                  `json:"decision"`
	Saved           bool                    `json:"saved"`
	ResolvedLabel   string                  `json:"resolved_label,omitempty"`
	Query           string                  `json:"query,omitempty"`
	Candidates      []inat.SpeciesCandidate `json:"candidates,omitempty"`
	SelectedID      int                     `json:"selected_id,omitempty"`
	ReferenceImages []string                `json:"reference_images,omitempty"`
}

// stateOf snapshots a locked session into the wire representation.
func (c *Controller) stateOf(s *feedback.Session) *StateResponse {
	resp := &StateResponse{
		HasSubmission:   s.HasSubmission(),
		Filename:        s.OriginalFilename,
		Classified:      s.Classified,
		Confident:       c.workflow.Confident(s),
		KnownPrediction: c.workflow.KnownPrediction(s),
		Decision:        string(s.Decision),
		Saved:           s.Saved,
		ResolvedLabel:   s.ResolvedLabel,
		Query:           s.Query,
		Candidates:      s.Candidates,
		ReferenceImages: s.ReferenceImages,
	}
	if s.Classified {
		resp.Prediction = &PredictionDTO{
			Label:      s.Prediction.Label,
			Confidence: s.Prediction.Confidence,
			Display:    fmt.Sprintf("%s (%.2f%%)", s.Prediction.Label, s.Prediction.Confidence),
		}
	}
	if s.Selected != nil {
		resp.SelectedID = s.Selected.ID
	}
	return resp
}

// UploadImage accepts a multipart image upload and registers it as the live
// submission. Classification is a separate step driven by the client, so the
// unclassified state stays observable between the two.
func (c *Controller) UploadImage(ctx echo.Context) error {
	fileHeader, err := ctx.FormFile("image")
	if err != nil {
		return c.HandleError(ctx, err, "Missing image form field", http.StatusBadRequest)
	}

	file, err := fileHeader.Open()
	if err != nil {
		return c.HandleError(ctx, err, "Failed to open uploaded file", http.StatusBadRequest)
	}
	defer func() {
		_ = file.Close()
	}()

	data, err := io.ReadAll(file)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to read uploaded file", http.StatusBadRequest)
	}

	session, err := c.sessions.acquire(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to resolve session", http.StatusInternalServerError)
	}
	session.Lock()
	defer session.Unlock()

	c.workflow.Upload(session, fileHeader.Filename, data)

	return ctx.JSON(http.StatusOK, c.stateOf(session))
}

// ClassifyImage runs classification for the live submission. Idempotent, so
// it also serves as the retry after a model failure.
func (c *Controller) ClassifyImage(ctx echo.Context) error {
	return c.withSession(ctx, func(ec echo.Context, s *feedback.Session) error {
		return c.workflow.Classify(ec.Request().Context(), s)
	})
}

// GetState returns the current workflow state for the caller's session.
func (c *Controller) GetState(ctx echo.Context) error {
	session, err := c.sessions.acquire(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to resolve session", http.StatusInternalServerError)
	}
	session.Lock()
	defer session.Unlock()

	return ctx.JSON(http.StatusOK, c.stateOf(session))
}

// AcceptPrediction confirms a confident prediction and persists the image.
func (c *Controller) AcceptPrediction(ctx echo.Context) error {
	return c.withSession(ctx, func(ec echo.Context, s *feedback.Session) error {
		return c.workflow.Accept(ec.Request().Context(), s)
	})
}

// RejectPrediction rejects a confident prediction and opens the species search.
func (c *Controller) RejectPrediction(ctx echo.Context) error {
	return c.withSession(ctx, func(_ echo.Context, s *feedback.Session) error {
		return c.workflow.Reject(s)
	})
}

// ConfirmNearest confirms an unconfident prediction as correct anyway.
func (c *Controller) ConfirmNearest(ctx echo.Context) error {
	return c.withSession(ctx, func(ec echo.Context, s *feedback.Session) error {
		return c.workflow.ConfirmNearest(ec.Request().Context(), s)
	})
}

// OpenSearch opens the species search from the unconfident branch.
func (c *Controller) OpenSearch(ctx echo.Context) error {
	return c.withSession(ctx, func(_ echo.Context, s *feedback.Session) error {
		return c.workflow.RequestSearch(s)
	})
}

type queryRequest struct {
	Query string `json:"query"`
}

// SearchQuery applies a free-text species query to the open search.
func (c *Controller) SearchQuery(ctx echo.Context) error {
	var req queryRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}
	return c.withSession(ctx, func(ec echo.Context, s *feedback.Session) error {
		return c.workflow.SetQuery(ec.Request().Context(), s, req.Query)
	})
}

type selectRequest struct {
	TaxonID int `json:"taxon_id"`
}

// SelectCandidate picks one candidate from the current search results.
func (c *Controller) SelectCandidate(ctx echo.Context) error {
	var req selectRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}
	return c.withSession(ctx, func(ec echo.Context, s *feedback.Session) error {
		return c.workflow.Select(ec.Request().Context(), s, req.TaxonID)
	})
}

// ConfirmSelection persists the image under the selected candidate's name.
func (c *Controller) ConfirmSelection(ctx echo.Context) error {
	return c.withSession(ctx, func(ec echo.Context, s *feedback.Session) error {
		return c.workflow.ConfirmSelection(ec.Request().Context(), s)
	})
}

// withSession runs one workflow event under the session lock and responds
// with the refreshed state.
func (c *Controller) withSession(ctx echo.Context, event func(echo.Context, *feedback.Session) error) error {
	session, err := c.sessions.acquire(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to resolve session", http.StatusInternalServerError)
	}
	session.Lock()
	defer session.Unlock()

	if err := event(ctx, session); err != nil {
		return c.HandleError(ctx, err, "Action not applicable in the current state", statusForError(err))
	}

	return ctx.JSON(http.StatusOK, c.stateOf(session))
}
