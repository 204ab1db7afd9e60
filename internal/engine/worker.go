package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/reviewgate/reviewgate/internal/checks"
	"github.com/reviewgate/reviewgate/internal/host"
	"github.com/reviewgate/reviewgate/internal/knowledge"
	"github.com/reviewgate/reviewgate/internal/model"
	"github.com/reviewgate/reviewgate/internal/queue"
	"github.com/reviewgate/reviewgate/pkg/errors"
	"github.com/reviewgate/reviewgate/pkg/logger"
	"github.com/reviewgate/reviewgate/pkg/telemetry"
)

// ProcessJob runs one review job to completion. Whatever path execution
// takes, the run ends SUCCEEDED or FAILED: a deferred guard force-fails a
// run still RUNNING when the job returns. The returned error tells the
// dispatcher how to settle the job: nil acks it, a permanent error parks
// it, anything else schedules a retry.
func (e *Engine) ProcessJob(ctx context.Context, job *queue.Job) (err error) {
	p := job.Payload
	log := logger.WithRun(p.ReviewRunID)
	runs := e.store.Run()

	// Step 1: locate the run and its merge request.
	run, locErr := runs.GetByID(p.ReviewRunID)
	if locErr != nil {
		if locErr == gorm.ErrRecordNotFound {
			return errors.New(errors.ErrCodeRunNotFound, "review run not found: "+p.ReviewRunID)
		}
		return errors.Wrap(errors.ErrCodeDBQuery, "load review run", locErr)
	}
	if run.TenantID != p.TenantID {
		return errors.New(errors.ErrCodeTenantMismatch,
			"job tenant does not own review run "+p.ReviewRunID)
	}
	mr, mrErr := e.store.Repo().GetMergeRequestByID(run.MergeRequestID)
	if mrErr != nil {
		if mrErr == gorm.ErrRecordNotFound {
			return errors.New(errors.ErrCodeRunNotFound, "merge request not found for run "+p.ReviewRunID)
		}
		return errors.Wrap(errors.ErrCodeDBQuery, "load merge request", mrErr)
	}

	// The prior error is needed by the retry gate below; MarkRunning wipes it.
	priorError := run.Error

	// Step 2: mark RUNNING unconditionally.
	prior, markErr := runs.MarkRunning(run.ID)
	if markErr != nil {
		return errors.Wrap(errors.ErrCodeDBQuery, "mark run running", markErr)
	}
	metrics := telemetry.GetMetrics()
	metrics.RecordRunStarted(ctx, p.TenantSlug)
	if job.Attempts > 1 {
		metrics.RecordJobRedelivered(ctx)
	}
	started := time.Now()

	// The guard below is the last line of defense: a run may never end the
	// job in a non-terminal state, whatever exit path was taken.
	defer func() {
		if r := recover(); r != nil {
			log.Error("review job panicked", zap.Any("panic", r))
			err = errors.New(errors.ErrCodeInternal, fmt.Sprintf("review job panicked: %v", r))
		}
		current, reloadErr := runs.GetByID(run.ID)
		if reloadErr != nil {
			return
		}
		if !current.Status.IsTerminal() {
			if failErr := runs.MarkFailed(run.ID, ForcedFailureMessage); failErr != nil {
				log.Error("forced finalization failed", zap.Error(failErr))
			} else {
				log.Error("run forced to FAILED on job exit")
			}
			current.Status = model.RunStatusFailed
		}
		metrics.RecordRunFinished(ctx, string(current.Status), time.Since(started).Seconds())
	}()

	if prior == model.RunStatusSucceeded {
		// Re-delivered job for a finished run: restore the terminal state.
		return e.finalizeFromExisting(ctx, log, run, mr, p)
	}

	// Step 3: retry gate. A run that already failed for a non-transient
	// reason stays failed; automatic redelivery must not flip it back.
	if prior == model.RunStatusFailed && priorError != "" && !errors.IsTransientMessage(priorError) {
		log.Info("skipping redelivery of non-transiently failed run",
			zap.String("prior_error", priorError))
		if failErr := runs.MarkFailed(run.ID, priorError); failErr != nil {
			return errors.Wrap(errors.ErrCodeDBQuery, "restore failed status", failErr)
		}
		return nil
	}

	// Step 4: idempotency marker. Check results already persisted mean the
	// expensive half of the pipeline ran; only reconcile derived state.
	hasResults, hasErr := runs.HasCheckResults(run.ID)
	if hasErr != nil {
		return errors.Wrap(errors.ErrCodeDBQuery, "check idempotency marker", hasErr)
	}
	if hasResults {
		return e.finalizeFromExisting(ctx, log, run, mr, p)
	}

	// Step 5: fetch MR metadata and diff from the host.
	_ = runs.UpdateProgress(run.ID, "fetch", "fetching merge request diff")
	hostMR, fetchErr := e.host.GetMergeRequest(ctx, p.ProjectID, p.MRIID)
	if fetchErr != nil {
		return e.failRun(run.ID, fetchErr)
	}
	changes, fetchErr := e.host.GetMergeRequestChanges(ctx, p.ProjectID, p.MRIID)
	if fetchErr != nil {
		return e.failRun(run.ID, fetchErr)
	}

	// Step 6: tenant check configuration overlay.
	overlays, cfgErr := e.loadOverlays(run.TenantID)
	if cfgErr != nil {
		return e.failRun(run.ID, cfgErr)
	}

	// Step 7: deterministic checks.
	_ = runs.UpdateProgress(run.ID, "checks", "running deterministic checks")
	checkCtx := checks.Context{
		Changes: changesToCheckInput(changes),
		MR: checks.MRContext{
			Title:       hostMR.Title,
			Description: hostMR.Description,
		},
	}
	outcomes := e.checks.Run(checkCtx, overlays)
	results := outcomesToResults(run, outcomes)
	if persistErr := runs.CreateCheckResults(results); persistErr != nil {
		return e.failRun(run.ID, errors.Wrap(errors.ErrCodeDBQuery, "persist check results", persistErr))
	}

	// Step 8: weighted score.
	score := checks.Score(outcomes)

	// Step 9: knowledge. A merged MR is evaluated for GOLD promotion; an
	// open one is matched against existing precedents.
	_ = runs.UpdateProgress(run.ID, "knowledge", "evaluating precedents")
	goldPromoted := false
	var precedents []knowledge.Match
	if hostMR.State == "merged" || p.MergedCandidate {
		goldPromoted = e.evaluateGold(ctx, log, run, p, hostMR, changes, score, results)
	} else {
		precedents = e.matchPrecedents(log, run.TenantID, hostMR, changes)
	}

	// Step 10: AI augmentation. Failure here never fails the run.
	suggestions := e.augmentWithAI(ctx, log, run, p, hostMR, changes, outcomes, precedents)

	// Step 11: summary comment reconciliation.
	_ = runs.UpdateProgress(run.ID, "comment", "posting summary comment")
	e.reconcileComment(ctx, log, run, p, CommentInput{
		Run:          run,
		Results:      results,
		Suggestions:  suggestions,
		Score:        score,
		GoldPromoted: goldPromoted,
		Precedents:   precedents,
	})

	// Step 12: finalize.
	if finErr := runs.MarkSucceeded(run.ID, score, runSummary(results)); finErr != nil {
		return errors.Wrap(errors.ErrCodeDBQuery, "mark run succeeded", finErr)
	}
	log.Info("review run succeeded",
		zap.Int("score", score),
		zap.Int("checks", len(results)),
		zap.Bool("ai_included", len(suggestions) > 0))
	return nil
}

// failRun finalizes the run as FAILED with a sanitized message and returns
// the original error so the dispatcher can settle the job.
func (e *Engine) failRun(runID string, cause error) error {
	msg := SanitizeError(cause.Error())
	if markErr := e.store.Run().MarkFailed(runID, msg); markErr != nil {
		logger.Error("mark run failed errored",
			zap.String("run_id", runID),
			zap.Error(markErr))
	}
	return cause
}

// finalizeFromExisting restores a terminal SUCCEEDED state from persisted
// check results, reconciling the summary comment without re-running the
// pipeline or refetching the diff.
func (e *Engine) finalizeFromExisting(ctx context.Context, log *zap.Logger, run *model.ReviewRun, mr *model.MergeRequest, p queue.Payload) error {
	runs := e.store.Run()

	results, err := runs.ListCheckResults(run.ID)
	if err != nil {
		return errors.Wrap(errors.ErrCodeDBQuery, "list check results", err)
	}
	score := scoreFromResults(results)

	suggestions, err := runs.ListSuggestions(run.ID)
	if err != nil {
		return errors.Wrap(errors.ErrCodeDBQuery, "list suggestions", err)
	}

	// Precedent context is rebuilt from what the tenant knowledge base and
	// the stored results still encode.
	paths := make([]string, 0, len(results))
	for _, r := range results {
		if r.FilePath != "" {
			paths = append(paths, r.FilePath)
		}
	}
	goldPromoted := e.wasPromoted(run.TenantID, p)
	var precedents []knowledge.Match
	if !goldPromoted {
		precedents, _ = e.knowledge.MatchesForMR(run.TenantID, mr.Title, "", paths, nil)
	}

	e.reconcileComment(ctx, log, run, p, CommentInput{
		Run:          run,
		Results:      results,
		Suggestions:  suggestions,
		Score:        score,
		GoldPromoted: goldPromoted,
		Precedents:   precedents,
	})

	if err := runs.MarkSucceeded(run.ID, score, runSummary(results)); err != nil {
		return errors.Wrap(errors.ErrCodeDBQuery, "mark run succeeded", err)
	}
	log.Info("review run finalized from existing results", zap.Int("score", score))
	return nil
}

// wasPromoted reports whether this MR already exists as a GOLD precedent.
func (e *Engine) wasPromoted(tenantID string, p queue.Payload) bool {
	sources, err := e.store.Knowledge().ListByType(tenantID, model.KnowledgeTypeGoldMR)
	if err != nil {
		return false
	}
	providerID := fmt.Sprintf("%s:%d", p.ProjectID, p.MRIID)
	for _, s := range sources {
		if s.Provider == p.Provider && s.ProviderID == providerID {
			return true
		}
	}
	return false
}

func (e *Engine) loadOverlays(tenantID string) (map[string]*model.CheckConfig, error) {
	configs, err := e.store.Config().ListCheckConfigs(tenantID)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDBQuery, "load check configs", err)
	}
	overlays := make(map[string]*model.CheckConfig, len(configs))
	for i := range configs {
		overlays[configs[i].CheckKey] = &configs[i]
	}
	return overlays, nil
}

// evaluateGold runs the precedent promotion path for a merged MR. Promotion
// problems are logged, never fatal to the run.
func (e *Engine) evaluateGold(ctx context.Context, log *zap.Logger, run *model.ReviewRun, p queue.Payload, hostMR *host.MergeRequest, changes []host.FileChange, score int, results []model.ReviewCheckResult) bool {
	var approvals *int
	if appr, err := e.host.GetMergeRequestApprovals(ctx, p.ProjectID, p.MRIID); err != nil {
		log.Warn("approvals lookup failed, treating as unknown", zap.Error(err))
	} else if appr != nil {
		count := appr.ApprovalCount
		approvals = &count
	}

	candidate := knowledge.GoldCandidate{
		TenantID:   run.TenantID,
		Provider:   p.Provider,
		ProviderID: fmt.Sprintf("%s:%d", p.ProjectID, p.MRIID),
		Title:      hostMR.Title,
		Desc:       hostMR.Description,
		MRState:    hostMR.State,
		Score:      score,
		Outcomes:   results,
		Approvals:  approvals,
		Changes:    changesToGoldInput(changes),
	}

	source, skipReason, err := e.knowledge.IngestGoldMR(candidate)
	if err != nil {
		log.Warn("gold ingestion failed", zap.Error(err))
		return false
	}
	if source == nil {
		log.Info("merged MR not promoted", zap.String("reason", skipReason))
		return false
	}
	log.Info("merged MR promoted to gold precedent", zap.String("source_id", source.ID))
	return true
}

func (e *Engine) matchPrecedents(log *zap.Logger, tenantID string, hostMR *host.MergeRequest, changes []host.FileChange) []knowledge.Match {
	paths := make([]string, 0, len(changes))
	var added []string
	for _, c := range changes {
		paths = append(paths, c.NewPath)
		for _, al := range checks.AddedLines(c.Diff) {
			added = append(added, al.Text)
		}
	}
	matches, err := e.knowledge.MatchesForMR(tenantID, hostMR.Title, hostMR.Description, paths, added)
	if err != nil {
		log.Warn("precedent matching failed", zap.Error(err))
		return nil
	}
	return matches
}

// reconcileComment converges the host toward exactly one up-to-date summary
// note. Posting failures are logged and swallowed: the run still finalizes.
func (e *Engine) reconcileComment(ctx context.Context, log *zap.Logger, run *model.ReviewRun, p queue.Payload, in CommentInput) {
	body, aiIncluded, aiHash := RenderSummaryComment(in)
	runs := e.store.Run()

	stored, err := runs.GetSummaryComment(run.ID)
	if err != nil {
		log.Warn("summary comment lookup failed", zap.Error(err))
		return
	}

	if stored == nil {
		noteID, postErr := e.host.CreateMergeRequestNote(ctx, p.ProjectID, p.MRIID, body)
		if postErr != nil {
			log.Warn("summary comment post failed", zap.Error(postErr))
			return
		}
		comment := &model.PostedComment{
			TenantID:      run.TenantID,
			ReviewRunID:   run.ID,
			Type:          model.CommentTypeSummary,
			Provider:      p.Provider,
			ProviderID:    fmt.Sprintf("%d", noteID),
			Body:          body,
			AiIncluded:    aiIncluded,
			AiSummaryHash: aiHash,
		}
		if createErr := runs.CreateComment(comment); createErr != nil {
			log.Warn("summary comment record failed", zap.Error(createErr))
		}
		telemetry.GetMetrics().RecordCommentPost(ctx, "create")
		return
	}

	if stored.Body == body && stored.AiIncluded == aiIncluded && stored.AiSummaryHash == aiHash {
		log.Debug("summary comment unchanged")
		telemetry.GetMetrics().RecordCommentPost(ctx, "skip")
		return
	}

	noteID, parseErr := parseNoteID(stored.ProviderID)
	if parseErr != nil {
		log.Warn("stored note id unparseable", zap.String("provider_id", stored.ProviderID))
		return
	}
	if updateErr := e.host.UpdateMergeRequestNote(ctx, p.ProjectID, p.MRIID, noteID, body); updateErr != nil {
		log.Warn("summary comment update failed", zap.Error(updateErr))
		return
	}
	stored.Body = body
	stored.AiIncluded = aiIncluded
	stored.AiSummaryHash = aiHash
	if saveErr := runs.UpdateComment(stored); saveErr != nil {
		log.Warn("summary comment record update failed", zap.Error(saveErr))
	}
	telemetry.GetMetrics().RecordCommentPost(ctx, "update")
}

func parseNoteID(providerID string) (int64, error) {
	var id int64
	_, err := fmt.Sscanf(strings.TrimSpace(providerID), "%d", &id)
	return id, err
}

func changesToCheckInput(changes []host.FileChange) []checks.Change {
	out := make([]checks.Change, 0, len(changes))
	for _, c := range changes {
		path := c.NewPath
		if path == "" {
			path = c.OldPath
		}
		out = append(out, checks.Change{Path: path, Diff: c.Diff})
	}
	return out
}

func changesToGoldInput(changes []host.FileChange) []knowledge.ChangedFile {
	out := make([]knowledge.ChangedFile, 0, len(changes))
	for _, c := range changes {
		path := c.NewPath
		if path == "" {
			path = c.OldPath
		}
		out = append(out, knowledge.ChangedFile{
			Path:    path,
			OldPath: c.OldPath,
			Diff:    c.Diff,
			New:     c.New,
			Deleted: c.Deleted,
			Renamed: c.Renamed,
		})
	}
	return out
}

func outcomesToResults(run *model.ReviewRun, outcomes []checks.Outcome) []model.ReviewCheckResult {
	results := make([]model.ReviewCheckResult, 0, len(outcomes))
	for _, o := range outcomes {
		results = append(results, model.ReviewCheckResult{
			TenantID:    run.TenantID,
			ReviewRunID: run.ID,
			CheckKey:    o.CheckKey,
			Category:    o.Category,
			Status:      o.Status,
			Severity:    o.Severity,
			Message:     o.Message,
			FilePath:    o.FilePath,
			LineStart:   o.LineStart,
			LineEnd:     o.LineEnd,
			Evidence:    o.Evidence,
		})
	}
	return results
}
