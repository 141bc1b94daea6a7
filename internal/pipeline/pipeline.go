// Package pipeline orchestrates the triage flow: upload, duplicate
// detection, ensemble classification, explanation, and the active-learning
// retrain loop. It owns the trained model handle; all fit and predict paths
// go through one Pipeline so model swaps are serialized.
package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"bugtriage/internal/classify"
	"bugtriage/internal/config"
	"bugtriage/internal/dedup"
	"bugtriage/internal/explain"
	"bugtriage/internal/feature"
	"bugtriage/internal/ingest"
	"bugtriage/internal/learner"
	"bugtriage/internal/logging"
	"bugtriage/internal/store"
	"bugtriage/internal/textnorm"
)

// ErrNoModel is returned by classification paths before any model has been
// trained or loaded.
var ErrNoModel = errors.New("no trained model available")

// persistWorkers bounds the per-bug persistence fan-out.
const persistWorkers = 8

// LabeledSample is one training example for the initial model.
type LabeledSample struct {
	Summary     string
	Description string
	Label       string
}

// ClassifySummary reports one classification pass over a cycle.
type ClassifySummary struct {
	Classified      int
	DuplicatesFound int
	LowConfidence   int
}

// UploadSummary reports a processed upload. Classify is nil when no model
// was available to run classification.
type UploadSummary struct {
	CycleID      int64
	TotalBugs    int
	Dropped      int
	SourceSystem string
	Classify     *ClassifySummary
}

// Pipeline wires the triage stages over a Store. Safe for concurrent use;
// one mutex serializes model reads against swaps.
type Pipeline struct {
	st   store.Store
	cfg  config.Config
	norm *textnorm.Normalizer
	lrn  *learner.Learner
	log  *slog.Logger

	mu         sync.Mutex
	extractor  *feature.Extractor
	classifier *classify.Classifier
	explainer  *explain.Explainer
}

// New returns a Pipeline without a model. Call LoadModels or a training
// path before classifying.
func New(st store.Store, cfg config.Config) *Pipeline {
	norm := textnorm.New(cfg.Lemmatizer)
	return &Pipeline{
		st:   st,
		cfg:  cfg,
		norm: norm,
		lrn:  learner.New(st, norm, cfg),
		log:  logging.New("pipeline"),
	}
}

// LoadModels loads the persisted extractor and classifier from the model
// dir. Missing model files leave the pipeline without a model, which is the
// normal state before initial training, not an error.
func (p *Pipeline) LoadModels() error {
	extPath := learner.ExtractorPath(p.cfg.ModelDir)
	clsPath := learner.ClassifierPath(p.cfg.ModelDir)
	for _, path := range []string{extPath, clsPath} {
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				p.log.Info("no trained model on disk", "dir", p.cfg.ModelDir)
				return nil
			}
			return fmt.Errorf("stat model file: %w", err)
		}
	}

	ext := feature.New(p.cfg.MaxFeatures, p.cfg.NgramMin, p.cfg.NgramMax)
	if err := ext.Load(extPath); err != nil {
		return fmt.Errorf("load extractor: %w", err)
	}
	cls := classify.New()
	if err := cls.Load(clsPath); err != nil {
		return fmt.Errorf("load classifier: %w", err)
	}
	p.swapModel(ext, cls)
	p.log.Info("model loaded", "dir", p.cfg.ModelDir)
	return nil
}

// HasModel reports whether a trained model is in place.
func (p *Pipeline) HasModel() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.extractor != nil && p.classifier != nil
}

func (p *Pipeline) swapModel(ext *feature.Extractor, cls *classify.Classifier) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.extractor = ext
	p.classifier = cls
	p.explainer = explain.New(ext.Terms())
}

func (p *Pipeline) model() (*feature.Extractor, *classify.Classifier, *explain.Explainer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.extractor, p.classifier, p.explainer
}

// ProcessUpload stores a parsed upload as a new cycle and classifies it
// when a model is available.
func (p *Pipeline) ProcessUpload(res *ingest.Result, projectID int64, cycleName, fileName string) (UploadSummary, error) {
	proj, err := p.st.GetProject(projectID)
	if err != nil {
		return UploadSummary{}, err
	}
	if proj == nil {
		return UploadSummary{}, fmt.Errorf("project %d not found", projectID)
	}

	cycleID, err := p.st.CreateCycle(&store.Cycle{
		ProjectID:      projectID,
		Name:           cycleName,
		SourceSystem:   res.SourceSystem,
		UploadFileName: fileName,
	})
	if err != nil {
		return UploadSummary{}, err
	}

	bugs := make([]*store.Bug, len(res.Records))
	for i, r := range res.Records {
		bugs[i] = &store.Bug{
			CycleID:      cycleID,
			ExternalID:   r.ExternalID,
			Summary:      r.Summary,
			Description:  r.Description,
			Status:       r.Status,
			Priority:     r.Priority,
			Severity:     r.Severity,
			Component:    r.Component,
			Reporter:     r.Reporter,
			Assignee:     r.Assignee,
			CreatedDate:  r.CreatedDate,
			ResolvedDate: r.ResolvedDate,
			Resolution:   r.Resolution,
			Labels:       r.Labels,
			OriginalType: r.OriginalType,
		}
	}
	if _, err := p.st.BulkCreateBugs(bugs); err != nil {
		return UploadSummary{}, err
	}

	summary := UploadSummary{
		CycleID:      cycleID,
		TotalBugs:    len(bugs),
		Dropped:      res.Dropped,
		SourceSystem: res.SourceSystem,
	}
	p.log.Info("upload processed", "cycle_id", cycleID,
		"bugs", len(bugs), "dropped", res.Dropped, "source", res.SourceSystem)

	if p.HasModel() {
		cs, err := p.ClassifyCycle(cycleID)
		if err != nil {
			return summary, err
		}
		summary.Classify = &cs
	}
	return summary, nil
}

// ClassifyCycle runs duplicate detection then ensemble classification over
// every bug in the cycle. Duplicates are detected on summary-only vectors;
// classification uses the combined summary+description vectors.
func (p *Pipeline) ClassifyCycle(cycleID int64) (ClassifySummary, error) {
	ext, cls, expl := p.model()
	if ext == nil || cls == nil {
		return ClassifySummary{}, ErrNoModel
	}

	bugs, err := p.st.ListBugsByCycle(cycleID)
	if err != nil {
		return ClassifySummary{}, err
	}
	if len(bugs) == 0 {
		return ClassifySummary{}, nil
	}

	texts := make([]string, len(bugs))
	summaryTexts := make([]string, len(bugs))
	ids := make([]int64, len(bugs))
	for i, b := range bugs {
		texts[i] = p.norm.NormalizeBug(b.Summary, b.Description)
		summaryTexts[i] = p.norm.Normalize(b.Summary)
		ids[i] = b.ID
	}
	vectors, err := ext.Transform(texts)
	if err != nil {
		return ClassifySummary{}, fmt.Errorf("transform texts: %w", err)
	}
	summaryVectors, err := ext.Transform(summaryTexts)
	if err != nil {
		return ClassifySummary{}, fmt.Errorf("transform summaries: %w", err)
	}

	byID := make(map[int64]*store.Bug, len(bugs))
	for _, b := range bugs {
		byID[b.ID] = b
	}

	links := dedup.New(p.cfg.DuplicateThreshold).FindDuplicates(summaryVectors, ids)
	dupIDs := make(map[int64]bool, len(links))
	for _, link := range links {
		dupIDs[link.BugID] = true
	}

	var g errgroup.Group
	g.SetLimit(persistWorkers)
	for _, link := range links {
		g.Go(func() error {
			if err := p.st.SetBugDuplicate(link.BugID, link.DuplicateOfID, link.Similarity); err != nil {
				return err
			}
			orig := byID[link.DuplicateOfID]
			explanation := expl.ExplainDuplicate(orig.Summary, link.Similarity)
			return p.st.SetBugExplanation(link.BugID, explanation, link.Similarity)
		})
	}
	if err := g.Wait(); err != nil {
		return ClassifySummary{}, fmt.Errorf("persist duplicates: %w", err)
	}

	summary := ClassifySummary{DuplicatesFound: len(links)}

	var rest []int
	for i, b := range bugs {
		if !dupIDs[b.ID] {
			rest = append(rest, i)
		}
	}
	if len(rest) > 0 {
		restVectors := make([][]float64, len(rest))
		for j, i := range rest {
			restVectors[j] = vectors[i]
		}
		results, err := cls.Predict(restVectors)
		if err != nil {
			return ClassifySummary{}, fmt.Errorf("predict: %w", err)
		}

		var pg errgroup.Group
		pg.SetLimit(persistWorkers)
		for j, i := range rest {
			bug := bugs[i]
			result := results[j]
			vector := vectors[i]
			pg.Go(func() error {
				explanation := expl.Explain(vector, result.Label, result.Probabilities, explain.DefaultTopN)
				if err := p.st.UpdateBugClassification(bug.ID, result.Label, result.Confidence, explanation); err != nil {
					return err
				}
				vj, err := json.Marshal(vector)
				if err != nil {
					return fmt.Errorf("encode vector: %w", err)
				}
				return p.st.SetBugVector(bug.ID, string(vj))
			})
			summary.Classified++
			if result.Confidence < p.cfg.ConfidenceThreshold {
				summary.LowConfidence++
			}
		}
		if err := pg.Wait(); err != nil {
			return ClassifySummary{}, fmt.Errorf("persist classifications: %w", err)
		}
	}

	p.log.Info("cycle classified", "cycle_id", cycleID,
		"classified", summary.Classified,
		"duplicates", summary.DuplicatesFound,
		"low_confidence", summary.LowConfidence)
	return summary, nil
}

// TrainInitialModel fits the first model from labeled samples and swaps it
// in on success. Undersized or single-label sample sets yield a skipped
// outcome instead of a weak model.
func (p *Pipeline) TrainInitialModel(samples []LabeledSample) (learner.Outcome, error) {
	texts := make([]string, len(samples))
	labels := make([]string, len(samples))
	for i, s := range samples {
		texts[i] = p.norm.NormalizeBug(s.Summary, s.Description)
		labels[i] = s.Label
	}
	out, err := p.lrn.Train(texts, labels)
	if err != nil {
		return out, err
	}
	if out.Status == learner.StatusTrained {
		p.swapModel(out.Extractor, out.Classifier)
	}
	return out, nil
}

// RetrainIfNeeded retrains when enough overrides have accumulated and
// swaps the new model in. Below the override threshold it reports
// not_needed without touching the model.
func (p *Pipeline) RetrainIfNeeded() (learner.Outcome, error) {
	due, err := p.lrn.ShouldRetrain()
	if err != nil {
		return learner.Outcome{}, err
	}
	if !due {
		return learner.Outcome{Status: learner.StatusNotNeeded}, nil
	}
	out, err := p.lrn.Retrain()
	if err != nil {
		return out, err
	}
	if out.Status == learner.StatusRetrained {
		p.swapModel(out.Extractor, out.Classifier)
	}
	return out, nil
}

// RecordOverride applies a human correction and immediately runs the
// retrain check, so the override that crosses the threshold triggers the
// retrain in the same call.
func (p *Pipeline) RecordOverride(bugID int64, newLabel, actor, reason string) (*store.Bug, learner.Outcome, error) {
	bug, err := p.st.OverrideBugClassification(bugID, newLabel, actor, reason)
	if err != nil {
		return nil, learner.Outcome{}, err
	}
	p.log.Info("override recorded", "bug_id", bugID,
		"label", newLabel, "actor", actor)
	out, err := p.RetrainIfNeeded()
	if err != nil {
		return bug, out, fmt.Errorf("retrain after override: %w", err)
	}
	return bug, out, nil
}
