// Package learner closes the active-learning loop: it decides when enough
// human overrides have accumulated to justify retraining, refits the
// feature extractor and classifier on the reviewed corpus, and records the
// resulting model version.
package learner

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"bugtriage/internal/classify"
	"bugtriage/internal/config"
	"bugtriage/internal/feature"
	"bugtriage/internal/logging"
	"bugtriage/internal/store"
	"bugtriage/internal/textnorm"
)

// Training gates. Below either floor a training request is skipped, never
// failed: an undertrained model is worse than no model.
const (
	MinTrainingSamples = 10
	MinDistinctLabels  = 2
)

// Outcome statuses.
const (
	StatusSkipped   = "skipped"
	StatusTrained   = "trained"
	StatusRetrained = "retrained"
	StatusNotNeeded = "not_needed"
)

// Model file names under the configured model dir. Saves are atomic
// (temp file + rename), so readers only ever see a complete model.
const (
	ExtractorFile  = "extractor.json"
	ClassifierFile = "classifier.json"
)

// ExtractorPath returns the extractor model path under dir.
func ExtractorPath(dir string) string { return filepath.Join(dir, ExtractorFile) }

// ClassifierPath returns the classifier model path under dir.
func ClassifierPath(dir string) string { return filepath.Join(dir, ClassifierFile) }

// Outcome reports what a training request did. On StatusSkipped only
// Reason is set. On success Extractor and Classifier hold the freshly
// fitted models for the caller to swap in.
type Outcome struct {
	Status  string
	Reason  string
	Version string
	Metrics classify.Metrics

	TrainingSamples int

	Extractor  *feature.Extractor
	Classifier *classify.Classifier
}

// Learner drives retraining against a Store.
type Learner struct {
	store store.Store
	norm  *textnorm.Normalizer
	cfg   config.Config
	log   *slog.Logger
}

// New returns a Learner over the given store and normalizer.
func New(st store.Store, norm *textnorm.Normalizer, cfg config.Config) *Learner {
	return &Learner{store: st, norm: norm, cfg: cfg, log: logging.New("learner")}
}

// ShouldRetrain reports whether enough human overrides have accumulated
// since the active model was trained. With no active model every override
// ever recorded counts.
func (l *Learner) ShouldRetrain() (bool, error) {
	since := ""
	active, err := l.store.GetActiveModelVersion()
	if err != nil {
		return false, err
	}
	if active != nil {
		since = active.TrainedAt
	}
	n, err := l.store.CountHumanOverrides(since)
	if err != nil {
		return false, err
	}
	return n >= l.cfg.RetrainOverrideCount, nil
}

// Retrain refits the models on every human-reviewed bug. It returns a
// skipped Outcome when the reviewed corpus is too small or too uniform.
func (l *Learner) Retrain() (Outcome, error) {
	bugs, err := l.store.ListReviewedBugs()
	if err != nil {
		return Outcome{}, fmt.Errorf("load reviewed bugs: %w", err)
	}
	texts := make([]string, 0, len(bugs))
	labels := make([]string, 0, len(bugs))
	for _, b := range bugs {
		texts = append(texts, l.norm.NormalizeBug(b.Summary, b.Description))
		labels = append(labels, store.EffectiveLabel(b))
	}
	out, err := l.train(texts, labels)
	if err != nil {
		return out, err
	}
	if out.Status != StatusSkipped {
		out.Status = StatusRetrained
		l.log.Info("model retrained", "version", out.Version,
			"samples", out.TrainingSamples, "f1", out.Metrics.AverageF1())
	} else {
		l.log.Info("retrain skipped", "reason", out.Reason)
	}
	return out, nil
}

// Train fits the models on pre-normalized texts with their labels, for the
// initial training path. Gating matches Retrain.
func (l *Learner) Train(texts, labels []string) (Outcome, error) {
	out, err := l.train(texts, labels)
	if err != nil {
		return out, err
	}
	if out.Status != StatusSkipped {
		out.Status = StatusTrained
		l.log.Info("model trained", "version", out.Version,
			"samples", out.TrainingSamples, "f1", out.Metrics.AverageF1())
	}
	return out, nil
}

func (l *Learner) train(texts, labels []string) (Outcome, error) {
	if reason := gate(labels); reason != "" {
		return Outcome{Status: StatusSkipped, Reason: reason}, nil
	}

	ext := feature.New(l.cfg.MaxFeatures, l.cfg.NgramMin, l.cfg.NgramMax)
	x, err := ext.FitTransform(texts)
	if err != nil {
		return Outcome{}, fmt.Errorf("fit extractor: %w", err)
	}
	cls := classify.New()
	metrics, err := cls.Fit(x, labels)
	if err != nil {
		return Outcome{}, fmt.Errorf("fit classifier: %w", err)
	}

	if err := os.MkdirAll(l.cfg.ModelDir, 0755); err != nil {
		return Outcome{}, fmt.Errorf("create model dir: %w", err)
	}
	if err := ext.Save(ExtractorPath(l.cfg.ModelDir)); err != nil {
		return Outcome{}, fmt.Errorf("save extractor: %w", err)
	}
	if err := cls.Save(ClassifierPath(l.cfg.ModelDir)); err != nil {
		return Outcome{}, fmt.Errorf("save classifier: %w", err)
	}

	version, err := l.nextVersion()
	if err != nil {
		return Outcome{}, err
	}
	if _, err := l.store.CreateModelVersion(&store.ModelVersion{
		Version:         version,
		TrainingSamples: len(texts),
		QualityScore:    metrics.AverageF1(),
		ModelPath:       l.cfg.ModelDir,
	}); err != nil {
		return Outcome{}, fmt.Errorf("record model version: %w", err)
	}

	return Outcome{
		Version:         version,
		Metrics:         metrics,
		TrainingSamples: len(texts),
		Extractor:       ext,
		Classifier:      cls,
	}, nil
}

// gate returns a skip reason when the corpus fails a training floor,
// "" when training may proceed.
func gate(labels []string) string {
	if len(labels) < MinTrainingSamples {
		return fmt.Sprintf("need at least %d labeled samples, have %d", MinTrainingSamples, len(labels))
	}
	distinct := map[string]bool{}
	for _, l := range labels {
		distinct[l] = true
	}
	if len(distinct) < MinDistinctLabels {
		return fmt.Sprintf("need at least %d distinct labels, have %d", MinDistinctLabels, len(distinct))
	}
	return ""
}

func (l *Learner) nextVersion() (string, error) {
	versions, err := l.store.ListModelVersions()
	if err != nil {
		return "", fmt.Errorf("list model versions: %w", err)
	}
	return fmt.Sprintf("v%d", len(versions)+1), nil
}
