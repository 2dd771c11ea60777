// Package classifier implements the few-shot labeling jobs. Tagged documents
// train a logistic head over sentence embeddings; the head then labels every
// untagged document in the activity. Multi-label and entity (single-label)
// runs share the pipeline and differ only in iteration count and decoding.
package classifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/tagmate/tagmate-backend/internal/data/repos"
	types "github.com/tagmate/tagmate-backend/internal/domain"
	jobstate "github.com/tagmate/tagmate-backend/internal/jobs"
	"github.com/tagmate/tagmate-backend/internal/jobs/runtime"
	"github.com/tagmate/tagmate-backend/internal/ml/fewshot"
	"github.com/tagmate/tagmate-backend/internal/ml/labelcodec"
	"github.com/tagmate/tagmate-backend/internal/pkg/apperr"
	"github.com/tagmate/tagmate-backend/internal/pkg/dbctx"
	"github.com/tagmate/tagmate-backend/internal/pkg/logger"
	"github.com/tagmate/tagmate-backend/internal/platform/embeddings"
	"github.com/tagmate/tagmate-backend/internal/platform/gcp"
)

// scoreThreshold is the sigmoid cutoff above which a tag is assigned in
// multi-label decoding.
const scoreThreshold = 0.5

type Deps struct {
	Log        *logger.Logger
	Documents  repos.DocumentRepo
	Activities repos.ActivityRepo
	Embedder   embeddings.Client
	Bucket     gcp.BucketService
}

type Handler struct {
	deps       Deps
	jobType    string
	iterations int
	multiLabel bool
}

// NewMultiLabel builds the multi-label variant: two short passes keep the
// head close to the embedding prior so a handful of examples per tag is
// enough.
func NewMultiLabel(deps Deps) *Handler {
	return &Handler{
		deps:       withLog(deps, "multi_label"),
		jobType:    jobstate.KindMultiLabel,
		iterations: 2,
		multiLabel: true,
	}
}

// NewEntity builds the single-label variant. Entity classes overlap more in
// embedding space, so the head trains longer.
func NewEntity(deps Deps) *Handler {
	return &Handler{
		deps:       withLog(deps, "entity"),
		jobType:    jobstate.KindEntity,
		iterations: 20,
		multiLabel: false,
	}
}

func withLog(deps Deps, name string) Deps {
	if deps.Log != nil {
		deps.Log = deps.Log.With("pipeline", name)
	}
	return deps
}

func (h *Handler) Type() string { return h.jobType }

type result struct {
	Vocabulary     int    `json:"vocabulary"`
	Tagged         int    `json:"tagged"`
	Labeled        int    `json:"labeled"`
	ArtifactPrefix string `json:"artifact_prefix"`
}

func (h *Handler) Run(jc *runtime.Context) error {
	activityID := jc.PayloadUUID("activity_id")
	if activityID == uuid.Nil {
		return fmt.Errorf("classifier: payload missing activity_id")
	}
	dbc := dbctx.Context{Ctx: jc.Ctx}

	jc.Progress("loading", 5, "loading activity")
	activity, err := h.deps.Activities.GetByID(dbc, activityID)
	if err != nil {
		return fmt.Errorf("classifier: get activity: %w", err)
	}
	if activity == nil {
		return fmt.Errorf("classifier: activity %s not found", activityID)
	}

	vocab := []string{}
	if len(activity.Tags) > 0 {
		if err := json.Unmarshal(activity.Tags, &vocab); err != nil {
			return fmt.Errorf("classifier: bad activity tags: %w", err)
		}
	}
	if len(vocab) == 0 {
		return fmt.Errorf("%w: activity has no tag vocabulary", apperr.ErrNoTrainingData)
	}
	enc := labelcodec.NewEncoder(vocab)

	docs, err := h.deps.Documents.ListByActivity(dbc, activityID)
	if err != nil {
		return fmt.Errorf("classifier: list documents: %w", err)
	}

	tagged, untagged := partition(docs)
	if len(tagged) == 0 {
		return fmt.Errorf("%w: no tagged documents to train on", apperr.ErrNoTrainingData)
	}

	if err := jc.Checkpoint(); err != nil {
		return err
	}
	jc.Progress("embedding", 20, fmt.Sprintf("embedding %d tagged documents", len(tagged)))
	trainVecs, err := h.deps.Embedder.Embed(jc.Ctx, texts(tagged))
	if err != nil {
		return fmt.Errorf("classifier: embed training set: %w", err)
	}
	if len(trainVecs) == 0 || len(trainVecs[0]) == 0 {
		return fmt.Errorf("classifier: embedder returned empty vectors")
	}
	dim := len(trainVecs[0])

	targets := make([][]float64, len(tagged))
	for i, doc := range tagged {
		row, err := enc.EncodeMultiHot(docLabels(doc))
		if err != nil {
			return fmt.Errorf("classifier: document %s: %w", doc.ID, err)
		}
		targets[i] = row
	}

	scratch, err := os.MkdirTemp("", "tagmate-model-")
	if err != nil {
		return fmt.Errorf("classifier: scratch dir: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(scratch); rmErr != nil {
			h.deps.Log.Warn("scratch cleanup failed", "dir", scratch, "error", rmErr)
		}
	}()
	priorDir := filepath.Join(scratch, "prior")
	nextDir := filepath.Join(scratch, "next")

	model := h.loadOrInit(jc, activity, enc, dim, priorDir)

	if err := jc.Checkpoint(); err != nil {
		return err
	}
	jc.Progress("training", 40, "training classification head")
	opts := fewshot.DefaultTrainOptions()
	opts.Iterations = h.iterations
	opts.Checkpoint = func(pass int) error {
		if err := jc.Checkpoint(); err != nil {
			return err
		}
		passes := opts.Iterations * opts.Epochs
		pct := 40 + 30*pass/passes
		jc.Progress("training", pct, fmt.Sprintf("training pass %d/%d", pass+1, passes))
		return nil
	}
	if err := model.Train(trainVecs, targets, opts); err != nil {
		if errors.Is(err, runtime.ErrAborted) {
			return err
		}
		return fmt.Errorf("classifier: train: %w", err)
	}

	// Artifacts live at a fixed per-activity prefix; a re-run overwrites the
	// previous version so the latest model is always at the same address.
	prefix := fmt.Sprintf("%s/%s", jc.Job.OwnerUserID, activityID)
	jc.Progress("saving_model", 75, "uploading model artifacts")
	if err := model.Save(nextDir); err != nil {
		return fmt.Errorf("classifier: save model: %w", err)
	}
	if err := h.deps.Bucket.DeletePrefix(jc.Ctx, gcp.BucketCategoryModel, prefix); err != nil {
		return fmt.Errorf("%w: clear model prefix: %v", apperr.ErrStorage, err)
	}
	if err := h.deps.Bucket.UploadDir(jc.Ctx, gcp.BucketCategoryModel, prefix, nextDir); err != nil {
		return fmt.Errorf("%w: upload model: %v", apperr.ErrStorage, err)
	}

	labeled := 0
	if len(untagged) > 0 {
		if err := jc.Checkpoint(); err != nil {
			return err
		}
		jc.Progress("labeling", 85, fmt.Sprintf("labeling %d documents", len(untagged)))
		predVecs, err := h.deps.Embedder.Embed(jc.Ctx, texts(untagged))
		if err != nil {
			return fmt.Errorf("classifier: embed untagged set: %w", err)
		}
		updates, err := h.decode(enc, model, untagged, predVecs)
		if err != nil {
			return err
		}
		if err := h.deps.Documents.BulkUpdateLabels(dbc, updates); err != nil {
			return fmt.Errorf("classifier: write labels: %w", err)
		}
		labeled = len(updates)
	}

	if err := h.deps.Activities.UpdateFields(dbc, activityID, map[string]interface{}{
		"status": types.ActivityStatusCompleted,
	}); err != nil {
		h.deps.Log.Warn("activity status update failed", "activity_id", activityID, "error", err)
	}

	jc.Succeed("done", result{
		Vocabulary:     enc.Size(),
		Tagged:         len(tagged),
		Labeled:        labeled,
		ArtifactPrefix: prefix,
	})
	return nil
}

// loadOrInit resumes from the previously uploaded model when one exists and
// its shape still matches; anything else falls back to a fresh head. A
// missing or unreadable artifact is a warm-start miss, not a failure.
func (h *Handler) loadOrInit(jc *runtime.Context, activity *types.Activity, enc *labelcodec.Encoder, dim int, priorDir string) *fewshot.Model {
	cfg := fewshot.Config{
		Vocabulary: enc.Tags(),
		Dim:        dim,
		MultiLabel: h.multiLabel,
	}
	fresh, err := fewshot.New(cfg)
	if err != nil {
		// Only reachable with an empty vocabulary, which Run rejects first.
		panic(err)
	}

	prefix := fmt.Sprintf("%s/%s", jc.Job.OwnerUserID, activity.ID)
	if err := h.deps.Bucket.DownloadDir(jc.Ctx, gcp.BucketCategoryModel, prefix, priorDir); err != nil {
		h.deps.Log.Info("no prior model, training from scratch", "prefix", prefix)
		return fresh
	}
	prior, err := fewshot.Load(priorDir)
	if err != nil {
		h.deps.Log.Warn("prior model unreadable, training from scratch", "prefix", prefix, "error", err)
		return fresh
	}
	pc := prior.Config()
	if pc.Dim != dim || pc.MultiLabel != h.multiLabel || !sameVocab(pc.Vocabulary, cfg.Vocabulary) {
		h.deps.Log.Info("prior model shape changed, training from scratch", "prefix", prefix)
		return fresh
	}
	return prior
}

func (h *Handler) decode(enc *labelcodec.Encoder, model *fewshot.Model, docs []*types.Document, vecs [][]float32) ([]repos.LabelUpdate, error) {
	updates := make([]repos.LabelUpdate, 0, len(docs))
	if h.multiLabel {
		for i, scores := range model.Predict(vecs) {
			updates = append(updates, repos.LabelUpdate{
				ID:            docs[i].ID,
				Labels:        enc.DecodeMultiHot(scores, scoreThreshold),
				AutoGenerated: true,
			})
		}
		return updates, nil
	}
	for i, class := range model.PredictClass(vecs) {
		tag, err := enc.DecodeIndex(class)
		if err != nil {
			return nil, fmt.Errorf("classifier: decode class %d: %w", class, err)
		}
		updates = append(updates, repos.LabelUpdate{
			ID:            docs[i].ID,
			Labels:        []string{tag},
			AutoGenerated: true,
		})
	}
	return updates, nil
}

func partition(docs []*types.Document) (tagged, untagged []*types.Document) {
	for _, doc := range docs {
		if len(docLabels(doc)) > 0 {
			tagged = append(tagged, doc)
		} else {
			untagged = append(untagged, doc)
		}
	}
	return tagged, untagged
}

func docLabels(doc *types.Document) []string {
	if len(doc.Labels) == 0 {
		return nil
	}
	var labels []string
	if err := json.Unmarshal(doc.Labels, &labels); err != nil {
		return nil
	}
	return labels
}

func texts(docs []*types.Document) []string {
	out := make([]string, len(docs))
	for i, doc := range docs {
		out[i] = doc.Text
	}
	return out
}

func sameVocab(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
