package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/mapic/tilecube/internal/apperr"
	"github.com/mapic/tilecube/internal/repository/store"
	"github.com/mapic/tilecube/pkg/logger"
)

func errNoSuchCube(id string) error {
	return apperr.NotFound(apperr.CodeNoSuchCube, fmt.Sprintf("no such cube: %s", id))
}

func errNoSuchMask(id string) error {
	return apperr.NotFound(apperr.CodeNoSuchMask, fmt.Sprintf("no such mask: %s", id))
}

func errNoSuchLayer(id string) error {
	return apperr.NotFound(apperr.CodeNoSuchLayer, fmt.Sprintf("no such layer: %s", id))
}

func errInvalidTopology() error {
	return apperr.Validation(apperr.CodeInvalidTopology, "invalid topology")
}

func errInvalidDatasetID(id string) error {
	return apperr.Validation(apperr.CodeInvalidDatasetID, fmt.Sprintf("invalid dataset id: %s", id))
}

func errUnsupportedMaskType(t string) error {
	return apperr.Validation(apperr.CodeInvalidMaskType, fmt.Sprintf("unsupported mask type: %s", t))
}

// Registry persists cube and layer records as whole JSON documents
// under their own id. Mutations are read-modify-write with last writer
// wins; callers needing strict serialization serialize externally.
type Registry struct {
	store           store.Store
	geometry        GeoJSONFetcher
	activeMaskIndex int
	granularity     string
	logger          logger.Logger
}

func New(s store.Store, fetcher GeoJSONFetcher, activeMaskIndex int, granularity string, l logger.Logger) *Registry {
	if granularity == "" {
		granularity = "day"
	}
	return &Registry{
		store:           s,
		geometry:        fetcher,
		activeMaskIndex: activeMaskIndex,
		granularity:     granularity,
		logger:          l,
	}
}

// touch advances the cube's last-modified stamp. The stamp must change
// on every structural mutation since the tile cache fingerprint hangs
// off it, so it always moves forward even within one millisecond.
func (r *Registry) touch(c *Cube) {
	ts := time.Now().UnixMilli()
	if ts <= c.Timestamp {
		ts = c.Timestamp + 1
	}
	c.Timestamp = ts
}

func (r *Registry) saveCube(ctx context.Context, c *Cube) error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return r.store.Set(ctx, c.CubeID, data)
}

type CreateCubeOptions struct {
	CreatedBy string
	Style     string
	Quality   string
	Datasets  []DatasetRef
	Options   map[string]any
}

func (r *Registry) CreateCube(ctx context.Context, opts CreateCubeOptions) (*Cube, error) {
	now := time.Now().UnixMilli()
	cube := &Cube{
		CubeID:    "cube-" + uuid.NewString(),
		CreatedAt: now,
		CreatedBy: opts.CreatedBy,
		Style:     opts.Style,
		Quality:   opts.Quality,
		Datasets:  opts.Datasets,
		Options:   opts.Options,
		Timestamp: now,
	}
	if cube.Style == "" {
		cube.Style = DefaultRasterStyle
	}
	if cube.Quality == "" {
		cube.Quality = DefaultQuality
	}
	if cube.Datasets == nil {
		cube.Datasets = []DatasetRef{}
	}
	for i := range cube.Datasets {
		cube.Datasets[i].LastModified = now
	}

	if err := r.saveCube(ctx, cube); err != nil {
		return nil, err
	}

	r.logger.Info("cube created", "cube_id", cube.CubeID, "datasets", len(cube.Datasets))

	return cube, nil
}

func (r *Registry) GetCube(ctx context.Context, id string) (*Cube, error) {
	if id == "" {
		return nil, apperr.MissingInformation()
	}
	data, exists, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errNoSuchCube(id)
	}
	var cube Cube
	if err := json.Unmarshal(data, &cube); err != nil {
		return nil, fmt.Errorf("corrupt cube record %s: %w", id, err)
	}
	return &cube, nil
}

func (r *Registry) DeleteCube(ctx context.Context, id string) error {
	if _, err := r.GetCube(ctx, id); err != nil {
		return err
	}
	return r.store.Delete(ctx, id)
}

func (r *Registry) AddDatasets(ctx context.Context, cubeID string, refs []DatasetRef) (*Cube, error) {
	if len(refs) == 0 {
		return nil, apperr.Validation(apperr.CodeEmptyDatasetList, "empty dataset list")
	}
	cube, err := r.GetCube(ctx, cubeID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UnixMilli()
	for i := range refs {
		refs[i].LastModified = now
	}
	cube.Datasets = append(cube.Datasets, refs...)
	r.touch(cube)

	if err := r.saveCube(ctx, cube); err != nil {
		return nil, err
	}
	return cube, nil
}

// RemoveDatasets removes refs by id. Absent ids are ignored so removal
// is idempotent.
func (r *Registry) RemoveDatasets(ctx context.Context, cubeID string, ids []string) (*Cube, error) {
	cube, err := r.GetCube(ctx, cubeID)
	if err != nil {
		return nil, err
	}

	remove := make(map[string]bool, len(ids))
	for _, id := range ids {
		remove[id] = true
	}

	kept := cube.Datasets[:0]
	for _, ref := range cube.Datasets {
		if !remove[ref.ID] {
			kept = append(kept, ref)
		}
	}
	cube.Datasets = kept
	r.touch(cube)

	if err := r.saveCube(ctx, cube); err != nil {
		return nil, err
	}
	return cube, nil
}

// ReplaceDatasets overwrites the existing ref sharing each incoming
// ref's time bucket, appending when no bucket matches, then re-sorts
// the collection by timestamp ascending.
func (r *Registry) ReplaceDatasets(ctx context.Context, cubeID string, refs []DatasetRef, granularity string) (*Cube, error) {
	if len(refs) == 0 {
		return nil, apperr.Validation(apperr.CodeEmptyDatasetList, "empty dataset list")
	}
	cube, err := r.GetCube(ctx, cubeID)
	if err != nil {
		return nil, err
	}
	if granularity == "" {
		granularity = r.granularity
	}

	now := time.Now().UnixMilli()
	for _, incoming := range refs {
		incoming.LastModified = now
		replaced := false
		for i, existing := range cube.Datasets {
			if sameBucket(existing.Time(), incoming.Time(), granularity) {
				cube.Datasets[i] = incoming
				replaced = true
				break
			}
		}
		if !replaced {
			cube.Datasets = append(cube.Datasets, incoming)
		}
	}

	sort.SliceStable(cube.Datasets, func(i, j int) bool {
		return cube.Datasets[i].Time().Before(cube.Datasets[j].Time())
	})
	r.touch(cube)

	if err := r.saveCube(ctx, cube); err != nil {
		return nil, err
	}
	return cube, nil
}

func sameBucket(a, b time.Time, granularity string) bool {
	switch granularity {
	case "year":
		return a.Year() == b.Year()
	case "month":
		return a.Year() == b.Year() && a.Month() == b.Month()
	case "week":
		ay, aw := a.ISOWeek()
		by, bw := b.ISOWeek()
		return ay == by && aw == bw
	default: // day
		return a.Year() == b.Year() && a.YearDay() == b.YearDay()
	}
}

// UpdateCube shallow-merges the supplied top-level fields over the
// stored record. Nested objects are replaced wholesale. Credential
// fields never persist.
func (r *Registry) UpdateCube(ctx context.Context, cubeID string, partial map[string]any) (*Cube, error) {
	cube, err := r.GetCube(ctx, cubeID)
	if err != nil {
		return nil, err
	}

	current, err := json.Marshal(cube)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(current, &doc); err != nil {
		return nil, err
	}

	delete(partial, "access_token")
	delete(partial, "cube_id")
	for k, v := range partial {
		doc[k] = v
	}

	merged, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var updated Cube
	if err := json.Unmarshal(merged, &updated); err != nil {
		return nil, apperr.Validation(apperr.CodeMissingInformation, "malformed cube update")
	}
	updated.CubeID = cube.CubeID
	updated.Timestamp = cube.Timestamp
	r.touch(&updated)

	if err := r.saveCube(ctx, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// AddMask builds the mask per its type and installs it at the active
// mask slot; only that slot is consulted for tile serving and queries.
func (r *Registry) AddMask(ctx context.Context, cubeID string, spec MaskSpec, accessToken string) (*Mask, error) {
	cube, err := r.GetCube(ctx, cubeID)
	if err != nil {
		return nil, err
	}

	mask, err := buildMask(ctx, spec, r.geometry, accessToken)
	if err != nil {
		return nil, err
	}

	for len(cube.Masks) <= r.activeMaskIndex {
		cube.Masks = append(cube.Masks, Mask{})
	}
	cube.Masks[r.activeMaskIndex] = mask
	r.touch(cube)

	if err := r.saveCube(ctx, cube); err != nil {
		return nil, err
	}

	r.logger.Info("mask added", "cube_id", cubeID, "mask_id", mask.ID, "type", mask.Type)

	return &mask, nil
}

func (r *Registry) RemoveMask(ctx context.Context, cubeID, maskID string) (*Cube, error) {
	cube, err := r.GetCube(ctx, cubeID)
	if err != nil {
		return nil, err
	}

	kept := cube.Masks[:0]
	found := false
	for _, m := range cube.Masks {
		if m.ID == maskID {
			found = true
			continue
		}
		kept = append(kept, m)
	}
	if !found {
		return nil, errNoSuchMask(maskID)
	}
	cube.Masks = kept
	r.touch(cube)

	if err := r.saveCube(ctx, cube); err != nil {
		return nil, err
	}
	return cube, nil
}

func (r *Registry) GetMask(ctx context.Context, cubeID, maskID string) (*Mask, error) {
	cube, err := r.GetCube(ctx, cubeID)
	if err != nil {
		return nil, err
	}
	if m := MaskByID(cube, maskID); m != nil {
		return m, nil
	}
	return nil, errNoSuchMask(maskID)
}

// UpdateMask shallow-merges supplied fields onto the mask found by id.
func (r *Registry) UpdateMask(ctx context.Context, cubeID, maskID string, partial map[string]any) (*Mask, error) {
	cube, err := r.GetCube(ctx, cubeID)
	if err != nil {
		return nil, err
	}

	idx := -1
	for i := range cube.Masks {
		if cube.Masks[i].ID == maskID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, errNoSuchMask(maskID)
	}

	current, err := json.Marshal(cube.Masks[idx])
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(current, &doc); err != nil {
		return nil, err
	}
	delete(partial, "id")
	for k, v := range partial {
		doc[k] = v
	}
	merged, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var updated Mask
	if err := json.Unmarshal(merged, &updated); err != nil {
		return nil, apperr.Validation(apperr.CodeMissingInformation, "malformed mask update")
	}
	updated.ID = maskID
	cube.Masks[idx] = updated
	r.touch(cube)

	if err := r.saveCube(ctx, cube); err != nil {
		return nil, err
	}
	return &updated, nil
}

// ActiveMask returns the mask at the configured active slot, nil when
// the slot is empty.
func (r *Registry) ActiveMask(c *Cube) *Mask {
	if r.activeMaskIndex >= len(c.Masks) {
		return nil
	}
	m := &c.Masks[r.activeMaskIndex]
	if m.ID == "" {
		return nil
	}
	return m
}

func MaskByID(c *Cube, maskID string) *Mask {
	for i := range c.Masks {
		if c.Masks[i].ID == maskID {
			return &c.Masks[i]
		}
	}
	return nil
}

func (r *Registry) SaveLayer(ctx context.Context, l *Layer) error {
	data, err := json.Marshal(l)
	if err != nil {
		return err
	}
	return r.store.Set(ctx, l.ID, data)
}

func (r *Registry) GetLayer(ctx context.Context, id string) (*Layer, error) {
	if id == "" {
		return nil, apperr.MissingInformation()
	}
	data, exists, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errNoSuchLayer(id)
	}
	var layer Layer
	if err := json.Unmarshal(data, &layer); err != nil {
		return nil, fmt.Errorf("corrupt layer record %s: %w", id, err)
	}
	return &layer, nil
}
