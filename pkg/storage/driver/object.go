/*
Copyright The Helm Authors.
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package driver

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"

	"github.com/pkg/errors"

	"sherpack.sh/sherpack/pkg/release"
)

// object is the driver-agnostic shape both Secrets and ConfigMaps are
// mapped to/from: a named, labeled key/value blob with an
// apiserver-assigned concurrency token.
type object struct {
	Name            string
	Data            map[string]string
	Labels          map[string]string
	ResourceVersion string
}

// objectClient is what a concrete driver (Secrets, ConfigMaps) supplies;
// core implements the full Driver contract in terms of it, so the
// encode/chunk/decode/list/sort logic is written exactly once.
type objectClient interface {
	get(ctx context.Context, namespace, name string) (*object, error)
	list(ctx context.Context, namespace string, labelSelector map[string]string) ([]*object, error)
	create(ctx context.Context, namespace string, obj *object) error
	update(ctx context.Context, namespace string, obj *object) error
	delete(ctx context.Context, namespace, name string) error
}

// core implements Driver against any objectClient.
type core struct {
	client      objectClient
	compression Compression
}

func newCore(c objectClient) *core {
	return &core{client: c, compression: DefaultCompression}
}

func (c *core) Get(ctx context.Context, namespace, name string, version int) (*release.Release, error) {
	key := release.StorageKey(name, version)
	obj, err := c.client.get(ctx, namespace, key)
	if err != nil {
		return nil, err
	}
	return c.decodeObject(ctx, namespace, key, obj)
}

func (c *core) GetLatest(ctx context.Context, namespace, name string) (*release.Release, error) {
	releases, err := c.History(ctx, namespace, name)
	if err != nil {
		return nil, err
	}
	if r := latest(releases); r != nil {
		return r, nil
	}
	return nil, ErrReleaseNotFound
}

func (c *core) List(ctx context.Context, namespace, name string, includeSuperseded bool) ([]*release.Release, error) {
	selector := map[string]string{LabelManagedBy: ManagedByValue}
	if name != "" {
		selector[LabelReleaseName] = name
	}
	objs, err := c.client.list(ctx, namespace, selector)
	if err != nil {
		return nil, err
	}

	var out []*release.Release
	for _, obj := range objs {
		if obj.Labels[LabelChunked] == "true" {
			continue // chunks are assembled via their index object, not listed directly
		}
		rel, err := c.decodeObject(ctx, namespace, obj.Name, obj)
		if err != nil {
			return nil, err
		}
		if !includeSuperseded && rel.Info != nil && rel.Info.Status == release.StatusSuperseded {
			continue
		}
		out = append(out, rel)
	}
	return out, nil
}

func (c *core) History(ctx context.Context, namespace, name string) ([]*release.Release, error) {
	releases, err := c.List(ctx, namespace, name, true)
	if err != nil {
		return nil, err
	}
	return sortByVersionDesc(releases), nil
}

func (c *core) Create(ctx context.Context, rel *release.Release) error {
	key := rel.StorageKey()
	enc, err := Encode(rel, c.compression)
	if err != nil {
		return err
	}
	labels := BaseLabels(rel)

	if err := c.repairOrphanChunks(ctx, rel.Namespace, key); err != nil {
		return err
	}

	if enc.Inline != "" {
		return c.client.create(ctx, rel.Namespace, &object{
			Name:   key,
			Data:   map[string]string{"release": enc.Inline},
			Labels: labels,
		})
	}

	for i, chunk := range enc.Chunks {
		chunkLabels := map[string]string{
			LabelManagedBy:   ManagedByValue,
			LabelReleaseName: rel.Name,
			LabelReleaseNS:   rel.Namespace,
			LabelChunked:     "true",
			LabelChunkIndex:  strconv.Itoa(i),
			LabelChunkParent: key,
		}
		if err := c.client.create(ctx, rel.Namespace, &object{
			Name:   ChunkKey(key, i),
			Data:   map[string]string{"chunk": chunk},
			Labels: chunkLabels,
		}); err != nil {
			return errors.Wrapf(err, "storage: failed to create chunk %d of %q", i, key)
		}
	}

	idxJSON, err := json.Marshal(enc.Index)
	if err != nil {
		return errors.Wrap(err, "storage: failed to marshal chunk index")
	}
	return c.client.create(ctx, rel.Namespace, &object{
		Name:   key,
		Data:   map[string]string{"index": string(idxJSON)},
		Labels: labels,
	})
}

func (c *core) Update(ctx context.Context, rel *release.Release) error {
	key := rel.StorageKey()
	enc, err := Encode(rel, c.compression)
	if err != nil {
		return err
	}
	labels := BaseLabels(rel)

	if enc.Inline != "" {
		return c.client.update(ctx, rel.Namespace, &object{
			Name:            key,
			Data:            map[string]string{"release": enc.Inline},
			Labels:          labels,
			ResourceVersion: rel.ResourceVersion,
		})
	}

	// Re-chunking an existing record: replace chunks, then the index,
	// same create-before-point-at ordering as a fresh write.
	for i, chunk := range enc.Chunks {
		chunkLabels := map[string]string{
			LabelManagedBy:   ManagedByValue,
			LabelReleaseName: rel.Name,
			LabelReleaseNS:   rel.Namespace,
			LabelChunked:     "true",
			LabelChunkIndex:  strconv.Itoa(i),
			LabelChunkParent: key,
		}
		obj := &object{Name: ChunkKey(key, i), Data: map[string]string{"chunk": chunk}, Labels: chunkLabels}
		if existing, err := c.client.get(ctx, rel.Namespace, obj.Name); err == nil {
			obj.ResourceVersion = existing.ResourceVersion
			err = c.client.update(ctx, rel.Namespace, obj)
		} else {
			err = c.client.create(ctx, rel.Namespace, obj)
		}
		if err != nil {
			return errors.Wrapf(err, "storage: failed to write chunk %d of %q", i, key)
		}
	}
	idxJSON, err := json.Marshal(enc.Index)
	if err != nil {
		return errors.Wrap(err, "storage: failed to marshal chunk index")
	}
	return c.client.update(ctx, rel.Namespace, &object{
		Name:            key,
		Data:            map[string]string{"index": string(idxJSON)},
		Labels:          labels,
		ResourceVersion: rel.ResourceVersion,
	})
}

func (c *core) Delete(ctx context.Context, namespace, name string, version int) error {
	key := release.StorageKey(name, version)
	obj, err := c.client.get(ctx, namespace, key)
	if err != nil {
		return err
	}
	if idxRaw, ok := obj.Data["index"]; ok {
		var idx Index
		if err := json.Unmarshal([]byte(idxRaw), &idx); err != nil {
			return errors.Wrap(err, "storage: failed to parse chunk index for delete")
		}
		// delete the index first so no reader can begin assembling a
		// record whose chunks are about to disappear.
		if err := c.client.delete(ctx, namespace, key); err != nil {
			return err
		}
		for i := 0; i < idx.ChunkCount; i++ {
			if err := c.client.delete(ctx, namespace, ChunkKey(key, i)); err != nil && !errors.Is(err, ErrReleaseNotFound) {
				return err
			}
		}
		return nil
	}
	return c.client.delete(ctx, namespace, key)
}

func (c *core) DeleteAll(ctx context.Context, namespace, name string) error {
	releases, err := c.List(ctx, namespace, name, true)
	if err != nil {
		return err
	}
	for _, r := range releases {
		if err := c.Delete(ctx, namespace, name, r.Version); err != nil {
			return err
		}
	}
	return nil
}

func (c *core) Exists(ctx context.Context, namespace, name string) (bool, error) {
	releases, err := c.List(ctx, namespace, name, true)
	if err != nil {
		return false, err
	}
	return len(releases) > 0, nil
}

func (c *core) decodeObject(ctx context.Context, namespace, key string, obj *object) (*release.Release, error) {
	if idxRaw, ok := obj.Data["index"]; ok {
		var idx Index
		if err := json.Unmarshal([]byte(idxRaw), &idx); err != nil {
			return nil, errors.Wrap(err, "storage: failed to parse chunk index")
		}
		payload, err := c.assembleChunks(ctx, namespace, key, idx.ChunkCount)
		if err != nil {
			return nil, err
		}
		rel, err := Decode(payload, &idx, c.compression)
		if err != nil {
			return nil, err
		}
		rel.ResourceVersion = obj.ResourceVersion
		return rel, nil
	}
	payload, ok := obj.Data["release"]
	if !ok {
		return nil, errors.Errorf("storage: object %q has neither a release nor an index payload", key)
	}
	rel, err := Decode(payload, nil, c.compression)
	if err != nil {
		return nil, err
	}
	rel.ResourceVersion = obj.ResourceVersion
	return rel, nil
}

func (c *core) assembleChunks(ctx context.Context, namespace, key string, count int) (string, error) {
	objs, err := c.client.list(ctx, namespace, map[string]string{LabelChunkParent: key})
	if err != nil {
		return "", err
	}
	chunks := map[int]string{}
	for _, obj := range objs {
		i, err := strconv.Atoi(obj.Labels[LabelChunkIndex])
		if err != nil {
			continue
		}
		chunks[i] = obj.Data["chunk"]
	}
	if len(chunks) != count {
		return "", errors.Errorf("storage: expected %d chunks for %q, found %d", count, key, len(chunks))
	}
	return ConcatenateChunks(chunks, count)
}

// repairOrphanChunks deletes chunk objects whose parent index object is
// absent, recovering from a crash between chunk creation and index
// creation on a previous write.
func (c *core) repairOrphanChunks(ctx context.Context, namespace, key string) error {
	objs, err := c.client.list(ctx, namespace, map[string]string{LabelChunkParent: key})
	if err != nil {
		return err
	}
	if len(objs) == 0 {
		return nil
	}
	if _, err := c.client.get(ctx, namespace, key); err == nil {
		return nil // index exists; a previous write completed, this is a legitimate re-create conflict handled by the caller
	}
	sort.Slice(objs, func(i, j int) bool { return objs[i].Name < objs[j].Name })
	for _, obj := range objs {
		if err := c.client.delete(ctx, namespace, obj.Name); err != nil {
			return errors.Wrapf(err, "storage: failed to remove orphan chunk %q", obj.Name)
		}
	}
	return nil
}
