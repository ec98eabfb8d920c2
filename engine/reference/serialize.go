package reference

import (
	"encoding/json"
	"fmt"
)

// Meta is the shared metadata of one serialization pass. Typed collects every referenced item by id.
type Meta struct {
	Typed map[string]any `json:"typed,omitempty"`
}

// External is implemented by objects that were loaded from a file and should be serialized as a pointer to it.
type External interface {
	// ExternalSource returns the path the object was loaded from and the import options used.
	// ok is false when the object was not loaded from a file.
	ExternalSource() (rootPath string, options any, ok bool)
}

type externalEntry struct {
	External        bool   `json:"external"`
	RootPath        string `json:"rootPath"`
	RootPathOptions any    `json:"rootPathOptions,omitempty"`
}

func (m *manager) Serialize(ref *ItemRef, meta *Meta) (json.RawMessage, error) {
	out, err := ref.MarshalJSON()
	if err != nil || ref == nil || ref.ID == "" || meta == nil {
		return out, err
	}
	if meta.Typed == nil {
		meta.Typed = map[string]any{}
	}
	if _, done := meta.Typed[ref.ID]; done {
		return out, nil
	}

	obj, ok := m.Get(ref)
	if !ok {
		return out, nil
	}
	if ext, isExt := obj.(External); isExt {
		if rootPath, options, loaded := ext.ExternalSource(); loaded {
			meta.Typed[ref.ID] = externalEntry{External: true, RootPath: rootPath, RootPathOptions: options}
			return out, nil
		}
	}

	raw, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize referenced item %s: %w", ref.ID, err)
	}
	meta.Typed[ref.ID] = json.RawMessage(raw)
	return out, nil
}
