package logreader

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MutationKind identifies an operation-log record type. The set is closed:
// anything else on the wire is ignored during replay.
type MutationKind int

const (
	KindSnapshot MutationKind = 0
	KindSet      MutationKind = 1
	KindAppend   MutationKind = 2
	KindDelete   MutationKind = 3
)

// Key is one step of a mutation path: either a named object field or an
// array index, never both.
type Key struct {
	Field   string
	Index   int
	IsIndex bool
}

// Mutation is one parsed operation-log record.
type Mutation struct {
	Kind     MutationKind
	Path     []Key
	Value    any   // Set payload, or the Snapshot object
	Values   []any // Append payload
	Truncate *int  // optional truncate-to length applied before append
}

var (
	errUnknownKind = errors.New("unknown mutation kind")
	errBadPath     = errors.New("path does not resolve")
)

// wireEntry is the raw self-describing record shape on each log line.
type wireEntry struct {
	Kind *int            `json:"kind"`
	K    []any           `json:"k"`
	V    json.RawMessage `json:"v"`
	I    *int            `json:"i"`
}

// parseMutation decodes a single log line into a Mutation.
// Unknown kinds return errUnknownKind so the caller can drop the line.
func parseMutation(line []byte) (Mutation, error) {
	var w wireEntry
	if err := json.Unmarshal(line, &w); err != nil {
		return Mutation{}, fmt.Errorf("decode entry: %w", err)
	}
	if w.Kind == nil {
		return Mutation{}, errors.New("entry has no kind")
	}

	switch MutationKind(*w.Kind) {
	case KindSnapshot:
		var obj map[string]any
		if err := json.Unmarshal(w.V, &obj); err != nil {
			return Mutation{}, fmt.Errorf("snapshot payload: %w", err)
		}
		return Mutation{Kind: KindSnapshot, Value: obj}, nil

	case KindSet:
		path, err := parseKeys(w.K)
		if err != nil {
			return Mutation{}, err
		}
		var v any
		if len(w.V) > 0 {
			if err := json.Unmarshal(w.V, &v); err != nil {
				return Mutation{}, fmt.Errorf("set payload: %w", err)
			}
		}
		return Mutation{Kind: KindSet, Path: path, Value: v}, nil

	case KindAppend:
		path, err := parseKeys(w.K)
		if err != nil {
			return Mutation{}, err
		}
		var values []any
		if len(w.V) > 0 {
			if err := json.Unmarshal(w.V, &values); err != nil {
				return Mutation{}, fmt.Errorf("append payload: %w", err)
			}
		}
		return Mutation{Kind: KindAppend, Path: path, Values: values, Truncate: w.I}, nil

	case KindDelete:
		path, err := parseKeys(w.K)
		if err != nil {
			return Mutation{}, err
		}
		return Mutation{Kind: KindDelete, Path: path}, nil

	default:
		return Mutation{}, errUnknownKind
	}
}

// parseKeys converts the wire path (strings and numbers) into tagged keys.
func parseKeys(raw []any) ([]Key, error) {
	keys := make([]Key, 0, len(raw))
	for _, r := range raw {
		switch v := r.(type) {
		case string:
			keys = append(keys, Key{Field: v})
		case float64:
			idx := int(v)
			if float64(idx) != v || idx < 0 {
				return nil, fmt.Errorf("invalid array index %v", v)
			}
			keys = append(keys, Key{Index: idx, IsIndex: true})
		default:
			return nil, fmt.Errorf("invalid path segment %T", r)
		}
	}
	return keys, nil
}

// apply executes a single mutation against the working state. Failures
// abort only this mutation; the caller continues with the next line.
func apply(state map[string]any, m Mutation) error {
	switch m.Kind {
	case KindSnapshot:
		obj, ok := m.Value.(map[string]any)
		if !ok {
			return errors.New("snapshot payload is not an object")
		}
		// Full replacement: clear, then assign. Never a merge.
		for k := range state {
			delete(state, k)
		}
		for k, v := range obj {
			state[k] = v
		}
		return nil

	case KindSet:
		if len(m.Path) == 0 {
			return nil
		}
		_, err := descend(state, m.Path[:len(m.Path)-1], func(parent any) (any, error) {
			return setIn(parent, m.Path[len(m.Path)-1], m.Value)
		})
		return err

	case KindAppend:
		if len(m.Path) == 0 {
			return nil
		}
		_, err := descend(state, m.Path, func(target any) (any, error) {
			arr, ok := target.([]any)
			if !ok {
				return nil, errors.New("append target is not an array")
			}
			// Truncation happens before append when both are present.
			if m.Truncate != nil && *m.Truncate >= 0 && *m.Truncate < len(arr) {
				arr = arr[:*m.Truncate]
			}
			return append(arr, m.Values...), nil
		})
		return err

	case KindDelete:
		if len(m.Path) == 0 {
			return nil
		}
		_, err := descend(state, m.Path[:len(m.Path)-1], func(parent any) (any, error) {
			return deleteIn(parent, m.Path[len(m.Path)-1])
		})
		return err

	default:
		return errUnknownKind
	}
}

// descend navigates container along path and applies fn to the addressed
// element, writing back any replacement fn produces (appends and truncates
// reallocate slices). A non-resolving intermediate segment fails the whole
// mutation.
func descend(container any, path []Key, fn func(any) (any, error)) (any, error) {
	if len(path) == 0 {
		return fn(container)
	}
	k := path[0]
	switch c := container.(type) {
	case map[string]any:
		if k.IsIndex {
			return nil, errBadPath
		}
		child, ok := c[k.Field]
		if !ok {
			return nil, errBadPath
		}
		replaced, err := descend(child, path[1:], fn)
		if err != nil {
			return nil, err
		}
		c[k.Field] = replaced
		return c, nil
	case []any:
		if !k.IsIndex || k.Index < 0 || k.Index >= len(c) {
			return nil, errBadPath
		}
		replaced, err := descend(c[k.Index], path[1:], fn)
		if err != nil {
			return nil, err
		}
		c[k.Index] = replaced
		return c, nil
	default:
		return nil, errBadPath
	}
}

// setIn writes value under key in parent. Setting one past the end of an
// array appends.
func setIn(parent any, k Key, value any) (any, error) {
	switch p := parent.(type) {
	case map[string]any:
		if k.IsIndex {
			return nil, errBadPath
		}
		p[k.Field] = value
		return p, nil
	case []any:
		if !k.IsIndex || k.Index < 0 || k.Index > len(p) {
			return nil, errBadPath
		}
		if k.Index == len(p) {
			return append(p, value), nil
		}
		p[k.Index] = value
		return p, nil
	default:
		return nil, errBadPath
	}
}

// deleteIn removes the property or array element addressed by key.
func deleteIn(parent any, k Key) (any, error) {
	switch p := parent.(type) {
	case map[string]any:
		if k.IsIndex {
			return nil, errBadPath
		}
		delete(p, k.Field)
		return p, nil
	case []any:
		if !k.IsIndex || k.Index < 0 || k.Index >= len(p) {
			return nil, errBadPath
		}
		return append(p[:k.Index], p[k.Index+1:]...), nil
	default:
		return nil, errBadPath
	}
}
