package journal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/roach88/fieldstore/store"
)

// Kind distinguishes journal entries.
type Kind string

const (
	KindCommit   Kind = "commit"
	KindValidate Kind = "validate"
)

// Plugin returns a store plugin that journals the store's activity under a
// new session. Each store the plugin is installed on gets its own session.
//
// Write failures are logged and never reach the store; the session-closing
// write at destroy time reports its error through Store.Destroy.
func (j *Journal) Plugin() store.Plugin {
	return store.Plugin{
		Name: "journal",
		Setup: func(pc *store.PluginContext) store.Cleanup {
			sess, err := j.startSession(context.Background(), pc.StoreID())
			if err != nil {
				pc.Logger().Error("journal session not started", "error", err)
				return nil
			}
			pc.Logger().Debug("journal session started", "session", sess.id)

			pc.On(store.EventCommit, func(ev store.Event) store.Cleanup {
				sess.record(context.Background(), ev, 0)
				return nil
			})
			pc.On(store.EventValidate, func(ev store.Event) store.Cleanup {
				sess.record(context.Background(), ev, pc.Epoch())
				return nil
			})
			return func() error {
				return j.endSession(context.Background(), sess.id)
			}
		},
	}
}

// session appends entries for one store.
type session struct {
	j   *Journal
	id  string
	seq atomic.Int64
}

func (j *Journal) startSession(ctx context.Context, storeID string) (*session, error) {
	id := uuid.Must(uuid.NewV7()).String()
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO sessions (id, store_id, started_at)
		VALUES (?, ?, ?)
	`, id, storeID, formatTime(j.now()))
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	return &session{j: j, id: id}, nil
}

func (j *Journal) endSession(ctx context.Context, id string) error {
	_, err := j.db.ExecContext(ctx, `
		UPDATE sessions SET ended_at = ? WHERE id = ? AND ended_at IS NULL
	`, formatTime(j.now()), id)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	return nil
}

// record writes ev. Validate entries carry epoch, the store epoch the
// result was settled against.
func (s *session) record(ctx context.Context, ev store.Event, epoch int64) {
	if err := s.write(ctx, ev, epoch); err != nil {
		s.j.log.Warn("journal write failed", "session", s.id, "event", ev.Name, "path", ev.Path, "error", err)
	}
}

func (s *session) write(ctx context.Context, ev store.Event, epoch int64) error {
	e := Entry{
		Session: s.id,
		Seq:     s.seq.Add(1),
		Path:    ev.Path,
	}
	switch {
	case ev.Mutation != nil:
		e.Kind = KindCommit
		e.Epoch = ev.Mutation.Epoch
		e.Mutation = string(ev.Mutation.Type)
		e.RecordedAt = ev.Mutation.Now
	case ev.Result != nil:
		e.Kind = KindValidate
		e.Epoch = epoch
		e.RecordedAt = s.j.now()
	default:
		return nil
	}

	payload, err := marshalPayload(ev)
	if err != nil {
		return fmt.Errorf("write entry: %w", err)
	}
	_, err = s.j.db.ExecContext(ctx, `
		INSERT INTO entries
		(session_id, seq, epoch, kind, mutation, path, payload, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.Session,
		e.Seq,
		e.Epoch,
		string(e.Kind),
		e.Mutation,
		e.Path,
		payload,
		formatTime(e.RecordedAt),
	)
	if err != nil {
		return fmt.Errorf("write entry: %w", err)
	}
	return nil
}

// marshalPayload renders what an event carried:
//   - register: {"mode", "initial"?, "meta"?, "validator"?}
//   - setControlledValue: the new value
//   - read: {"changed": [paths]}
//   - validate: {"ok", "message"}
//   - everything else: null
//
// Values that cannot be encoded as JSON are stored as their %v text.
func marshalPayload(ev store.Event) (string, error) {
	var v any
	switch {
	case ev.Result != nil:
		v = map[string]any{"ok": ev.Result.OK, "message": ev.Result.Message}
	case ev.Mutation != nil:
		v = mutationPayload(ev.Mutation)
	}

	data, err := encodeJSON(v)
	if err != nil {
		data, err = encodeJSON(fmt.Sprintf("%v", v))
	}
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	return data, nil
}

func mutationPayload(mc *store.MutationContext) any {
	switch mc.Type {
	case store.MutationRegister:
		ro, ok := mc.Payload.(*store.RegisterOptions)
		if !ok || ro == nil {
			return nil
		}
		m := map[string]any{"mode": ro.Mode.String()}
		if ro.HasInitialValue {
			m["initial"] = ro.InitialValue
		}
		if ro.HasMeta {
			m["meta"] = ro.Meta
		}
		if ro.Validator != nil {
			m["validator"] = ro.Validator.Name()
		}
		return m
	case store.MutationSetValue:
		return mc.Payload
	case store.MutationRead:
		return map[string]any{"changed": mc.ChangedPaths()}
	default:
		return nil
	}
}

// encodeJSON encodes v without HTML escaping or a trailing newline.
func encodeJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}
