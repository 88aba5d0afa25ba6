package adapters

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/fxamacker/cbor/v2"
	"github.com/nsqio/go-diskqueue"
	"github.com/rs/zerolog/log"

	"repobuild/internal/ports"
	"repobuild/internal/types"
)

const (
	spoolQueueName   = "jobs"
	spoolInflightDir = "inflight"
	spoolCorruptDir  = "corrupt"
	spoolJobSuffix   = ".job"

	spoolMaxBytesPerFile = 16 << 20
	spoolMaxMsgSize      = 64 << 10
	spoolSyncEvery       = 1
	spoolSyncTimeout     = time.Second
)

var spoolEncMode = mustSpoolEncMode()

func mustSpoolEncMode() cbor.EncMode {
	options := cbor.CoreDetEncOptions()
	options.Time = cbor.TimeRFC3339Nano
	mode, err := options.EncMode()
	if err != nil {
		panic("queue: CBOR encoder initialization failed: " + err.Error())
	}
	return mode
}

// SpoolQueueAdapter is a durable queue in a local directory. Pending jobs
// live in a diskqueue; a delivered job is recorded under inflight/ until
// it is acked or nacked. Opening the spool puts every inflight job back
// on the queue, so jobs held by a crashed process are redelivered.
type SpoolQueueAdapter struct {
	Dir   string
	Clock func() time.Time

	queue diskqueue.Interface
}

func NewSpoolQueueAdapter(dir string) (*SpoolQueueAdapter, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("queue directory is required")
	}
	for _, sub := range []string{spoolInflightDir, spoolCorruptDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg("failed to create queue directory").
				WithCause(err)
		}
	}
	q := &SpoolQueueAdapter{
		Dir:   dir,
		Clock: time.Now,
		queue: diskqueue.New(spoolQueueName, dir, spoolMaxBytesPerFile, 1, spoolMaxMsgSize,
			spoolSyncEvery, spoolSyncTimeout, spoolLogf),
	}
	if err := q.recoverInflight(); err != nil {
		_ = q.queue.Close()
		return nil, err
	}
	return q, nil
}

func (q *SpoolQueueAdapter) Enqueue(ctx context.Context, repositoryID int64) (types.QueueJob, error) {
	if err := ctx.Err(); err != nil {
		return types.QueueJob{}, err
	}
	now := q.now()
	job := types.QueueJob{ID: newJobID(now), RepositoryID: repositoryID, EnqueuedAt: now, Attempt: 1}
	if err := q.put(job); err != nil {
		return types.QueueJob{}, err
	}
	return job, nil
}

func (q *SpoolQueueAdapter) Dequeue(ctx context.Context) (types.QueueJob, error) {
	for {
		var data []byte
		select {
		case <-ctx.Done():
			return types.QueueJob{}, ctx.Err()
		case data = <-q.queue.ReadChan():
		}
		job, err := decodeJob(data)
		if err != nil {
			q.quarantine(data, err)
			continue
		}
		if err := writeFileAtomic(q.inflightPath(job.ID), data); err != nil {
			// Put it back so the job is not lost with the inflight record.
			if putErr := q.queue.Put(data); putErr != nil {
				log.Ctx(ctx).Error().Err(putErr).Str("job", job.ID).Msg("failed to return job to the spool")
			}
			return types.QueueJob{}, errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg(fmt.Sprintf("failed to record inflight job %s", job.ID)).
				WithCause(err)
		}
		return job, nil
	}
}

func (q *SpoolQueueAdapter) Ack(ctx context.Context, job types.QueueJob) error {
	if err := os.Remove(q.inflightPath(job.ID)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg(fmt.Sprintf("failed to ack job %s", job.ID)).
			WithCause(err)
	}
	return nil
}

func (q *SpoolQueueAdapter) Nack(ctx context.Context, job types.QueueJob) error {
	job.Attempt++
	if err := q.put(job); err != nil {
		return err
	}
	if err := os.Remove(q.inflightPath(job.ID)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Ctx(ctx).Warn().Err(err).Str("job", job.ID).Msg("failed to drop inflight job after nack")
	}
	return nil
}

func (q *SpoolQueueAdapter) Depth(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return int(q.queue.Depth()), nil
}

func (q *SpoolQueueAdapter) Close() error {
	return q.queue.Close()
}

func (q *SpoolQueueAdapter) put(job types.QueueJob) error {
	data, err := spoolEncMode.Marshal(job)
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to encode job").
			WithCause(err)
	}
	if err := q.queue.Put(data); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg(fmt.Sprintf("failed to spool job %s", job.ID)).
			WithCause(err)
	}
	return nil
}

func (q *SpoolQueueAdapter) recoverInflight() error {
	entries, err := os.ReadDir(filepath.Join(q.Dir, spoolInflightDir))
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to read inflight jobs").
			WithCause(err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), spoolJobSuffix) {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		path := filepath.Join(q.Dir, spoolInflightDir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg("failed to read inflight job").
				WithCause(err)
		}
		if _, err := decodeJob(data); err != nil {
			log.Warn().Err(err).Str("file", name).Msg("moving unreadable inflight job to corrupt/")
			_ = os.Rename(path, filepath.Join(q.Dir, spoolCorruptDir, name))
			continue
		}
		if err := q.queue.Put(data); err != nil {
			return errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg("failed to recover inflight job").
				WithCause(err)
		}
		if err := os.Remove(path); err != nil {
			log.Warn().Err(err).Str("file", name).Msg("failed to drop recovered inflight job")
		}
		log.Info().Str("job", strings.TrimSuffix(name, spoolJobSuffix)).Msg("redelivering inflight job")
	}
	return nil
}

func (q *SpoolQueueAdapter) quarantine(data []byte, cause error) {
	name := newJobID(q.now()) + spoolJobSuffix
	log.Warn().Err(cause).Str("file", name).Msg("moving unreadable job to corrupt/")
	if err := writeFileAtomic(filepath.Join(q.Dir, spoolCorruptDir, name), data); err != nil {
		log.Error().Err(err).Str("file", name).Msg("failed to keep unreadable job")
	}
}

func (q *SpoolQueueAdapter) inflightPath(id string) string {
	return filepath.Join(q.Dir, spoolInflightDir, id+spoolJobSuffix)
}

func (q *SpoolQueueAdapter) now() time.Time {
	if q.Clock == nil {
		return time.Now()
	}
	return q.Clock()
}

func decodeJob(data []byte) (types.QueueJob, error) {
	var job types.QueueJob
	if err := cbor.Unmarshal(data, &job); err != nil {
		return types.QueueJob{}, err
	}
	if job.ID == "" || job.RepositoryID <= 0 {
		return types.QueueJob{}, errors.New("job record is incomplete")
	}
	return job, nil
}

func writeFileAtomic(target string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(target), ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

func spoolLogf(level diskqueue.LogLevel, format string, args ...interface{}) {
	event := log.Debug()
	switch level {
	case diskqueue.WARN:
		event = log.Warn()
	case diskqueue.ERROR, diskqueue.FATAL:
		event = log.Error()
	}
	event.Str("component", "spool").Msgf(format, args...)
}

var _ ports.QueuePort = (*SpoolQueueAdapter)(nil)
