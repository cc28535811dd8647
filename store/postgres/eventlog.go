package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	polos "github.com/polos-dev/polos-sub001"
	"github.com/polos-dev/polos-sub001/eventlog"
	"github.com/polos-dev/polos-sub001/id"
	"github.com/polos-dev/polos-sub001/tenant"
)

// PublishEvents creates the topic on first use and appends the batch.
// The row lock on the topic serializes concurrent publishers, so each
// batch gets a contiguous sequence block and sequence assignment commits
// atomically with the inserts. A rolled-back publish leaves no gap.
func (s *Store) PublishEvents(ctx context.Context, project tenant.ProjectID, topicName string, msgs []eventlog.Message) ([]*eventlog.Event, error) {
	var events []*eventlog.Event
	err := s.withTenant(ctx, project, func(tx pgx.Tx) error {
		// Create-or-get, then lock the counter row.
		_, err := tx.Exec(ctx, `
			INSERT INTO polos_topics (id, project_id, name, created_at, updated_at)
			VALUES ($1, $2, $3, NOW(), NOW())
			ON CONFLICT (project_id, name) DO NOTHING`,
			id.NewTopicID().String(), project.String(), topicName,
		)
		if err != nil {
			return fmt.Errorf("polos/postgres: ensure topic: %w", err)
		}

		var (
			topicID string
			nextSeq int64
		)
		err = tx.QueryRow(ctx, `
			SELECT id, next_seq FROM polos_topics
			WHERE project_id = $1 AND name = $2
			FOR UPDATE`,
			project.String(), topicName,
		).Scan(&topicID, &nextSeq)
		if err != nil {
			return fmt.Errorf("polos/postgres: lock topic: %w", err)
		}
		tid, err := id.ParseTopicID(topicID)
		if err != nil {
			return fmt.Errorf("polos/postgres: corrupt topic id: %w", err)
		}

		now := time.Now().UTC()
		batch := &pgx.Batch{}
		events = make([]*eventlog.Event, 0, len(msgs))
		for i, msg := range msgs {
			e := &eventlog.Event{
				ID:           id.NewEventID(),
				TopicID:      tid,
				Seq:          nextSeq + int64(i),
				Type:         msg.Type,
				Payload:      msg.Payload,
				PartitionKey: msg.PartitionKey,
				PublishedAt:  now,
			}
			events = append(events, e)
			batch.Queue(`
				INSERT INTO polos_events (
					id, project_id, topic_id, seq, type, payload,
					partition_key, published_at
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				e.ID.String(), project.String(), topicID, e.Seq, e.Type,
				e.Payload, e.PartitionKey, e.PublishedAt,
			)
		}
		batch.Queue(`
			UPDATE polos_topics SET next_seq = $1, updated_at = NOW()
			WHERE id = $2`,
			nextSeq+int64(len(msgs)), topicID,
		)

		res := tx.SendBatch(ctx, batch)
		defer res.Close()
		for range msgs {
			if _, err := res.Exec(); err != nil {
				if isDuplicateKey(err) || isSerializationFailure(err) {
					return polos.ErrPublishConflict
				}
				return fmt.Errorf("polos/postgres: insert event: %w", err)
			}
		}
		if _, err := res.Exec(); err != nil {
			return fmt.Errorf("polos/postgres: advance topic sequence: %w", err)
		}
		return res.Close()
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// GetTopic retrieves a topic by name within the project.
func (s *Store) GetTopic(ctx context.Context, project tenant.ProjectID, topicName string) (*eventlog.Topic, error) {
	var t eventlog.Topic
	err := s.withTenant(ctx, project, func(tx pgx.Tx) error {
		var projectID string
		err := tx.QueryRow(ctx, `
			SELECT id, project_id, name, next_seq, created_at, updated_at
			FROM polos_topics
			WHERE project_id = $1 AND name = $2`,
			project.String(), topicName,
		).Scan(&t.ID, &projectID, &t.Name, &t.NextSeq, &t.CreatedAt, &t.UpdatedAt)
		if err != nil {
			if isNoRows(err) {
				return polos.ErrTopicNotFound
			}
			return fmt.Errorf("polos/postgres: get topic: %w", err)
		}
		t.ProjectID = tenant.ProjectID(projectID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ReadEvents returns committed events after the sequence cursor.
func (s *Store) ReadEvents(ctx context.Context, project tenant.ProjectID, topicName string, afterSeq int64, limit int) ([]*eventlog.Event, error) {
	var out []*eventlog.Event
	err := s.withTenant(ctx, project, func(tx pgx.Tx) error {
		var topicID string
		err := tx.QueryRow(ctx, `
			SELECT id FROM polos_topics
			WHERE project_id = $1 AND name = $2`,
			project.String(), topicName,
		).Scan(&topicID)
		if err != nil {
			if isNoRows(err) {
				return polos.ErrTopicNotFound
			}
			return fmt.Errorf("polos/postgres: resolve topic: %w", err)
		}

		rows, err := tx.Query(ctx, `
			SELECT id, topic_id, seq, type, payload, partition_key, published_at
			FROM polos_events
			WHERE topic_id = $1 AND seq > $2
			ORDER BY seq ASC
			LIMIT $3`,
			topicID, afterSeq, limit,
		)
		if err != nil {
			return fmt.Errorf("polos/postgres: read events: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var e eventlog.Event
			if err := rows.Scan(&e.ID, &e.TopicID, &e.Seq, &e.Type, &e.Payload, &e.PartitionKey, &e.PublishedAt); err != nil {
				return fmt.Errorf("polos/postgres: scan event: %w", err)
			}
			out = append(out, &e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
