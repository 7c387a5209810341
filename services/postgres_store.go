package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/parley-net/parley/crypto"
	"github.com/parley-net/parley/protocol"
)

// PostgresStore implements coordinator.ExchangeStore and
// coordinator.MessageStore with PostgreSQL persistence. The messages table
// carries a unique index on the nonce so duplicate detection is enforced by
// the database, not by a read-then-write in the application.
type PostgresStore struct {
	db *sql.DB
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
}

// ConnectionString returns the PostgreSQL connection string.
func (c *PostgresConfig) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, sslMode)
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(config *PostgresConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", config.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return store, nil
}

func (s *PostgresStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS exchanges (
		id UUID PRIMARY KEY,
		pair_key TEXT NOT NULL,
		initiator_id TEXT NOT NULL,
		responder_id TEXT NOT NULL,
		initiator_ephemeral_key BYTEA NOT NULL,
		initiator_signature BYTEA NOT NULL,
		initiator_timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
		responder_ephemeral_key BYTEA,
		responder_signature BYTEA,
		responder_timestamp TIMESTAMP WITH TIME ZONE,
		confirmation_tag BYTEA,
		state VARCHAR(16) NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL,
		expires_at TIMESTAMP WITH TIME ZONE NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_exchanges_pair ON exchanges(pair_key);
	CREATE INDEX IF NOT EXISTS idx_exchanges_expires ON exchanges(expires_at);

	CREATE TABLE IF NOT EXISTS messages (
		id UUID PRIMARY KEY,
		sender_id TEXT NOT NULL,
		receiver_id TEXT NOT NULL,
		ciphertext BYTEA NOT NULL,
		iv BYTEA NOT NULL,
		auth_tag BYTEA NOT NULL,
		nonce BYTEA NOT NULL,
		sequence_number BIGINT NOT NULL,
		sent_at TIMESTAMP WITH TIME ZONE NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_messages_nonce ON messages(nonce);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_messages_sequence ON messages(sender_id, receiver_id, sequence_number);
	CREATE INDEX IF NOT EXISTS idx_messages_direction ON messages(sender_id, receiver_id, sent_at);
	`

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// CreateExchange inserts a record unless a live exchange exists for the
// unordered pair. A per-pair advisory lock serializes racing initiators so
// two concurrent inserts cannot both pass the liveness check.
func (s *PostgresStore) CreateExchange(ctx context.Context, rec *protocol.ExchangeRecord) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	pair := protocol.PairKey(rec.InitiatorID, rec.ResponderID)
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, pair); err != nil {
		return err
	}

	var existing string
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM exchanges
		WHERE pair_key = $1 AND expires_at > $2 AND state IN ('pending', 'completed')
		LIMIT 1
	`, pair, rec.CreatedAt).Scan(&existing)
	if err == nil {
		return protocol.ErrInvalidState
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO exchanges
			(id, pair_key, initiator_id, responder_id, initiator_ephemeral_key,
			 initiator_signature, initiator_timestamp, state, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, rec.ID, pair, rec.InitiatorID, rec.ResponderID, rec.InitiatorEphemeralKey,
		rec.InitiatorSignature.Bytes(), rec.InitiatorTimestamp, string(rec.State),
		rec.CreatedAt, rec.ExpiresAt)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// GetExchange fetches a record by id.
func (s *PostgresStore) GetExchange(ctx context.Context, id string) (*protocol.ExchangeRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, initiator_id, responder_id, initiator_ephemeral_key,
		       initiator_signature, initiator_timestamp, responder_ephemeral_key,
		       responder_signature, responder_timestamp, confirmation_tag,
		       state, created_at, expires_at
		FROM exchanges WHERE id = $1
	`, id)

	return scanExchange(row)
}

// CompleteExchange atomically flips pending -> completed. The WHERE clause
// is the compare-and-swap: a second responder, or a response after expiry,
// matches zero rows.
func (s *PostgresStore) CompleteExchange(ctx context.Context, id string, ephemeralKey []byte, sig crypto.Signature, timestamp, now time.Time) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
		UPDATE exchanges
		SET responder_ephemeral_key = $2, responder_signature = $3,
		    responder_timestamp = $4, state = 'completed'
		WHERE id = $1 AND state = 'pending' AND expires_at > $5
	`, id, ephemeralKey, sig.Bytes(), timestamp, now)
	if err != nil {
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// AttachConfirmation stores the key-confirmation tag.
func (s *PostgresStore) AttachConfirmation(ctx context.Context, id string, tag []byte) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := s.db.ExecContext(ctx,
		`UPDATE exchanges SET confirmation_tag = $2 WHERE id = $1`, id, tag)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return protocol.ErrExchangeNotFound
	}
	return nil
}

// PendingFor returns non-expired records involving the user, newest first.
func (s *PostgresStore) PendingFor(ctx context.Context, userID string, now time.Time) ([]*protocol.ExchangeRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, initiator_id, responder_id, initiator_ephemeral_key,
		       initiator_signature, initiator_timestamp, responder_ephemeral_key,
		       responder_signature, responder_timestamp, confirmation_tag,
		       state, created_at, expires_at
		FROM exchanges
		WHERE (initiator_id = $1 OR responder_id = $1) AND expires_at > $2
		ORDER BY created_at DESC
	`, userID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*protocol.ExchangeRecord
	for rows.Next() {
		rec, err := scanExchange(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

// DeleteExpired removes records whose expiry passed before the cutoff.
func (s *PostgresStore) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `DELETE FROM exchanges WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// InsertMessage persists an accepted message. The unique index on nonce
// turns a replayed or racing duplicate into a constraint violation, and the
// unique index on (sender, receiver, sequence_number) does the same for two
// racing submissions of one sequence number; the conditional insert refuses
// any sequence at or below the highest accepted one. The nonce is checked
// first so an exact replay reads as a duplicate, not an ordering violation.
func (s *PostgresStore) InsertMessage(ctx context.Context, msg *protocol.SecureMessage) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var nonceSeen bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM messages WHERE nonce = $1)`, msg.Nonce).Scan(&nonceSeen)
	if err != nil {
		return err
	}
	if nonceSeen {
		return protocol.ErrDuplicateNonce
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO messages
			(id, sender_id, receiver_id, ciphertext, iv, auth_tag, nonce, sequence_number, sent_at)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9
		WHERE NOT EXISTS (
			SELECT 1 FROM messages
			WHERE sender_id = $2 AND receiver_id = $3 AND sequence_number >= $8
		)
	`, msg.ID, msg.SenderID, msg.ReceiverID, msg.Ciphertext, msg.IV, msg.AuthTag,
		msg.Nonce, int64(msg.SequenceNumber), msg.Timestamp)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			if pqErr.Constraint == "idx_messages_sequence" {
				return protocol.ErrOutOfOrder
			}
			return protocol.ErrDuplicateNonce
		}
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return protocol.ErrOutOfOrder
	}
	return nil
}

// LastSequence returns the highest accepted sequence number for a direction.
func (s *PostgresStore) LastSequence(ctx context.Context, senderID, receiverID string) (uint64, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var max sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(sequence_number) FROM messages
		WHERE sender_id = $1 AND receiver_id = $2
	`, senderID, receiverID).Scan(&max)
	if err != nil {
		return 0, false, err
	}
	if !max.Valid {
		return 0, false, nil
	}
	return uint64(max.Int64), true, nil
}

// MessagesFor returns accepted messages for a receiver since the given time.
func (s *PostgresStore) MessagesFor(ctx context.Context, receiverID string, since time.Time) ([]*protocol.SecureMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sender_id, receiver_id, ciphertext, iv, auth_tag, nonce, sequence_number, sent_at
		FROM messages
		WHERE receiver_id = $1 AND sent_at >= $2
		ORDER BY sent_at ASC
	`, receiverID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*protocol.SecureMessage
	for rows.Next() {
		var msg protocol.SecureMessage
		var seq int64
		if err := rows.Scan(&msg.ID, &msg.SenderID, &msg.ReceiverID, &msg.Ciphertext,
			&msg.IV, &msg.AuthTag, &msg.Nonce, &seq, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		msg.SequenceNumber = uint64(seq)
		result = append(result, &msg)
	}
	return result, rows.Err()
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExchange(row rowScanner) (*protocol.ExchangeRecord, error) {
	var rec protocol.ExchangeRecord
	var state string
	var initiatorSig []byte
	var responderKey, responderSig, confirmTag []byte
	var responderTS sql.NullTime

	err := row.Scan(&rec.ID, &rec.InitiatorID, &rec.ResponderID,
		&rec.InitiatorEphemeralKey, &initiatorSig, &rec.InitiatorTimestamp,
		&responderKey, &responderSig, &responderTS, &confirmTag,
		&state, &rec.CreatedAt, &rec.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, protocol.ErrExchangeNotFound
	}
	if err != nil {
		return nil, err
	}

	rec.InitiatorSignature = crypto.NewSignature(initiatorSig)
	rec.ResponderEphemeralKey = responderKey
	if responderSig != nil {
		rec.ResponderSignature = crypto.NewSignature(responderSig)
	}
	if responderTS.Valid {
		rec.ResponderTimestamp = responderTS.Time
	}
	rec.ConfirmationTag = confirmTag
	rec.State = protocol.ExchangeState(state)
	return &rec, nil
}
