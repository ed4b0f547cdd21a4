package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"strconv"
	"time"

	bolt "github.com/boltdb/bolt"

	"telegram-genai-bot/internal/crypt"
	"telegram-genai-bot/internal/logging"
	"telegram-genai-bot/internal/relay"
)

const (
	bucketJobs   = "jobs" // parent bucket for per-chat job records
	defaultLimit = 50
)

// Store is a bolt backed journal of finished generation jobs.
type Store struct {
	db     *bolt.DB
	limit  int
	cipher *crypt.Cipher
}

// Option configures a Store.
type Option func(*Store)

// WithLimit caps the number of records kept per chat.
func WithLimit(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.limit = n
		}
	}
}

// WithCipher encrypts prompts at rest.
func WithCipher(c *crypt.Cipher) Option {
	return func(s *Store) { s.cipher = c }
}

// Open opens the database file and creates buckets if needed.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	s := &Store{db: db, limit: defaultLimit}
	for _, opt := range opts {
		opt(s)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketJobs))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func chatKey(chatID int64) []byte {
	return []byte(strconv.FormatInt(chatID, 10))
}

// RecordJob appends a finished job to its chat's journal and trims old
// records beyond the configured limit.
func (s *Store) RecordJob(ctx context.Context, job relay.Job) error {
	if s.cipher != nil {
		var err error
		if job.Prompt, err = s.cipher.Encrypt(job.Prompt); err != nil {
			return err
		}
		if job.UsedPrompt != "" {
			if job.UsedPrompt, err = s.cipher.Encrypt(job.UsedPrompt); err != nil {
				return err
			}
		}
	}
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		jb := tx.Bucket([]byte(bucketJobs))
		cb, err := jb.CreateBucketIfNotExists(chatKey(job.ChatID))
		if err != nil {
			return err
		}
		id, _ := cb.NextSequence()
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, id)
		if err := cb.Put(key, data); err != nil {
			return err
		}
		return trim(cb, s.limit)
	})
}

// trim deletes the oldest records so at most limit remain. Keys are counted
// with a cursor since Stats does not see writes of the current transaction.
func trim(b *bolt.Bucket, limit int) error {
	n := 0
	c := b.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		n++
	}
	excess := n - limit
	if excess <= 0 {
		return nil
	}
	for i := 0; i < excess; i++ {
		k, _ := c.First()
		if k == nil {
			break
		}
		if err := c.Delete(); err != nil {
			return err
		}
	}
	return nil
}

// LoadChatJobs returns up to n most recent jobs of a chat, newest first.
// n <= 0 returns all of them.
func (s *Store) LoadChatJobs(chatID int64, n int) ([]relay.Job, error) {
	var items []relay.Job
	err := s.db.View(func(tx *bolt.Tx) error {
		cb := tx.Bucket([]byte(bucketJobs)).Bucket(chatKey(chatID))
		if cb == nil {
			return nil
		}
		c := cb.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if n > 0 && len(items) >= n {
				break
			}
			var job relay.Job
			if err := json.Unmarshal(v, &job); err != nil {
				return err
			}
			items = append(items, job)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.cipher != nil {
		for i := range items {
			items[i].Prompt = s.decrypt(items[i].Prompt)
			items[i].UsedPrompt = s.decrypt(items[i].UsedPrompt)
		}
	}
	return items, nil
}

// decrypt returns the stored value unchanged when it does not decrypt, so
// records written before a master key was configured stay readable.
func (s *Store) decrypt(v string) string {
	if v == "" {
		return v
	}
	plain, err := s.cipher.Decrypt(v)
	if err != nil {
		logging.Log.Debug().Err(err).Msg("stored prompt is not encrypted")
		return v
	}
	return plain
}

// CountChatJobs returns the number of stored jobs for a chat.
func (s *Store) CountChatJobs(chatID int64) (int, error) {
	var count int
	err := s.db.View(func(tx *bolt.Tx) error {
		cb := tx.Bucket([]byte(bucketJobs)).Bucket(chatKey(chatID))
		if cb == nil {
			return nil
		}
		count = cb.Stats().KeyN
		return nil
	})
	return count, err
}

// ClearChatJobs deletes all stored jobs for a chat and returns the number removed.
func (s *Store) ClearChatJobs(chatID int64) (int, error) {
	count, err := s.CountChatJobs(chatID)
	if err != nil || count == 0 {
		return 0, err
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketJobs)).DeleteBucket(chatKey(chatID))
	})
	return count, err
}

var _ relay.Journal = (*Store)(nil)
