package speaker

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Store персистентное хранилище профилей спикеров на SQLite.
//
// Все операции (чтения и записи) сериализуются через одну горутину,
// владеющую соединением: запросы передаются по каналу и выполняются
// строго по одному. Каждая операция — одна атомарная единица работы.
// Пропускная способность "одна операция за раз" заложена в дизайн:
// объём вызовов низкий (интерактивная обратная связь и идентификация
// по сегментам, не высокочастотный стриминг).
type Store struct {
	db   *sql.DB
	dim  int
	ops  chan func(db *sql.DB)
	quit chan struct{}
	once sync.Once
}

// Open открывает хранилище профилей.
// path — путь к файлу БД (":memory:" для тестов),
// dim — размерность векторов; все embeddings обязаны ей соответствовать.
func Open(path string, dim int) (*Store, error) {
	if dim <= 0 {
		dim = DefaultVectorDim
	}

	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(10000)"
	if path != ":memory:" {
		dsn += "&_pragma=journal_mode(wal)"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open profile store: %w", err)
	}
	// Одно соединение: единственный логический писатель
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	s := &Store{
		db:   db,
		dim:  dim,
		ops:  make(chan func(db *sql.DB)),
		quit: make(chan struct{}),
	}
	go s.run()

	log.Printf("[Store] Profile store opened: %s (dim=%d)", path, dim)
	return s, nil
}

// Dim возвращает размерность векторов хранилища
func (s *Store) Dim() int {
	return s.dim
}

func (s *Store) run() {
	for {
		select {
		case op := <-s.ops:
			op(s.db)
		case <-s.quit:
			s.db.Close()
			return
		}
	}
}

// do выполняет fn в горутине-владельце и ждёт результат
func (s *Store) do(fn func(db *sql.DB) error) error {
	done := make(chan error, 1)
	select {
	case s.ops <- func(db *sql.DB) { done <- fn(db) }:
	case <-s.quit:
		return ErrStoreClosed
	}
	select {
	case err := <-done:
		return err
	case <-s.quit:
		return ErrStoreClosed
	}
}

// Close останавливает горутину-владельца и закрывает БД
func (s *Store) Close() error {
	s.once.Do(func() { close(s.quit) })
	return nil
}

// CreateSpeaker создаёт нового спикера и возвращает его ID
func (s *Store) CreateSpeaker(name string, metadata map[string]any) (string, error) {
	id := uuid.New().String()
	meta, err := marshalMetadata(metadata)
	if err != nil {
		return "", err
	}

	err = s.do(func(db *sql.DB) error {
		_, err := db.Exec(queryInsertSpeaker, id, name, meta)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to create speaker: %w", err)
	}

	log.Printf("[Store] Speaker created: %s (%s)", name, id[:8])
	return id, nil
}

// AddEmbeddingParams параметры добавления embedding
type AddEmbeddingParams struct {
	SpeakerID    string
	Vector       []float32
	Confidence   float64 // 0..1, для нейтрального приора используйте DefaultConfidence
	SourceFile   string
	SegmentStart float64
	SegmentEnd   float64
	Metadata     map[string]any
}

// AddEmbedding добавляет embedding в профиль спикера.
// Возвращает ErrSpeakerNotFound если спикера нет, ValidationError при
// confidence вне [0,1] или несовпадении размерности вектора.
func (s *Store) AddEmbedding(p AddEmbeddingParams) (string, error) {
	if err := validateConfidence("confidence", p.Confidence); err != nil {
		return "", err
	}
	if len(p.Vector) != s.dim {
		return "", &ValidationError{
			Field:  "vector",
			Reason: fmt.Sprintf("dimension mismatch: expected %d, got %d", s.dim, len(p.Vector)),
		}
	}

	id := uuid.New().String()
	meta, err := marshalMetadata(p.Metadata)
	if err != nil {
		return "", err
	}
	blob := encodeVector(p.Vector)

	err = s.do(func(db *sql.DB) error {
		var one int
		if err := db.QueryRow(querySpeakerExists, p.SpeakerID).Scan(&one); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrSpeakerNotFound
			}
			return err
		}
		_, err := db.Exec(queryInsertEmbedding,
			id, p.SpeakerID, blob, p.Confidence,
			nullString(p.SourceFile), p.SegmentStart, p.SegmentEnd, meta)
		return err
	})
	if err != nil {
		return "", err
	}

	return id, nil
}

// AllEmbeddings возвращает весь пул кандидатов (embedding + имя владельца),
// отсортированный по confidence по убыванию
func (s *Store) AllEmbeddings() ([]Candidate, error) {
	var result []Candidate
	err := s.do(func(db *sql.DB) error {
		rows, err := db.Query(queryAllEmbeddings)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var c Candidate
			var blob []byte
			if err := rows.Scan(&c.EmbeddingID, &c.SpeakerID, &c.SpeakerName, &blob, &c.Confidence); err != nil {
				return err
			}
			c.Vector = decodeVector(blob)
			result = append(result, c)
		}
		return rows.Err()
	})
	return result, err
}

// SpeakerEmbeddings возвращает embeddings спикера, отсортированные по confidence по убыванию
func (s *Store) SpeakerEmbeddings(speakerID string) ([]Embedding, error) {
	var result []Embedding
	err := s.do(func(db *sql.DB) error {
		rows, err := db.Query(querySpeakerEmbeddings, speakerID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var e Embedding
			var blob []byte
			var source, meta sql.NullString
			var segStart, segEnd sql.NullFloat64
			if err := rows.Scan(&e.ID, &e.SpeakerID, &blob, &e.Confidence,
				&source, &segStart, &segEnd, &meta, &e.CreatedAt); err != nil {
				return err
			}
			e.Vector = decodeVector(blob)
			e.SourceFile = source.String
			e.SegmentStart = segStart.Float64
			e.SegmentEnd = segEnd.Float64
			e.Metadata = unmarshalMetadata(meta)
			result = append(result, e)
		}
		return rows.Err()
	})
	return result, err
}

// RecordIdentificationParams параметры записи идентификации
type RecordIdentificationParams struct {
	SpeakerID       string
	EmbeddingID     string
	Similarity      float64
	Type            IdentificationType
	TranscriptionID string
	SegmentID       string
	Verified        bool
}

// RecordIdentification добавляет append-only запись аудита идентификации
func (s *Store) RecordIdentification(p RecordIdentificationParams) (string, error) {
	id := uuid.New().String()
	err := s.do(func(db *sql.DB) error {
		_, err := db.Exec(queryInsertIdentification,
			id, p.SpeakerID, p.EmbeddingID,
			nullString(p.TranscriptionID), nullString(p.SegmentID),
			p.Similarity, string(p.Type), p.Verified)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to record identification: %w", err)
	}
	return id, nil
}

// UpdateConfidence записывает новое значение confidence и ровно одну
// запись в confidence_history (old -> new) в одной транзакции.
// Неизвестный embedding — ErrEmbeddingNotFound.
func (s *Store) UpdateConfidence(embeddingID string, newConfidence float64, reason Reason) error {
	if err := validateConfidence("newConfidence", newConfidence); err != nil {
		return err
	}
	return s.do(func(db *sql.DB) error {
		tx, err := db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if err := applyConfidenceUpdate(tx, embeddingID, newConfidence, reason); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// ConfidenceUpdate одно изменение confidence в составе пакета
type ConfidenceUpdate struct {
	EmbeddingID   string
	NewConfidence float64
	Reason        Reason
}

// UpdateConfidenceBatch применяет все изменения в одной транзакции:
// либо применяются все, либо ни одно. Используется при распространении
// поправок от ручной верификации, чтобы сбой посреди цикла не оставил
// профиль в частично обновлённом состоянии.
func (s *Store) UpdateConfidenceBatch(updates []ConfidenceUpdate) error {
	for _, u := range updates {
		if err := validateConfidence("newConfidence", u.NewConfidence); err != nil {
			return err
		}
	}
	if len(updates) == 0 {
		return nil
	}
	return s.do(func(db *sql.DB) error {
		tx, err := db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		for _, u := range updates {
			if err := applyConfidenceUpdate(tx, u.EmbeddingID, u.NewConfidence, u.Reason); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

// applyConfidenceUpdate читает текущее значение, пишет новое и добавляет
// запись истории. Вызывается только внутри транзакции.
func applyConfidenceUpdate(tx *sql.Tx, embeddingID string, newConfidence float64, reason Reason) error {
	var old float64
	if err := tx.QueryRow(querySelectConfidence, embeddingID).Scan(&old); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrEmbeddingNotFound, embeddingID)
		}
		return err
	}
	if _, err := tx.Exec(queryUpdateConfidence, newConfidence, embeddingID); err != nil {
		return err
	}
	_, err := tx.Exec(queryInsertHistory, uuid.New().String(), embeddingID, old, newConfidence, string(reason))
	return err
}

// SpeakerByID возвращает спикера или ErrSpeakerNotFound
func (s *Store) SpeakerByID(id string) (*Speaker, error) {
	var sp Speaker
	err := s.do(func(db *sql.DB) error {
		var meta, sample sql.NullString
		err := db.QueryRow(querySpeakerByID, id).Scan(
			&sp.ID, &sp.Name, &meta, &sample, &sp.CreatedAt, &sp.UpdatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrSpeakerNotFound, id)
		}
		if err != nil {
			return err
		}
		sp.Metadata = unmarshalMetadata(meta)
		sp.SamplePath = sample.String
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &sp, nil
}

// ListSpeakers возвращает всех спикеров с количеством embeddings и средней
// confidence (нули для спикеров без embeddings)
func (s *Store) ListSpeakers() ([]SpeakerSummary, error) {
	var result []SpeakerSummary
	err := s.do(func(db *sql.DB) error {
		rows, err := db.Query(queryListSpeakers)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var sum SpeakerSummary
			var meta, sample sql.NullString
			if err := rows.Scan(&sum.ID, &sum.Name, &meta, &sample,
				&sum.CreatedAt, &sum.UpdatedAt,
				&sum.EmbeddingCount, &sum.AvgConfidence); err != nil {
				return err
			}
			sum.Metadata = unmarshalMetadata(meta)
			sum.SamplePath = sample.String
			result = append(result, sum)
		}
		return rows.Err()
	})
	return result, err
}

// DeleteSpeaker удаляет спикера каскадно: его embeddings, записи
// идентификаций и историю confidence. Возвращает false если спикера не было.
func (s *Store) DeleteSpeaker(id string) (bool, error) {
	var deleted bool
	err := s.do(func(db *sql.DB) error {
		res, err := db.Exec(queryDeleteSpeaker, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		deleted = n > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	if deleted {
		log.Printf("[Store] Speaker deleted: %s", id[:8])
	}
	return deleted, nil
}

// SpeakerStats возвращает агрегированную статистику по embeddings спикера
func (s *Store) SpeakerStats(id string) (*SpeakerStats, error) {
	if _, err := s.SpeakerByID(id); err != nil {
		return nil, err
	}

	var confidences []float64
	err := s.do(func(db *sql.DB) error {
		rows, err := db.Query(querySpeakerConfidences, id)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var c float64
			if err := rows.Scan(&c); err != nil {
				return err
			}
			confidences = append(confidences, c)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	stats := &SpeakerStats{SpeakerID: id, EmbeddingCount: len(confidences)}
	if len(confidences) > 0 {
		stats.AvgConfidence = stat.Mean(confidences, nil)
		stats.MinConfidence = floats.Min(confidences)
		stats.MaxConfidence = floats.Max(confidences)
	}
	return stats, nil
}

// RenameSpeaker обновляет имя спикера
func (s *Store) RenameSpeaker(id, name string) error {
	return s.do(func(db *sql.DB) error {
		res, err := db.Exec(queryRenameSpeaker, name, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: %s", ErrSpeakerNotFound, id)
		}
		return nil
	})
}

// SetSpeakerSample устанавливает путь к аудио-сэмплу спикера
func (s *Store) SetSpeakerSample(id, samplePath string) error {
	return s.do(func(db *sql.DB) error {
		res, err := db.Exec(querySetSample, samplePath, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: %s", ErrSpeakerNotFound, id)
		}
		return nil
	})
}

// EmbeddingHistory возвращает историю изменений confidence для embedding
func (s *Store) EmbeddingHistory(embeddingID string) ([]ConfidenceHistoryEntry, error) {
	var result []ConfidenceHistoryEntry
	err := s.do(func(db *sql.DB) error {
		rows, err := db.Query(queryEmbeddingHistory, embeddingID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var h ConfidenceHistoryEntry
			var reason string
			if err := rows.Scan(&h.ID, &h.EmbeddingID, &h.OldConfidence, &h.NewConfidence, &reason, &h.CreatedAt); err != nil {
				return err
			}
			h.Reason = Reason(reason)
			result = append(result, h)
		}
		return rows.Err()
	})
	return result, err
}

// CountSpeakers возвращает количество зарегистрированных спикеров
func (s *Store) CountSpeakers() (int, error) {
	var n int
	err := s.do(func(db *sql.DB) error {
		return db.QueryRow(queryCountSpeakers).Scan(&n)
	})
	return n, err
}

func marshalMetadata(m map[string]any) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return string(data), nil
}

func unmarshalMetadata(s sql.NullString) map[string]any {
	if !s.Valid || s.String == "" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s.String), &m); err != nil {
		return nil
	}
	return m
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
