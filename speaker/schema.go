package speaker

import (
	"encoding/binary"
	"math"
)

// Схема хранилища профилей. Каскадное удаление через foreign keys:
// speaker -> embeddings -> {identifications, confidence_history}
const schema = `
CREATE TABLE IF NOT EXISTS speakers (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    metadata TEXT,
    sample_path TEXT,
    created_at DATETIME DEFAULT (datetime('now')),
    updated_at DATETIME DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS embeddings (
    id TEXT PRIMARY KEY,
    speaker_id TEXT NOT NULL REFERENCES speakers(id) ON DELETE CASCADE,
    vector BLOB NOT NULL,
    confidence REAL NOT NULL DEFAULT 0.5,
    source_file TEXT,
    segment_start REAL,
    segment_end REAL,
    metadata TEXT,
    created_at DATETIME DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_embeddings_speaker ON embeddings(speaker_id);

CREATE TABLE IF NOT EXISTS identifications (
    id TEXT PRIMARY KEY,
    speaker_id TEXT NOT NULL REFERENCES speakers(id) ON DELETE CASCADE,
    embedding_id TEXT NOT NULL REFERENCES embeddings(id) ON DELETE CASCADE,
    transcription_id TEXT,
    segment_id TEXT,
    similarity REAL NOT NULL,
    type TEXT NOT NULL,
    verified INTEGER DEFAULT 0,
    created_at DATETIME DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_identifications_speaker ON identifications(speaker_id);
CREATE INDEX IF NOT EXISTS idx_identifications_transcription ON identifications(transcription_id);

CREATE TABLE IF NOT EXISTS confidence_history (
    id TEXT PRIMARY KEY,
    embedding_id TEXT NOT NULL REFERENCES embeddings(id) ON DELETE CASCADE,
    old_confidence REAL NOT NULL,
    new_confidence REAL NOT NULL,
    reason TEXT NOT NULL,
    created_at DATETIME DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_history_embedding ON confidence_history(embedding_id);
`

const (
	queryInsertSpeaker = `INSERT INTO speakers (id, name, metadata) VALUES (?, ?, ?)`
	querySpeakerByID   = `SELECT id, name, metadata, sample_path, created_at, updated_at FROM speakers WHERE id = ?`
	querySpeakerExists = `SELECT 1 FROM speakers WHERE id = ?`
	queryRenameSpeaker = `UPDATE speakers SET name = ?, updated_at = datetime('now') WHERE id = ?`
	querySetSample     = `UPDATE speakers SET sample_path = ?, updated_at = datetime('now') WHERE id = ?`
	queryDeleteSpeaker = `DELETE FROM speakers WHERE id = ?`
	queryCountSpeakers = `SELECT COUNT(*) FROM speakers`

	queryListSpeakers = `
SELECT s.id, s.name, s.metadata, s.sample_path, s.created_at, s.updated_at,
       COUNT(e.id), COALESCE(AVG(e.confidence), 0)
FROM speakers s
LEFT JOIN embeddings e ON e.speaker_id = s.id
GROUP BY s.id
ORDER BY s.created_at`

	queryInsertEmbedding = `
INSERT INTO embeddings (id, speaker_id, vector, confidence, source_file, segment_start, segment_end, metadata)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	queryAllEmbeddings = `
SELECT e.id, e.speaker_id, s.name, e.vector, e.confidence
FROM embeddings e
JOIN speakers s ON s.id = e.speaker_id
ORDER BY e.confidence DESC`

	querySpeakerEmbeddings = `
SELECT id, speaker_id, vector, confidence, source_file, segment_start, segment_end, metadata, created_at
FROM embeddings
WHERE speaker_id = ?
ORDER BY confidence DESC`

	querySpeakerConfidences = `SELECT confidence FROM embeddings WHERE speaker_id = ?`
	querySelectConfidence   = `SELECT confidence FROM embeddings WHERE id = ?`
	queryUpdateConfidence   = `UPDATE embeddings SET confidence = ? WHERE id = ?`

	queryInsertIdentification = `
INSERT INTO identifications (id, speaker_id, embedding_id, transcription_id, segment_id, similarity, type, verified)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	queryInsertHistory = `
INSERT INTO confidence_history (id, embedding_id, old_confidence, new_confidence, reason)
VALUES (?, ?, ?, ?, ?)`

	queryEmbeddingHistory = `
SELECT id, embedding_id, old_confidence, new_confidence, reason, created_at
FROM confidence_history
WHERE embedding_id = ?
ORDER BY rowid`
)

// encodeVector сериализует вектор в BLOB (little-endian float32)
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(x))
	}
	return buf
}

// decodeVector обратное преобразование BLOB -> вектор
func decodeVector(buf []byte) []float32 {
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v
}
