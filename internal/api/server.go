package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"path/filepath"
	"strings"
	"sync"

	"voiceid/internal/config"
	"voiceid/internal/service"
	"voiceid/models"
	"voiceid/speaker"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Server struct {
	Config   *config.Config
	Store    *speaker.Store
	ModelMgr *models.Manager
	Identify *service.IdentificationService

	clients map[*websocket.Conn]bool
	streams map[*streamClient]bool
	mu      sync.Mutex
}

func NewServer(
	cfg *config.Config,
	store *speaker.Store,
	modMgr *models.Manager,
	identSvc *service.IdentificationService,
) *Server {
	s := &Server{
		Config:   cfg,
		Store:    store,
		ModelMgr: modMgr,
		Identify: identSvc,
		clients:  make(map[*websocket.Conn]bool),
		streams:  make(map[*streamClient]bool),
	}
	s.setupCallbacks()
	return s
}

func (s *Server) Start() {
	http.HandleFunc("/ws", s.handleWebSocket)
	http.HandleFunc("/api/speakers/", s.handleSpeakersAPI)

	if s.Config.GRPCPipe != "" {
		go s.startGRPCServer()
	}

	log.Printf("Backend listening on :%s", s.Config.Port)
	if err := http.ListenAndServe(":"+s.Config.Port, nil); err != nil {
		log.Fatal("ListenAndServe:", err)
	}
}

func (s *Server) setupCallbacks() {
	// Model Progress
	s.ModelMgr.SetProgressCallback(func(modelID string, progress float64, status models.ModelStatus, err error) {
		errStr := ""
		if err != nil {
			errStr = err.Error()
		}
		s.broadcast(Message{
			Type:     "model_progress",
			ModelID:  modelID,
			Progress: progress,
			Data:     string(status),
			Error:    errStr,
		})
	})
}

func (s *Server) broadcast(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for conn := range s.clients {
		// Запись сериализована глобальной блокировкой сервера
		if err := conn.WriteJSON(msg); err != nil {
			log.Printf("Write error: %v", err)
			conn.Close()
			delete(s.clients, conn)
		}
	}
	for sc := range s.streams {
		if err := sc.send(msg); err != nil {
			log.Printf("Stream write error: %v", err)
			delete(s.streams, sc)
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("Upgrade:", err)
		return
	}

	s.mu.Lock()
	s.clients[conn] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	var writeMu sync.Mutex
	reply := func(msg Message) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.WriteJSON(msg); err != nil {
			log.Printf("Write error: %v", err)
		}
	}

	for {
		var msg Message
		err := conn.ReadJSON(&msg)
		if err != nil {
			log.Println("Read:", err)
			break
		}
		s.processMessage(reply, msg)
	}
}

// processMessage обрабатывает команду независимо от транспорта
// (WebSocket или gRPC stream), ответы уходят через reply.
func (s *Server) processMessage(reply func(Message), msg Message) {
	fail := func(err error) {
		reply(Message{Type: "error", Error: err.Error()})
	}

	switch msg.Type {
	case "create_speaker":
		if msg.Name == "" {
			reply(Message{Type: "error", Error: "name is required"})
			return
		}
		id, err := s.Store.CreateSpeaker(msg.Name, msg.Metadata)
		if err != nil {
			fail(err)
			return
		}
		sp, err := s.Store.SpeakerByID(id)
		if err != nil {
			fail(err)
			return
		}
		reply(Message{Type: "speaker_created", Speaker: sp})

	case "list_speakers":
		speakers, err := s.Store.ListSpeakers()
		if err != nil {
			fail(err)
			return
		}
		reply(Message{Type: "speakers_list", Speakers: speakers, Count: len(speakers)})

	case "get_speaker":
		sp, err := s.Store.SpeakerByID(msg.SpeakerID)
		if err != nil {
			fail(err)
			return
		}
		reply(Message{Type: "speaker_details", Speaker: sp})

	case "rename_speaker":
		if msg.Name == "" {
			reply(Message{Type: "error", Error: "name is required"})
			return
		}
		if err := s.Store.RenameSpeaker(msg.SpeakerID, msg.Name); err != nil {
			fail(err)
			return
		}
		reply(Message{Type: "speaker_renamed", SpeakerID: msg.SpeakerID, Name: msg.Name})

	case "delete_speaker":
		deleted, err := s.Store.DeleteSpeaker(msg.SpeakerID)
		if err != nil {
			fail(err)
			return
		}
		reply(Message{Type: "speaker_deleted", SpeakerID: msg.SpeakerID, Deleted: deleted})

	case "get_embeddings":
		embeddings, err := s.Store.SpeakerEmbeddings(msg.SpeakerID)
		if err != nil {
			fail(err)
			return
		}
		reply(Message{Type: "embeddings_list", SpeakerID: msg.SpeakerID, Embeddings: embeddings})

	case "get_history":
		history, err := s.Store.EmbeddingHistory(msg.EmbeddingID)
		if err != nil {
			fail(err)
			return
		}
		reply(Message{Type: "confidence_history", EmbeddingID: msg.EmbeddingID, History: history})

	case "get_statistics":
		stats, err := s.Identify.Statistics(msg.SpeakerID)
		if err != nil {
			fail(err)
			return
		}
		reply(Message{Type: "speaker_statistics", SpeakerID: msg.SpeakerID, Stats: stats})

	case "identify":
		decision, err := s.Identify.Identify(service.IdentifyRequest{
			AudioPath:       msg.AudioPath,
			Start:           msg.Start,
			End:             msg.End,
			TranscriptionID: msg.TranscriptionID,
			SegmentID:       msg.SegmentID,
		})
		if err != nil {
			fail(err)
			return
		}
		reply(Message{Type: "identify_result", Decision: decision})

	case "register_speaker":
		sp, err := s.Identify.Register(service.RegisterRequest{
			Name:       msg.Name,
			Metadata:   msg.Metadata,
			AudioPath:  msg.AudioPath,
			Start:      msg.Start,
			End:        msg.End,
			SaveSample: msg.SaveSample,
		})
		if err != nil {
			fail(err)
			return
		}
		reply(Message{Type: "speaker_registered", Speaker: sp})

	case "verify":
		result, err := s.Identify.VerifyFromAudio(msg.AudioPath, msg.Start, msg.End, speaker.Feedback{
			SpeakerID:       msg.SpeakerID,
			Correct:         msg.Correct,
			SourceFile:      msg.AudioPath,
			SegmentStart:    msg.Start,
			SegmentEnd:      msg.End,
			TranscriptionID: msg.TranscriptionID,
			SegmentID:       msg.SegmentID,
		})
		if err != nil {
			fail(err)
			return
		}
		reply(Message{Type: "verify_result", SpeakerID: msg.SpeakerID, VerifyResult: result})

	case "set_confidence":
		if err := s.Identify.Learner.SetConfidence(msg.EmbeddingID, msg.Confidence, msg.Verified); err != nil {
			fail(err)
			return
		}
		reply(Message{Type: "confidence_set", EmbeddingID: msg.EmbeddingID, Confidence: msg.Confidence})

	case "get_models":
		reply(Message{Type: "models_list", Models: s.ModelMgr.GetAllModelsState()})

	case "download_model":
		if msg.ModelID == "" {
			reply(Message{Type: "error", Error: "modelId is required"})
			return
		}
		if err := s.ModelMgr.DownloadModel(msg.ModelID); err != nil {
			fail(err)
			return
		}
		reply(Message{Type: "download_started", ModelID: msg.ModelID})

	case "cancel_download":
		if msg.ModelID == "" {
			reply(Message{Type: "error", Error: "modelId is required"})
			return
		}
		s.ModelMgr.CancelDownload(msg.ModelID)
		reply(Message{Type: "download_cancelled", ModelID: msg.ModelID})

	case "delete_model":
		if msg.ModelID == "" {
			reply(Message{Type: "error", Error: "modelId is required"})
			return
		}
		if err := s.ModelMgr.DeleteModel(msg.ModelID); err != nil {
			fail(err)
			return
		}
		reply(Message{Type: "model_deleted", ModelID: msg.ModelID})
		reply(Message{Type: "models_list", Models: s.ModelMgr.GetAllModelsState()})

	case "set_active_model":
		if msg.ModelID == "" {
			reply(Message{Type: "error", Error: "modelId is required"})
			return
		}
		if err := s.ModelMgr.SetActiveModel(msg.ModelID); err != nil {
			fail(err)
			return
		}
		reply(Message{Type: "active_model_changed", ModelID: msg.ModelID})
		reply(Message{Type: "models_list", Models: s.ModelMgr.GetAllModelsState()})

	default:
		reply(Message{Type: "error", Error: "unknown message type: " + msg.Type})
	}
}

func (s *Server) handleSpeakersAPI(w http.ResponseWriter, r *http.Request) {
	// CORS headers for dev mode
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/speakers/")

	if path == "" {
		speakers, err := s.Store.ListSpeakers()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(speakers)
		return
	}

	parts := strings.SplitN(path, "/", 2)
	speakerID := parts[0]

	if r.Method == http.MethodDelete && len(parts) == 1 {
		deleted, err := s.Store.DeleteSpeaker(speakerID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if !deleted {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	sp, err := s.Store.SpeakerByID(speakerID)
	if err != nil {
		if errors.Is(err, speaker.ErrSpeakerNotFound) {
			http.NotFound(w, r)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	// /api/speakers/{id}/sample отдаёт сохранённый образец голоса
	if len(parts) == 2 && parts[1] == "sample" {
		if sp.SamplePath == "" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		http.ServeFile(w, r, filepath.Clean(sp.SamplePath))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sp)
}
