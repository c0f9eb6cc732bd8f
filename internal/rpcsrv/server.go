// Package rpcsrv exposes the node/album/image/task services of spec §6.1
// as JSON-over-HTTP routes on a chi router, plus the broadcast façade that
// fans image and task operations across the cluster.
package rpcsrv

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/hamersaw/stip-sub000/internal/album"
	"github.com/hamersaw/stip-sub000/internal/apierr"
	"github.com/hamersaw/stip-sub000/internal/cluster"
	"github.com/hamersaw/stip-sub000/internal/model"
	custommw "github.com/hamersaw/stip-sub000/internal/rpcsrv/middleware"
	"github.com/hamersaw/stip-sub000/internal/task"
	"github.com/hamersaw/stip-sub000/internal/tiling"
)

// Server holds the node-local singletons every RPC handler needs.
type Server struct {
	view     *cluster.View
	store    *album.Store
	tasks    *task.Manager
	pipeline *tiling.Pipeline
	self     model.Node
	client   *http.Client
	router   chi.Router
}

// New builds a Server and assembles its chi router.
func New(view *cluster.View, store *album.Store, tasks *task.Manager, pipeline *tiling.Pipeline, self model.Node) *Server {
	s := &Server{
		view: view, store: store, tasks: tasks, pipeline: pipeline, self: self,
		client: &http.Client{Timeout: 30 * time.Second},
	}
	s.router = s.buildRouter()
	return s
}

// Router returns the assembled http.Handler.
func (s *Server) Router() http.Handler { return s.router }

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(custommw.RequestID)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"}) })
	r.Post("/gossip", cluster.Handler(s.view))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/nodes", s.handleNodesList)

		r.Post("/albums", s.handleAlbumCreate)
		r.Get("/albums", s.handleAlbumList)

		r.Post("/albums/{album}/images", s.handleImageStore)
		r.Get("/albums/{album}/images", s.handleImageList)
		r.Get("/albums/{album}/images/search", s.handleImageSearch)
		r.Post("/albums/{album}/broadcast", s.handleImageBroadcast)
		r.Post("/albums/{album}/tiling", s.handleTilingLocal)

		r.Get("/tasks", s.handleTaskList)
		r.Get("/tasks/{id}", s.handleTaskGet)
		r.Post("/tasks/broadcast", s.handleTaskBroadcast)
	})

	return r
}

func (s *Server) handleNodesList(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, s.view.Ring().Iter())
}

func (s *Server) handleAlbumCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID           string `json:"id"`
		Geocode      string `json:"geocode"`
		DHTKeyLength int    `json:"dht_key_length"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, apierr.New(apierr.InvalidConfig, "handleAlbumCreate", err))
		return
	}

	meta := model.Album{
		ID: req.ID, Geocode: model.GeocodeScheme(req.Geocode),
		DHTKeyLength: req.DHTKeyLength, Status: model.AlbumOpen,
	}
	// precisionChars is validated properly once the album's precision is
	// known at first write; at create time only the sign/shape is checked
	// against a generous upper bound.
	if err := s.store.Create(meta, 64); err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusCreated, map[string]string{"id": meta.ID})
}

func (s *Server) handleAlbumList(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, s.store.List())
}

func (s *Server) handleImageStore(w http.ResponseWriter, r *http.Request) {
	albumID := chi.URLParam(r, "album")

	var req struct {
		Format    string  `json:"format"`
		Glob      string  `json:"glob"`
		Precision int     `json:"precision"`
		Workers   int     `json:"thread_count"`
		TaskID    *uint64 `json:"task_id,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, apierr.New(apierr.InvalidConfig, "handleImageStore", err))
		return
	}

	t := &tiling.StoreTask{
		Pipeline: s.pipeline, AlbumID: albumID,
		Format: req.Format, Glob: req.Glob, Precision: req.Precision,
	}

	id, err := s.submitTask(t, req.Workers, req.TaskID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusAccepted, map[string]uint64{"task_id": id})
}

func (s *Server) handleImageList(w http.ResponseWriter, r *http.Request) {
	albumID := chi.URLParam(r, "album")
	filter := parseFilter(r)

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	enc := json.NewEncoder(w)

	err := s.store.Each(albumID, filter, func(img model.Image) error {
		return enc.Encode(img)
	})
	if err != nil {
		// headers are already flushed; best-effort trailer line.
		enc.Encode(map[string]string{"error": err.Error()})
	}
}

func (s *Server) handleImageSearch(w http.ResponseWriter, r *http.Request) {
	albumID := chi.URLParam(r, "album")
	filter := parseFilter(r)

	extents, err := s.store.Search(albumID, filter)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, extents)
}

func parseFilter(r *http.Request) model.Filter {
	q := r.URL.Query()
	var f model.Filter
	if v := q.Get("start_timestamp"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			f.StartTimestamp = &n
		}
	}
	if v := q.Get("end_timestamp"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			f.EndTimestamp = &n
		}
	}
	f.Geocode = q.Get("geocode")
	if v := q.Get("max_cloud_coverage"); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			f.MaxCloudCoverage = &n
		}
	}
	if v := q.Get("min_pixel_coverage"); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			f.MinPixelCoverage = &n
		}
	}
	f.Platform = q.Get("platform")
	f.Source = model.TileSource(q.Get("source"))
	f.Recurse = q.Get("recurse") == "true"
	return f
}

func (s *Server) handleTaskList(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, s.tasks.List())
}

func (s *Server) handleTaskGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		RespondError(w, apierr.New(apierr.InvalidConfig, "handleTaskGet", err))
		return
	}
	h, err := s.tasks.Get(id)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, h)
}

// submitTask registers t under taskID if given, else a fresh id.
func (s *Server) submitTask(t task.Task[any], workers int, taskID *uint64) (uint64, error) {
	if workers < 1 {
		workers = 1
	}
	if taskID != nil {
		if err := s.tasks.SubmitWithID(*taskID, t, workers); err != nil {
			return 0, err
		}
		return *taskID, nil
	}
	return s.tasks.Submit(t, workers)
}

// randomTaskID allocates the cluster-wide correlator for a broadcast job
// (spec §4.6).
func randomTaskID() uint64 { return rand.Uint64() }

func (s *Server) handleImageBroadcast(w http.ResponseWriter, r *http.Request) {
	albumID := chi.URLParam(r, "album")

	var req tilingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, apierr.New(apierr.InvalidConfig, "handleImageBroadcast", err))
		return
	}
	req.TaskID = randomTaskID()

	body, _ := json.Marshal(req)
	nodes := s.view.Ring().Iter()

	replies := fanToPeers(r.Context(), s.client, nodes, "/v1/albums/"+albumID+"/tiling", body)
	RespondJSON(w, http.StatusOK, replies)
}

// handleTilingLocal is the peer-to-peer endpoint broadcast forwards to: it
// runs one tiling operation on this node only, under the shared task id.
func (s *Server) handleTilingLocal(w http.ResponseWriter, r *http.Request) {
	albumID := chi.URLParam(r, "album")

	var req tilingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, apierr.New(apierr.InvalidConfig, "handleTilingLocal", err))
		return
	}

	t, err := buildTilingTask(s.pipeline, albumID, req)
	if err != nil {
		RespondError(w, err)
		return
	}

	id, err := s.submitTask(t, req.Workers, &req.TaskID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusAccepted, map[string]uint64{"task_id": id})
}

// handleTaskBroadcast polls every peer's copy of a cluster-wide broadcast
// task id and collects each node's status snapshot (spec §4.6).
func (s *Server) handleTaskBroadcast(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TaskID uint64 `json:"task_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, apierr.New(apierr.InvalidConfig, "handleTaskBroadcast", err))
		return
	}

	nodes := s.view.Ring().Iter()
	replies := fanGetToPeers(r.Context(), s.client, nodes, fmt.Sprintf("/v1/tasks/%d", req.TaskID))
	RespondJSON(w, http.StatusOK, replies)
}
